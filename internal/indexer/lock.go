package indexer

import "sync/atomic"

// ingestLock admits one ingestion run at a time without blocking callers.
type ingestLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock and reports whether it was free.
func (l *ingestLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Only the holder may call it.
func (l *ingestLock) Release() {
	l.held.Store(false)
}
