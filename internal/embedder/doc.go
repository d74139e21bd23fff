// Package embedder turns posting text and search queries into vectors.
//
// Every provider implements Embedder. The Mode argument tells the provider
// whether the text is indexed content or a search query; retrieval-tuned
// models embed the two differently.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: embedder.ProviderJina, APIKey: key})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vec, err := emb.Embed(ctx, "backend engineer, remote", embedder.ModeQuery)
//
// # Providers
//
//   - jina: Jina AI HTTP API; mode maps to the retrieval.passage and
//     retrieval.query tasks
//   - openai: any OpenAI-compatible endpoint through langchaingo; mode maps
//     to EmbedDocuments and EmbedQuery
//   - local: deterministic feature-hashing vectors, no network; used offline
//     and in tests
//
// # Caching
//
// New wraps the provider in an LRU cache keyed by mode and content hash. A
// SharedCache (see RedisCache) adds a second tier that survives restarts and
// is shared between server instances.
//
// # Errors
//
// Upstream failures surface as ErrProviderFailed, which wraps
// types.ErrEmbeddingUnavailable. Callers that can degrade (the semantic
// retriever) test for the latter.
package embedder
