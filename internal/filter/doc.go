// Package filter turns a structured types.Filter into a Predicate over job
// postings.
//
// A Predicate is an AND of clauses. Tag clauses match when the job shares
// at least one tag with the allowed set. The working-hours clause matches
// when the job's own range overlaps the requested one. The text clause is
// answered by the chunk index's full-text search, so filter search and
// query ranking score documents the same way.
//
// Predicates render to parameterised SQL for the SQLite and Postgres chunk
// indexes and evaluate in memory through Match:
//
//	p, err := filter.Build(types.Filter{
//	    Types:        []string{"Praktikum"},
//	    WorkingHours: &[2]int{20, 30},
//	})
//	where, args := p.SQL(filter.SQLite, "j", 1)
package filter
