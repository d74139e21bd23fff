package filter

import (
	"strings"

	"github.com/dshills/jobsearch-mcp/internal/chunker"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// Attribute names a tag-set column of a job posting.
type Attribute string

const (
	AttrTypes      Attribute = "types"
	AttrFields     Attribute = "fields"
	AttrDomains    Attribute = "domains"
	AttrHomeoffice Attribute = "homeoffice"
)

// Column returns the storage column holding the attribute.
func (a Attribute) Column() string {
	return string(a)
}

func (a Attribute) values(job *types.JobPosting) []string {
	switch a {
	case AttrTypes:
		return job.Types
	case AttrFields:
		return job.Fields
	case AttrDomains:
		return job.Domains
	case AttrHomeoffice:
		return job.Homeoffice
	default:
		return nil
	}
}

// Clause is one condition of a Predicate.
type Clause interface {
	Match(job *types.JobPosting) bool
}

// TagOverlap matches jobs sharing at least one tag with Values.
type TagOverlap struct {
	Attribute Attribute
	Values    []string
}

func (c TagOverlap) Match(job *types.JobPosting) bool {
	for _, have := range c.Attribute.values(job) {
		for _, want := range c.Values {
			if have == want {
				return true
			}
		}
	}
	return false
}

// RangeOverlap matches jobs whose working-hours range overlaps [Min, Max].
type RangeOverlap struct {
	Min int
	Max int
}

func (c RangeOverlap) Match(job *types.JobPosting) bool {
	return job.WorkingHoursMin <= c.Max && job.WorkingHoursMax >= c.Min
}

// TextSearch matches jobs relevant to Query. Storage answers it with
// full-text search; Match approximates it by shared terms.
type TextSearch struct {
	Query string
}

func (c TextSearch) Match(job *types.JobPosting) bool {
	want := chunker.Terms(c.Query)
	if len(want) == 0 {
		return true
	}

	var sb strings.Builder
	sb.WriteString(job.Title)
	sb.WriteByte(' ')
	sb.WriteString(job.Summary)
	sb.WriteByte(' ')
	sb.WriteString(job.Company)
	sb.WriteByte(' ')
	sb.WriteString(job.Location)
	for _, field := range types.FieldTypes {
		sb.WriteByte(' ')
		sb.WriteString(chunker.Clean(job.FieldText(field)))
	}

	have := make(map[string]struct{})
	for _, term := range chunker.Terms(sb.String()) {
		have[term] = struct{}{}
	}
	for _, term := range want {
		if _, ok := have[term]; ok {
			return true
		}
	}
	return false
}

// IDIn restricts matches to an allowlist of job ids.
type IDIn struct {
	IDs []string
}

func (c IDIn) Match(job *types.JobPosting) bool {
	for _, id := range c.IDs {
		if job.ID == id {
			return true
		}
	}
	return false
}

// Predicate is an AND of clauses. The zero value matches every job.
type Predicate struct {
	clauses []Clause
}

// Build validates f and translates it into a Predicate. Empty filter fields
// add no clause.
func Build(f types.Filter) (*Predicate, error) {
	p := &Predicate{}

	if q := strings.TrimSpace(f.Search); q != "" {
		p.clauses = append(p.clauses, TextSearch{Query: q})
	}

	tagSets := []struct {
		attr   Attribute
		values []string
	}{
		{AttrTypes, f.Types},
		{AttrFields, f.Fields},
		{AttrDomains, f.Domains},
		{AttrHomeoffice, f.Homeoffice},
	}
	for _, ts := range tagSets {
		if values := compact(ts.values); len(values) > 0 {
			p.clauses = append(p.clauses, TagOverlap{Attribute: ts.attr, Values: values})
		}
	}

	if f.WorkingHours != nil {
		lo, hi := f.WorkingHours[0], f.WorkingHours[1]
		if lo < 0 || hi < 0 {
			return nil, types.NewValidationError("working_hours", "bounds must be >= 0, got [%d, %d]", lo, hi)
		}
		if lo > hi {
			return nil, types.NewValidationError("working_hours", "min %d is greater than max %d", lo, hi)
		}
		p.clauses = append(p.clauses, RangeOverlap{Min: lo, Max: hi})
	}

	if ids := compact(f.JobIDs); len(ids) > 0 {
		p.clauses = append(p.clauses, IDIn{IDs: ids})
	}

	return p, nil
}

// compact trims values and drops blanks and duplicates.
func compact(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// IsEmpty reports whether the predicate matches every job.
func (p *Predicate) IsEmpty() bool {
	return p == nil || len(p.clauses) == 0
}

// Search returns the combined free-text query, or "" when there is none.
func (p *Predicate) Search() string {
	if p == nil {
		return ""
	}
	var parts []string
	for _, c := range p.clauses {
		if ts, ok := c.(TextSearch); ok {
			parts = append(parts, ts.Query)
		}
	}
	return strings.Join(parts, " ")
}

// Match evaluates the predicate against job in memory.
func (p *Predicate) Match(job *types.JobPosting) bool {
	if p == nil {
		return true
	}
	for _, c := range p.clauses {
		if !c.Match(job) {
			return false
		}
	}
	return true
}
