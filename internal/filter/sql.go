package filter

import (
	"fmt"
	"strings"
)

// Dialect renders the structured clauses for one SQL engine.
type Dialect interface {
	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder(n int) string

	// TagOverlap renders a tag-set overlap test on column.
	TagOverlap(column string, placeholders []string) string
}

type sqliteDialect struct{}

func (sqliteDialect) Placeholder(int) string { return "?" }

// Tag sets are stored as JSON arrays.
func (sqliteDialect) TagOverlap(column string, placeholders []string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value IN (%s))",
		column, strings.Join(placeholders, ", "))
}

type postgresDialect struct{}

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// Tag sets are stored as text[] columns.
func (postgresDialect) TagOverlap(column string, placeholders []string) string {
	return fmt.Sprintf("%s && ARRAY[%s]::text[]", column, strings.Join(placeholders, ", "))
}

var (
	SQLite   Dialect = sqliteDialect{}
	Postgres Dialect = postgresDialect{}
)

// SQL renders the structured clauses as a WHERE fragment over the jobs
// table aliased as alias. Argument numbering starts at first. TextSearch
// clauses are not rendered; storage joins them against its full-text index.
// An empty fragment means no constraint.
func (p *Predicate) SQL(d Dialect, alias string, first int) (string, []interface{}) {
	if p == nil {
		return "", nil
	}

	var (
		parts []string
		args  []interface{}
	)
	n := first

	bind := func(v interface{}) string {
		args = append(args, v)
		ph := d.Placeholder(n)
		n++
		return ph
	}
	col := func(name string) string {
		return alias + "." + name
	}

	for _, c := range p.clauses {
		switch c := c.(type) {
		case TagOverlap:
			phs := make([]string, len(c.Values))
			for i, v := range c.Values {
				phs[i] = bind(v)
			}
			parts = append(parts, d.TagOverlap(col(c.Attribute.Column()), phs))
		case RangeOverlap:
			parts = append(parts, fmt.Sprintf("(%s <= %s AND %s >= %s)",
				col("working_hours_min"), bind(c.Max), col("working_hours_max"), bind(c.Min)))
		case IDIn:
			phs := make([]string, len(c.IDs))
			for i, id := range c.IDs {
				phs[i] = bind(id)
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col("job_id"), strings.Join(phs, ", ")))
		}
	}

	return strings.Join(parts, " AND "), args
}
