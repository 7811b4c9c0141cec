// Package query builds parameterized PostgreSQL SELECT statements from a
// mapping of view property names to table columns.
package query

import (
	"fmt"
	"strings"
)

type column struct {
	view      string
	name      string
	qualified string
}

// ProjectionMap describes a base table, its joins, and the columns a
// repository selects, keyed by the Go-facing property name.
type ProjectionMap struct {
	table   string
	from    strings.Builder
	current string
	columns []column
	index   map[string]int
}

// NewProjectionMap starts a projection over schema.table aliased as alias.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	p := &ProjectionMap{
		table:   fmt.Sprintf("%s.%s %s", schema, table, alias),
		current: alias,
		index:   make(map[string]int),
	}
	p.from.WriteString(p.table)
	return p
}

// Project selects column from the most recently added table and exposes it
// as view.
func (p *ProjectionMap) Project(column, view string) *ProjectionMap {
	p.index[view] = len(p.columns)
	p.columns = append(p.columns, projected(view, column, p.current))
	return p
}

// Join appends a joined table. kind is the join keyword ("LEFT JOIN") and on
// the join condition. Columns projected afterwards belong to the joined
// table.
func (p *ProjectionMap) Join(schema, table, alias, kind, on string) *ProjectionMap {
	fmt.Fprintf(&p.from, " %s %s.%s %s ON %s", kind, schema, table, alias, on)
	p.current = alias
	return p
}

// Table returns the base table reference without joins.
func (p *ProjectionMap) Table() string {
	return p.table
}

// From returns the base table followed by its joins.
func (p *ProjectionMap) From() string {
	return p.from.String()
}

// Column returns the qualified column for view, or view itself when it is
// not projected. Filters use it with trusted field names only.
func (p *ProjectionMap) Column(view string) string {
	if col, ok := p.Lookup(view); ok {
		return col
	}
	return view
}

// Lookup resolves a client-supplied field name to a qualified column. It
// accepts the view name in any case or the bare database column name, and
// reports false for anything else.
func (p *ProjectionMap) Lookup(field string) (string, bool) {
	if i, ok := p.index[field]; ok {
		return p.columns[i].qualified, true
	}
	for _, c := range p.columns {
		if strings.EqualFold(c.view, field) || c.name == field {
			return c.qualified, true
		}
	}
	return "", false
}

// Columns returns the select list.
func (p *ProjectionMap) Columns() string {
	list := make([]string, len(p.columns))
	for i, c := range p.columns {
		list[i] = c.qualified
	}
	return strings.Join(list, ", ")
}

func projected(view, name, alias string) column {
	return column{view: view, name: name, qualified: alias + "." + name}
}
