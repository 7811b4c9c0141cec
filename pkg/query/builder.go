package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// SortField is one ORDER BY term. Field names a projected view property.
type SortField struct {
	Field      string
	Descending bool
}

// ParseSortFields reads a comma-separated sort string such as
// "name,-started_at". A leading "-" sorts that field descending.
func ParseSortFields(s string) []SortField {
	var fields []SortField
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, desc := strings.CutPrefix(part, "-")
		fields = append(fields, SortField{Field: name, Descending: desc})
	}
	return fields
}

// predicate renders one WHERE term, calling bind once per argument to
// obtain its positional placeholder.
type predicate func(bind func(any) string) string

// Builder assembles parameterized SELECT statements over a ProjectionMap.
// Filter methods skip nil or empty values so optional filters can be chained
// unconditionally.
type Builder struct {
	projection  *ProjectionMap
	where       []predicate
	order       []SortField
	defaultSort []SortField
}

// NewBuilder creates a Builder ordered by defaultSort unless OrderByFields
// overrides it.
func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{projection: projection, defaultSort: defaultSort}
}

// OrderByFields replaces the default ordering. Fields the projection does
// not know are ignored.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	b.order = fields
	return b
}

// WhereEquals matches field against value.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	col := b.projection.Column(field)
	b.where = append(b.where, func(bind func(any) string) string {
		return col + " = " + bind(value)
	})
	return b
}

// WhereContains matches a case-insensitive substring of field.
func (b *Builder) WhereContains(field string, value *string) *Builder {
	if value == nil || *value == "" {
		return b
	}
	return b.WhereSearch(value, field)
}

// WhereSearch matches a case-insensitive substring in any of fields.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" || len(fields) == 0 {
		return b
	}
	pattern := "%" + *search + "%"
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = b.projection.Column(f)
	}
	b.where = append(b.where, func(bind func(any) string) string {
		terms := make([]string, len(cols))
		for i, col := range cols {
			terms[i] = col + " ILIKE " + bind(pattern)
		}
		if len(terms) == 1 {
			return terms[0]
		}
		return "(" + strings.Join(terms, " OR ") + ")"
	})
	return b
}

// WhereNull requires field to be NULL when null is true and NOT NULL when
// it is false.
func (b *Builder) WhereNull(field string, null *bool) *Builder {
	if null == nil {
		return b
	}
	col := b.projection.Column(field)
	b.where = append(b.where, func(func(any) string) string {
		if *null {
			return col + " IS NULL"
		}
		return col + " IS NOT NULL"
	})
	return b
}

// Build renders the filtered, ordered SELECT.
func (b *Builder) Build() (string, []any) {
	where, args := b.render()
	return b.selectFrom() + where + b.orderBy(), args
}

// BuildCount renders a COUNT(*) over the same filters.
func (b *Builder) BuildCount() (string, []any) {
	where, args := b.render()
	return "SELECT COUNT(*) FROM " + b.projection.From() + where, args
}

// BuildPage renders one 1-based page of the ordered SELECT.
func (b *Builder) BuildPage(page, pageSize int) (string, []any) {
	sql, args := b.Build()
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", sql, pageSize, (page-1)*pageSize), args
}

// BuildSingle renders a lookup of one row by idField, ignoring any filters.
func (b *Builder) BuildSingle(idField string, id any) (string, []any) {
	return b.selectFrom() + " WHERE " + b.projection.Column(idField) + " = $1", []any{id}
}

func (b *Builder) selectFrom() string {
	return "SELECT " + b.projection.Columns() + " FROM " + b.projection.From()
}

func (b *Builder) render() (string, []any) {
	if len(b.where) == 0 {
		return "", nil
	}

	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	terms := make([]string, len(b.where))
	for i, p := range b.where {
		terms[i] = p(bind)
	}
	return " WHERE " + strings.Join(terms, " AND "), args
}

func (b *Builder) orderBy() string {
	fields := b.order
	if len(fields) == 0 {
		fields = b.defaultSort
	}

	var terms []string
	for _, f := range fields {
		col, ok := b.projection.Lookup(f.Field)
		if !ok {
			continue
		}
		if f.Descending {
			terms = append(terms, col+" DESC")
		} else {
			terms = append(terms, col+" ASC")
		}
	}
	if len(terms) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	switch v := reflect.ValueOf(value); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
