package core

import "strings"

// Filter is one field predicate, combined with AND against the other filters
// of a specification. Operator is a SQL comparison operator ("=", "!=", ">",
// ">=", "<", "<=", "LIKE", "IN").
type Filter struct {
	Field    string
	Operator string
	Value    any
}

// Clause is a raw predicate fragment for conditions the field/operator form
// cannot express. Expr uses the store's placeholder syntax.
type Clause struct {
	Expr string
	Args []any
}

// Include requests eager loading of one named relation. An empty Columns
// loads every column of the related rows.
type Include struct {
	Relation string
	Columns  []string
}

// Specification is an immutable query descriptor: filters, eager-load hints,
// at most one ordering selector, and optional paging. Builder methods return
// a modified copy, so a base specification can be shared and branched safely.
type Specification struct {
	filters       []Filter
	clauses       []Clause
	includes      []Include
	includePaths  []string
	orderBy       string
	orderByDesc   string
	pagingEnabled bool
	skip          int
	take          int
}

func NewSpecification() Specification {
	return Specification{}
}

func (s Specification) Where(field, operator string, value any) Specification {
	next := s.clone()
	next.filters = append(next.filters, Filter{
		Field:    strings.TrimSpace(field),
		Operator: strings.TrimSpace(operator),
		Value:    value,
	})
	return next
}

func (s Specification) WhereClause(expr string, args ...any) Specification {
	next := s.clone()
	next.clauses = append(next.clauses, Clause{
		Expr: expr,
		Args: append([]any(nil), args...),
	})
	return next
}

func (s Specification) Include(relation string, columns ...string) Specification {
	next := s.clone()
	next.includes = append(next.includes, Include{
		Relation: strings.TrimSpace(relation),
		Columns:  append([]string(nil), columns...),
	})
	return next
}

func (s Specification) IncludePath(path string) Specification {
	next := s.clone()
	next.includePaths = append(next.includePaths, strings.TrimSpace(path))
	return next
}

// OrderBy selects ascending ordering on field and clears any descending
// selector. At most one ordering selector is active at a time.
func (s Specification) OrderBy(field string) Specification {
	next := s.clone()
	next.orderBy = strings.TrimSpace(field)
	next.orderByDesc = ""
	return next
}

func (s Specification) OrderByDescending(field string) Specification {
	next := s.clone()
	next.orderByDesc = strings.TrimSpace(field)
	next.orderBy = ""
	return next
}

// Page enables paging. Negative skip and take are clamped to zero. Skip and
// take are ignored by evaluation unless paging is enabled.
func (s Specification) Page(skip, take int) Specification {
	next := s.clone()
	if skip < 0 {
		skip = 0
	}
	if take < 0 {
		take = 0
	}
	next.pagingEnabled = true
	next.skip = skip
	next.take = take
	return next
}

func (s Specification) Filters() []Filter {
	return append([]Filter(nil), s.filters...)
}

func (s Specification) Clauses() []Clause {
	return append([]Clause(nil), s.clauses...)
}

func (s Specification) Includes() []Include {
	return append([]Include(nil), s.includes...)
}

func (s Specification) IncludePaths() []string {
	return append([]string(nil), s.includePaths...)
}

// Ordering returns the active ordering selector. An empty field means the
// specification imposes no ordering.
func (s Specification) Ordering() (field string, descending bool) {
	if s.orderBy != "" {
		return s.orderBy, false
	}
	if s.orderByDesc != "" {
		return s.orderByDesc, true
	}
	return "", false
}

func (s Specification) PagingEnabled() bool {
	return s.pagingEnabled
}

func (s Specification) Skip() int {
	return s.skip
}

func (s Specification) Take() int {
	return s.take
}

func (s Specification) clone() Specification {
	next := s
	next.filters = append([]Filter(nil), s.filters...)
	next.clauses = append([]Clause(nil), s.clauses...)
	next.includes = append([]Include(nil), s.includes...)
	next.includePaths = append([]string(nil), s.includePaths...)
	return next
}
