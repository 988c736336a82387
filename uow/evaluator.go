package uow

import (
	"errors"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-unitofwork/core"
	"github.com/uptrace/bun"
)

var ErrUnorderedPaging = errors.New("uow: paging requires an ordering selector")

// Evaluator translates a specification into select criteria, applied in
// fixed order: filters, raw clauses, relation includes, include paths,
// ordering, paging. Evaluation is pure; the same specification always yields
// the same criteria.
//
// Paging without an ordering selector fails with ErrUnorderedPaging unless
// AllowUnorderedPaging is set, in which case page contents follow whatever
// order the store returns.
type Evaluator struct {
	AllowUnorderedPaging bool
}

func (e Evaluator) Criteria(spec core.Specification) ([]repository.SelectCriteria, error) {
	if spec.PagingEnabled() {
		if field, _ := spec.Ordering(); field == "" && !e.AllowUnorderedPaging {
			return nil, ErrUnorderedPaging
		}
	}

	criteria, err := e.FilterCriteria(spec)
	if err != nil {
		return nil, err
	}

	for _, include := range spec.Includes() {
		if strings.TrimSpace(include.Relation) == "" {
			return nil, fmt.Errorf("uow: include relation is required")
		}
		criteria = append(criteria, relationCriteria(include.Relation, include.Columns))
	}
	for _, path := range spec.IncludePaths() {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("uow: include path is required")
		}
		criteria = append(criteria, relationCriteria(path, nil))
	}

	if field, descending := spec.Ordering(); field != "" {
		direction := "ASC"
		if descending {
			direction = "DESC"
		}
		criteria = append(criteria, repository.OrderBy(field+" "+direction))
	}

	if spec.PagingEnabled() {
		criteria = append(criteria, repository.SelectPaginate(spec.Take(), spec.Skip()))
	}
	return criteria, nil
}

// FilterCriteria translates only the filters and raw clauses of a
// specification, skipping includes, ordering, and paging. Count and
// existence queries use this form.
func (e Evaluator) FilterCriteria(spec core.Specification) ([]repository.SelectCriteria, error) {
	var criteria []repository.SelectCriteria
	for _, filter := range spec.Filters() {
		if strings.TrimSpace(filter.Field) == "" {
			return nil, fmt.Errorf("uow: filter field is required")
		}
		operator := filter.Operator
		if strings.TrimSpace(operator) == "" {
			operator = "="
		}
		criteria = append(criteria, repository.SelectBy(filter.Field, operator, filter.Value))
	}

	for _, clause := range spec.Clauses() {
		if strings.TrimSpace(clause.Expr) == "" {
			return nil, fmt.Errorf("uow: raw clause expression is required")
		}
		expr, args := clause.Expr, clause.Args
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where(expr, args...)
		}))
	}
	return criteria, nil
}

func relationCriteria(relation string, columns []string) repository.SelectCriteria {
	return repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		if len(columns) == 0 {
			return q.Relation(relation)
		}
		return q.Relation(relation, func(rq *bun.SelectQuery) *bun.SelectQuery {
			return rq.Column(columns...)
		})
	})
}
