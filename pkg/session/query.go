package session

import (
	"context"
	"fmt"

	"github.com/stoneacre/cobble/pkg/builder"
	"github.com/stoneacre/cobble/pkg/registry"
	"github.com/stoneacre/cobble/pkg/schema"
)

// SelectQuery is a type-safe read over a mapped entity, executed
// inside a session so results land in its identity map.
type SelectQuery[T any] struct {
	s          *Session
	table      *schema.TableMetadata
	err        error
	where      []builder.Condition
	orderBy    []builder.OrderBy
	limit      *int
	directives []Directive
}

// Select creates a new SELECT query within the session.
// Usage: session.Select[shop.User](s).Where(...).All(ctx)
func Select[T any](s *Session) *SelectQuery[T] {
	var model T
	table, err := registry.GetOrRegister(model)
	return &SelectQuery[T]{
		s:     s,
		table: table,
		err:   err,
	}
}

// Where adds a WHERE condition.
func (q *SelectQuery[T]) Where(condition builder.Condition) *SelectQuery[T] {
	q.where = append(q.where, condition)
	return q
}

// OrderBy adds an ORDER BY clause.
func (q *SelectQuery[T]) OrderBy(column string, direction builder.OrderDirection) *SelectQuery[T] {
	q.orderBy = append(q.orderBy, builder.OrderBy{Column: column, Direction: direction})
	return q
}

// OrderByAsc adds an ascending ORDER BY clause.
func (q *SelectQuery[T]) OrderByAsc(column string) *SelectQuery[T] {
	return q.OrderBy(column, builder.Asc)
}

// OrderByDesc adds a descending ORDER BY clause.
func (q *SelectQuery[T]) OrderByDesc(column string) *SelectQuery[T] {
	return q.OrderBy(column, builder.Desc)
}

// Limit sets the LIMIT clause.
func (q *SelectQuery[T]) Limit(limit int) *SelectQuery[T] {
	q.limit = &limit
	return q
}

// Load adds relationship-loading directives to the query.
func (q *SelectQuery[T]) Load(directives ...Directive) *SelectQuery[T] {
	q.directives = append(q.directives, directives...)
	return q
}

// All executes the query and returns all hydrated entities, identity
// mapped within the session.
func (q *SelectQuery[T]) All(ctx context.Context) ([]*T, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.s.closed {
		return nil, fmt.Errorf("select %s: session closed", q.table.Name)
	}
	entities, err := q.s.runQuery(ctx, q.table, q.where, q.orderBy, q.limit, q.directives)
	if err != nil {
		return nil, err
	}
	results := make([]*T, 0, len(entities))
	for _, entity := range entities {
		typed, ok := entity.(*T)
		if !ok {
			return nil, fmt.Errorf("unexpected entity type %T for table %s", entity, q.table.Name)
		}
		results = append(results, typed)
	}
	return results, nil
}

// One executes the query and returns the first result, or nil when no
// row matches. Absence is a value here, not an error.
func (q *SelectQuery[T]) One(ctx context.Context) (*T, error) {
	if q.err != nil {
		return nil, q.err
	}
	// A LIMIT would clip the child rows of a to-many join-fetch, so
	// it is only applied when the query has none.
	if q.limit == nil && !q.hasToManyJoin() {
		one := 1
		q.limit = &one
	}
	results, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// hasToManyJoin reports whether any join directive targets a to-many
// relationship.
func (q *SelectQuery[T]) hasToManyJoin() bool {
	for _, dir := range q.directives {
		if dir.Strategy != StrategyJoin {
			continue
		}
		rel := q.table.GetRelationship(dir.Field)
		if rel != nil && !rel.ToOne() {
			return true
		}
	}
	return false
}
