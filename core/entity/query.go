package entity

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/internal/errors"
)

// Conjunctions for [Query] conditions.
const (
	And = "AND"
	Or  = "OR"
)

// QueryFactory creates queries for registered entity types.
type QueryFactory struct {
	container di.Scope
}

// NewQueryFactory creates a [QueryFactory]. The entity manager is looked up
// from container when a query is created.
func NewQueryFactory(container *di.Container) *QueryFactory {
	return &QueryFactory{container: container}
}

// Get returns a new query for the entity type.
func (f *QueryFactory) Get(ctx context.Context, entityType, conjunction string) (*Query, error) {
	m, err := di.Get[*Manager](ctx, f.container, "plugin.manager.entity")
	if err != nil {
		return nil, errors.Wrap(err, "entity query")
	}
	if _, err := m.Definition(entityType); err != nil {
		return nil, errors.Wrap(err, "entity query")
	}

	conjunction = strings.ToUpper(conjunction)
	if conjunction != Or {
		conjunction = And
	}
	return &Query{entityType: entityType, conjunction: conjunction}, nil
}

// Condition is one field comparison of a [Query].
type Condition struct {
	Field    string
	Value    any
	Operator string
}

// Query selects entities of one type by field conditions.
type Query struct {
	entityType  string
	conjunction string
	conditions  []Condition
	sort        []string
	offset      int
	limit       int
}

// EntityType returns the entity type queried.
func (q *Query) EntityType() string {
	return q.entityType
}

// Condition adds a condition. Operators are "=", "<>", "IN" and "CONTAINS";
// an empty operator means "=".
func (q *Query) Condition(field string, value any, operator string) *Query {
	if operator == "" {
		operator = "="
	}
	q.conditions = append(q.conditions, Condition{Field: field, Value: value, Operator: strings.ToUpper(operator)})
	return q
}

// Conditions returns the conditions in the order they were added.
func (q *Query) Conditions() []Condition {
	return slices.Clone(q.conditions)
}

// Sort orders results by field, ascending.
func (q *Query) Sort(field string) *Query {
	q.sort = append(q.sort, field)
	return q
}

// Range limits the results. A zero length means no limit.
func (q *Query) Range(start, length int) *Query {
	q.offset, q.limit = start, length
	return q
}

// Execute returns the ids of the entities that match, in sort order.
func (q *Query) Execute(entities []Entity) []string {
	var matched []Entity
	for _, e := range entities {
		if e.EntityType() == q.entityType && q.matches(e) {
			matched = append(matched, e)
		}
	}

	slices.SortStableFunc(matched, func(a, b Entity) int {
		for _, f := range q.sort {
			if c := cmp.Compare(fmt.Sprint(a.Field(f)), fmt.Sprint(b.Field(f))); c != 0 {
				return c
			}
		}
		return 0
	})

	if q.offset > 0 {
		matched = matched[min(q.offset, len(matched)):]
	}
	if q.limit > 0 && len(matched) > q.limit {
		matched = matched[:q.limit]
	}

	ids := make([]string, len(matched))
	for i, e := range matched {
		ids[i] = e.ID()
	}
	return ids
}

func (q *Query) matches(e Entity) bool {
	if len(q.conditions) == 0 {
		return true
	}
	for _, c := range q.conditions {
		ok := c.matches(e.Field(c.Field))
		if q.conjunction == Or && ok {
			return true
		}
		if q.conjunction == And && !ok {
			return false
		}
	}
	return q.conjunction == And
}

func (c Condition) matches(v any) bool {
	switch c.Operator {
	case "<>":
		return fmt.Sprint(v) != fmt.Sprint(c.Value)
	case "IN":
		values, ok := c.Value.([]any)
		return ok && slices.ContainsFunc(values, func(x any) bool {
			return fmt.Sprint(x) == fmt.Sprint(v)
		})
	case "CONTAINS":
		return strings.Contains(fmt.Sprint(v), fmt.Sprint(c.Value))
	default:
		return fmt.Sprint(v) == fmt.Sprint(c.Value)
	}
}
