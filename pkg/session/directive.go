package session

// Strategy selects how a relationship is eagerly loaded.
type Strategy int

const (
	// StrategyJoin folds the relationship into the base query as a
	// LEFT JOIN. Suited to to-one and small fan-out relationships;
	// duplicate parent rows from the join are de-duplicated through
	// the identity map.
	StrategyJoin Strategy = iota + 1
	// StrategyBatch issues one additional query for the whole batch
	// of parent rows (WHERE fk = ANY($1)). Suited to to-many and
	// many-to-many relationships.
	StrategyBatch
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyJoin:
		return "join"
	case StrategyBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// Directive asks a query to eagerly load one relationship with a
// given strategy. Directives compose within one query, and nest:
// a nested directive applies to the entities the outer one loads.
//
//	session.Select[Order](s).
//		Load(session.Batch("ProductDetails", session.Join("Product"))).
//		All(ctx)
type Directive struct {
	Field    string
	Strategy Strategy
	Nested   []Directive
}

// Join requests a join-fetch of the named relationship field.
func Join(field string, nested ...Directive) Directive {
	return Directive{Field: field, Strategy: StrategyJoin, Nested: nested}
}

// Batch requests a batched secondary fetch of the named relationship
// field.
func Batch(field string, nested ...Directive) Directive {
	return Directive{Field: field, Strategy: StrategyBatch, Nested: nested}
}
