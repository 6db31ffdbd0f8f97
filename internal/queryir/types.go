package queryir

// Query represents an abstract query. Only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate represents a filter condition. Only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Select reads Columns from a table or view, filtered by Filter.
//
//	Select{
//	  From:    "active_rule_rows",
//	  Columns: []string{"id", "profile_kee"},
//	  Filter:  And{Predicates: []Predicate{
//	    Equals{Field: "repository", Value: "javascript"},
//	    Equals{Field: "rule", Value: "S001"},
//	  }},
//	}
//
// compiles to
//
//	SELECT id, profile_kee FROM active_rule_rows
//	WHERE repository = ? AND rule = ? ORDER BY id ASC
//
// OrderBy defaults to "id". Columns must be explicit.
type Select struct {
	From    string
	Columns []string
	Filter  Predicate // nil = no filter
	OrderBy []string
}

func (Select) queryNode() {}

// Equals matches rows whose Field equals Value.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// In matches rows whose Field equals any of Values. Values must be non-empty.
type In struct {
	Field  string
	Values []any
}

func (In) predicateNode() {}

// IsNull matches rows whose Field is NULL.
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// And matches rows satisfying all Predicates. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where is shorthand for an And of the given predicates, or nil when none are given.
func Where(preds ...Predicate) Predicate {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return And{Predicates: preds}
	}
}
