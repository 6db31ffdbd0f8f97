package queryir

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidQuery is wrapped by every error returned from Validate.
var ErrInvalidQuery = errors.New("invalid query")

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks identifiers and literal types of a query.
// All problems are reported, joined into one error.
//
// Validate is a pure function with no side effects.
func Validate(q Query) error {
	v := &validator{}
	v.validateQuery(q)
	return errors.Join(v.errs...)
}

type validator struct {
	errs []error
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...)))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addError("nil query")
			return
		}
		v.validateSelect(*query)
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.identifier("table", sel.From)
	if len(sel.Columns) == 0 {
		v.addError("select from %q has no columns", sel.From)
	}
	for _, c := range sel.Columns {
		v.identifier("column", c)
	}
	for _, c := range sel.OrderBy {
		v.identifier("order column", c)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		return
	case Equals:
		v.identifier("field", pred.Field)
		v.literal(pred.Field, pred.Value)
	case *Equals:
		v.validatePredicate(*pred)
	case In:
		v.identifier("field", pred.Field)
		if len(pred.Values) == 0 {
			v.addError("IN on %q has no values", pred.Field)
		}
		for _, val := range pred.Values {
			v.literal(pred.Field, val)
		}
	case *In:
		v.validatePredicate(*pred)
	case IsNull:
		v.identifier("field", pred.Field)
	case *IsNull:
		v.validatePredicate(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		v.validatePredicate(*pred)
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) identifier(kind, name string) {
	if !identifierPattern.MatchString(name) {
		v.addError("%s name %q is not a plain identifier", kind, name)
	}
}

func (v *validator) literal(field string, val any) {
	switch val.(type) {
	case string, int, int64, bool:
	default:
		v.addError("field %q compared to unsupported literal type %T", field, val)
	}
}
