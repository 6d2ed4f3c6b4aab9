// Package validation evaluates declarative field constraints against form
// values. Evaluation is pure: the same values and set always produce the
// same errors.
package validation

// Values holds submitted form values keyed by field name. Checkboxes carry
// "on" (or any non-empty value) when ticked.
type Values map[string]string

// Predicate reports whether field is valid. It sees every value so rules can
// compare fields.
type Predicate func(field string, values Values) bool

// Rule is one predicate and the message shown when it fails.
type Rule struct {
	Test    Predicate
	Message string
}

// FieldRules is the ordered rule list for one field.
type FieldRules struct {
	Field string
	Rules []Rule
}

// ConstraintSet is the ordered rule table for one form.
type ConstraintSet []FieldRules

// Field declares the rules for a single field.
func Field(name string, rules ...Rule) FieldRules {
	return FieldRules{Field: name, Rules: rules}
}

// Set builds a ConstraintSet from field declarations.
func Set(fields ...FieldRules) ConstraintSet {
	return ConstraintSet(fields)
}

// Fields lists the field names in declaration order.
func (s ConstraintSet) Fields() []string {
	names := make([]string, 0, len(s))
	for _, f := range s {
		names = append(names, f.Field)
	}
	return names
}

// Errors maps every field of a set to its failing messages. An empty list
// means the field is valid.
type Errors map[string][]string

// Valid reports whether no field has messages.
func (e Errors) Valid() bool {
	for _, msgs := range e {
		if len(msgs) > 0 {
			return false
		}
	}
	return true
}

// First returns the first message for field, or "".
func (e Errors) First(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Invalid returns the names of fields with at least one message.
func (e Errors) Invalid() []string {
	var out []string
	for field, msgs := range e {
		if len(msgs) > 0 {
			out = append(out, field)
		}
	}
	return out
}

// Merge appends messages from other (e.g. server-side 422 errors) into a copy of e.
func (e Errors) Merge(other map[string][]string) Errors {
	out := make(Errors, len(e)+len(other))
	for field, msgs := range e {
		out[field] = append([]string{}, msgs...)
	}
	for field, msgs := range other {
		out[field] = append(out[field], msgs...)
	}
	return out
}

// Validate runs every rule of set against values.
func Validate(values Values, set ConstraintSet) Errors {
	errs := make(Errors, len(set))
	for _, f := range set {
		msgs := []string{}
		for _, r := range f.Rules {
			if !r.Test(f.Field, values) {
				msgs = append(msgs, r.Message)
			}
		}
		errs[f.Field] = append(errs[f.Field], msgs...)
		if errs[f.Field] == nil {
			errs[f.Field] = []string{}
		}
	}
	return errs
}
