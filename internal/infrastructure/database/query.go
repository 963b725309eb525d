package database

import (
	"fmt"
	"reflect"
	"strings"
)

// Query composition constants.
const (
	// rawSpliceMarker ends a fragment whose following substitution is a
	// nested Query to be inlined rather than bound.
	rawSpliceMarker = "$"

	// placeholder is the positional bind marker between fragments.
	placeholder = "?"
)

// Query is SQL text split into literal fragments around bound parameters.
//
// There is always exactly one more fragment than parameters. A Query is an
// immutable value: accessors return copies, so it can be shared freely.
// The zero Query is not valid and is rejected by raw splicing and by the
// Database facade.
type Query struct {
	fragments  []string
	parameters []any
}

// Sequence is a substitution that expands into a parenthesised list of
// placeholders, one per element. Build one with List, ListOf, Set or SetOf.
type Sequence struct {
	values []any
}

// List returns a Sequence over values in the given order.
//
// Example:
//
//	q, err := database.Compose([]string{`SELECT * FROM users WHERE name IN `, ``},
//	    database.List("Ada", "Grace"))
//	// q.Source() == `SELECT * FROM users WHERE name IN (?,?)`
func List(values ...any) Sequence {
	return Sequence{values: append([]any(nil), values...)}
}

// ListOf returns a Sequence over a typed slice.
func ListOf[T any](values []T) Sequence {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return Sequence{values: out}
}

// Set returns a Sequence over values with duplicates removed, keeping the
// first occurrence of each.
func Set(values ...any) Sequence {
	seen := make(map[any]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		key := setKey(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return Sequence{values: out}
}

// SetOf returns a Sequence over a typed slice with duplicates removed.
func SetOf[T comparable](values []T) Sequence {
	seen := make(map[T]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return Sequence{values: out}
}

// Len returns the number of elements in the sequence.
func (s Sequence) Len() int {
	return len(s.values)
}

// printedKey keys uncomparable set members by their printed form.
type printedKey struct {
	text string
}

// setKey makes a map key for v. Uncomparable values such as []byte are
// keyed by their printed form.
func setKey(v any) any {
	if v == nil {
		return nil
	}
	if reflect.TypeOf(v).Comparable() {
		return v
	}
	return printedKey{text: fmt.Sprintf("%T:%v", v, v)}
}

// Compose builds a Query from literal fragments and the substitutions that
// sit between them. len(fragments) must equal len(substitutions)+1.
//
// Each boundary is resolved left to right:
//   - if the fragment before it ends with "$", the marker is stripped and the
//     substitution must be a Query (or non-nil *Query) built by Compose; its
//     fragments and parameters are spliced inline with no placeholder of
//     their own
//   - a Sequence expands to "(?,?,...)", or "()" when empty
//   - anything else is a scalar bound to a single "?"
//
// Booleans are bound as the integers 1 and 0.
//
// Parameters:
//   - fragments: Literal SQL text around each substitution
//   - substitutions: Values for each boundary
//
// Returns:
//   - Query: The composed query
//   - error: ErrFragmentCount or an *InterpolationError
func Compose(fragments []string, substitutions ...any) (Query, error) {
	if len(fragments) != len(substitutions)+1 {
		return Query{}, fmt.Errorf("%w: got %d fragments for %d substitutions",
			ErrFragmentCount, len(fragments), len(substitutions))
	}

	// current accumulates the fragment being built; it is flushed each time
	// a placeholder is emitted.
	var (
		out        []string
		parameters []any
		current    strings.Builder
	)

	for i, sub := range substitutions {
		fragment := fragments[i]

		if strings.HasSuffix(fragment, rawSpliceMarker) {
			nested, ok := asQuery(sub)
			if !ok {
				return Query{}, &InterpolationError{Value: sub}
			}
			current.WriteString(strings.TrimSuffix(fragment, rawSpliceMarker))
			current.WriteString(nested.fragments[0])
			for j, p := range nested.parameters {
				out = append(out, current.String())
				current.Reset()
				parameters = append(parameters, p)
				current.WriteString(nested.fragments[j+1])
			}
			continue
		}

		current.WriteString(fragment)

		if seq, ok := sub.(Sequence); ok {
			if len(seq.values) == 0 {
				current.WriteString("()")
				continue
			}
			current.WriteString("(")
			for j, v := range seq.values {
				if j > 0 {
					out = append(out, current.String())
					current.Reset()
					current.WriteString(",")
					parameters = append(parameters, normaliseScalar(v))
					continue
				}
				parameters = append(parameters, normaliseScalar(v))
			}
			out = append(out, current.String())
			current.Reset()
			current.WriteString(")")
			continue
		}

		out = append(out, current.String())
		current.Reset()
		parameters = append(parameters, normaliseScalar(sub))
	}

	current.WriteString(fragments[len(fragments)-1])
	out = append(out, current.String())

	return Query{fragments: out, parameters: parameters}, nil
}

// MustCompose is like Compose but panics on error. It is meant for queries
// whose shape is fixed at compile time.
func MustCompose(fragments []string, substitutions ...any) Query {
	q, err := Compose(fragments, substitutions...)
	if err != nil {
		panic(err)
	}
	return q
}

// Static returns a parameter-free Query for text, suitable for Execute.
func Static(text string) Query {
	return Query{fragments: []string{text}}
}

// asQuery reports whether v is a structurally valid Query.
func asQuery(v any) (Query, bool) {
	var q Query
	switch t := v.(type) {
	case Query:
		q = t
	case *Query:
		if t == nil {
			return Query{}, false
		}
		q = *t
	default:
		return Query{}, false
	}
	return q, q.valid()
}

// normaliseScalar maps booleans onto SQLite's integer representation.
func normaliseScalar(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func (q Query) valid() bool {
	return len(q.fragments) == len(q.parameters)+1
}

// Source returns the SQL text with a "?" at every parameter position.
// It is the key used by the statement cache.
func (q Query) Source() string {
	return strings.Join(q.fragments, placeholder)
}

// Parameters returns a copy of the bound parameters in placeholder order.
func (q Query) Parameters() []any {
	return append([]any(nil), q.parameters...)
}

// Fragments returns a copy of the literal fragments.
func (q Query) Fragments() []string {
	return append([]string(nil), q.fragments...)
}

// String renders the query for error messages and logs.
func (q Query) String() string {
	return fmt.Sprintf("Query{source: %q, parameters: %v}", q.Source(), q.parameters)
}
