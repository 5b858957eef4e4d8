// Package mirror maintains the local projection of one remote service's state.
package mirror

import (
	"fmt"
	"log/slog"

	"github.com/mitchellh/copystructure"
)

// State is the field→value projection of a service. Values are generic
// decoded values (maps, slices, numbers, strings, bools, nil).
type State map[string]any

// Get returns the value stored under key and whether the field is present.
// A present field may hold nil.
func (s State) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// Has reports whether key is present.
func (s State) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Clone returns a deep copy of s. Nested maps, slices and pointers are
// copied whatever their element type, so the result shares nothing mutable
// with s.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64, float32, int, int64, int32, uint64, uint32:
		return v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = cloneValue(inner)
		}
		return out
	case State:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	}
	// Typed containers such as []string or map[string]int handed in by callers.
	out, err := copystructure.Copy(v)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - cannot copy %T, storing it as is: %v", logPrefix, v, err))
		return v
	}
	return out
}
