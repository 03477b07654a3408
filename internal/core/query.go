package core

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Query maps dimension ids to the value, or list of values, a fetch should
// be restricted to. Sources interpret it.
type Query map[string]any

// Clone returns a deep copy of q. Nested maps and slices are copied.
func (q Query) Clone() Query {
	if q == nil {
		return nil
	}
	out := make(Query, len(q))
	for k, v := range q {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Query:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Canonical returns the canonical JSON form of q. Object keys are sorted at
// every depth, so equal queries produce equal bytes. Nil and empty queries
// are both "{}".
func (q Query) Canonical() ([]byte, error) {
	if len(q) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string]any(q))
	if err != nil {
		return nil, fmt.Errorf("canonical query: %w", err)
	}
	return b, nil
}

// Hash returns the cache key of q: the hex xxhash64 of its canonical form.
func (q Query) Hash() (string, error) {
	b, err := q.Canonical()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16), nil
}

// Values returns the entry for key as a list. Scalars become a
// single-element list; a missing key yields nil.
func (q Query) Values(key string) []any {
	v, ok := q[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}
