// Package vector provides named vector indexes with filtered similarity search and
// replace-by-filter upserts.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrIndexNotFound means the named index was never created.
	ErrIndexNotFound = errors.New("index not found")
	// ErrDimensionMismatch means an index exists with a different vector dimension
	// than requested. It is a configuration error and is never resolved silently.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrEmptyFilter is returned by DeleteByFilter for a filter without conditions.
	ErrEmptyFilter = errors.New("filter has no conditions")
)

// Record is the unit stored in an index.
type Record struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata"`
}

// Result is a query hit. Score is the cosine similarity between the query and the
// record vector, in [-1, 1]; higher is more similar.
type Result struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Index is a store of named, dimensioned collections of records.
type Index interface {
	// EnsureIndex creates the named index if it does not exist. It returns
	// ErrDimensionMismatch if the index exists with a different dimension.
	EnsureIndex(ctx context.Context, name string, dimension int) error
	// Upsert replaces every record matching deleteFilter with records. An empty
	// deleteFilter deletes nothing. Records whose ID already exists are overwritten.
	Upsert(ctx context.Context, name string, records []Record, deleteFilter Filter) error
	// Query returns up to topK records matching filter, by descending score.
	Query(ctx context.Context, name string, vector []float32, topK int, filter Filter) ([]Result, error)
	// DeleteByFilter removes every record matching filter, which must not be empty.
	DeleteByFilter(ctx context.Context, name string, filter Filter) error
	// Count returns the number of records matching filter.
	Count(ctx context.Context, name string, filter Filter) (int, error)
	Close() error
}

// Condition matches records whose metadata value for Key, in string form, is one of Values.
type Condition struct {
	Key    string
	Values []string
}

// Filter is a conjunction of conditions. An empty filter matches every record.
type Filter []Condition

// Match returns a condition requiring key to equal value.
func Match(key, value string) Condition {
	return Condition{Key: key, Values: []string{value}}
}

// MatchAny returns a condition requiring key to equal one of values.
func MatchAny(key string, values ...string) Condition {
	return Condition{Key: key, Values: values}
}

// Matches reports whether metadata satisfies every condition of f.
func (f Filter) Matches(metadata map[string]any) bool {
	for _, c := range f {
		v, ok := metadata[c.Key]
		if !ok {
			return false
		}
		s := ValueString(v)
		found := false
		for _, want := range c.Values {
			if s == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ValueString returns the string form of a metadata value used for filtering.
// Integral numbers print without a fractional part.
func ValueString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func checkDimension(name string, want int, vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%w: index %q has dimension %d, got vector of length %d", ErrDimensionMismatch, name, want, len(v))
		}
	}
	return nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: %q", ErrIndexNotFound, name)
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// finite reports whether every component of v is a finite number.
func finite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}
