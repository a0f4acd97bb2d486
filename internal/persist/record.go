package persist

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrTagNotFound is returned when a record has no value for a tag
var ErrTagNotFound = errors.New("tag not found")

// Writer stores tagged values
type Writer interface {
	SetVersion(tag string, major, minor, revision int)
	SetString(tag, value string)
	SetBoolean(tag string, value bool)
}

// Reader retrieves tagged values
type Reader interface {
	GetVersion(tag string) (Version, error)
	GetString(tag string) (string, error)
	TryGetBoolean(tag string) (bool, bool)
}

// Record is an in-memory set of tagged values. It is the shape every backend
// loads into and saves from.
type Record struct {
	mu     sync.RWMutex
	values map[string]any
}

var (
	_ Reader = &Record{}
	_ Writer = &Record{}
)

// NewRecord creates an empty record
func NewRecord() *Record {
	return &Record{values: map[string]any{}}
}

// newRecordFrom takes ownership of values
func newRecordFrom(values map[string]any) *Record {
	if values == nil {
		values = map[string]any{}
	}
	return &Record{values: values}
}

func (r *Record) SetVersion(tag string, major, minor, revision int) {
	r.set(tag, []int{major, minor, revision})
}

func (r *Record) SetString(tag, value string) {
	r.set(tag, value)
}

func (r *Record) SetBoolean(tag string, value bool) {
	r.set(tag, value)
}

func (r *Record) GetVersion(tag string) (Version, error) {
	raw, ok := r.get(tag)
	if !ok {
		return Version{}, fmt.Errorf("%w: %s", ErrTagNotFound, tag)
	}

	parts, err := toInts(raw)
	if err != nil || len(parts) != 3 {
		return Version{}, fmt.Errorf("tag %s does not hold a version: %v", tag, raw)
	}
	return Version{Major: parts[0], Minor: parts[1], Revision: parts[2]}, nil
}

func (r *Record) GetString(tag string) (string, error) {
	raw, ok := r.get(tag)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTagNotFound, tag)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("tag %s does not hold a string: %v", tag, raw)
	}
	return s, nil
}

func (r *Record) TryGetBoolean(tag string) (bool, bool) {
	raw, ok := r.get(tag)
	if !ok {
		return false, false
	}
	b, ok := raw.(bool)
	return b, ok
}

// Tags returns the tags present in the record, sorted
func (r *Record) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.values))
}

// Values returns a copy of the raw tagged values
func (r *Record) Values() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.values)
}

func (r *Record) set(tag string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[tag] = value
}

func (r *Record) get(tag string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[tag]
	return value, ok
}

// toInts accepts the shapes a version comes back as from YAML or JSON decoding
func toInts(raw any) ([]int, error) {
	switch v := raw.(type) {
	case []int:
		return v, nil
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case int64:
				out = append(out, int(n))
			case float64:
				out = append(out, int(n))
			default:
				return nil, fmt.Errorf("unexpected version part %T", item)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected version %T", raw)
}
