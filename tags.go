package di

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
)

// PriorityAttribute is the tag attribute used to order tagged services.
const PriorityAttribute = "priority"

// Attributes is the metadata attached to a tag.
//
// Attributes are never interpreted by the container itself. Compiler passes
// read them to decide how to wire the tagged service.
type Attributes map[string]any

// String returns the attribute as a string, or def if it is not set.
func (a Attributes) String(key, def string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the attribute as an int, or def if it is not set or not numeric.
func (a Attributes) Int(key string, def int) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// Priority returns the priority attribute, defaulting to 0.
func (a Attributes) Priority() int {
	return a.Int(PriorityAttribute, 0)
}

// Tag is a label plus attributes attached to a [Definition].
type Tag struct {
	Name       string
	Attributes Attributes
}

// TaggedService is a service found by [ContainerBuilder.FindTaggedServiceIDs].
//
// A definition carrying the same tag more than once yields one TaggedService per tag.
type TaggedService struct {
	ID         string
	Attributes Attributes

	seq int
}

// SortByPriority orders tagged services by their priority attribute.
// Higher priorities come first; ties keep registration order.
//
// The slice is sorted in place and returned.
func SortByPriority(svcs []TaggedService) []TaggedService {
	slices.SortStableFunc(svcs, func(a, b TaggedService) int {
		if c := cmp.Compare(b.Attributes.Priority(), a.Attributes.Priority()); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return svcs
}
