package filter

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	objgraph "github.com/goliatone/go-objgraph"
)

// Glob returns a writer filter matching "Type/property" subjects against
// doublestar patterns. A property is kept when it matches an include pattern
// (or include is empty) and matches no exclude pattern.
func Glob(include, exclude []string) (objgraph.Filter, error) {
	for _, pattern := range append(append([]string(nil), include...), exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("filter: invalid glob pattern %q", pattern)
		}
	}
	return func(obj *objgraph.Object, prop *objgraph.Property) bool {
		subject := obj.Type().Name() + "/" + prop.Name
		if len(include) > 0 && !matchAny(include, subject) {
			return false
		}
		return !matchAny(exclude, subject)
	}, nil
}

func matchAny(patterns []string, subject string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, subject); ok {
			return true
		}
	}
	return false
}
