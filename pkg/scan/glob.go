// Walks over a list can be narrowed down to the nodes whose data id matches a glob pattern; the following module
// implements glob matching over any stream of keyed items.

package scan

import (
	"fmt"
	"iter"

	"v.io/v23/glob"
)

// MatchGlob yields the items of `items` whose key matches the glob `pattern`. An empty pattern matches everything.
func MatchGlob[T any](pattern string, key func(T) string, items iter.Seq[T]) (iter.Seq[T], error) {
	if pattern == "" {
		return items, nil
	}
	parsedPattern, err := glob.Parse(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return func(yield func(T) bool) {
		for item := range items {
			if parsedPattern.Head().Match(key(item)) {
				if !yield(item) {
					return
				}
			}
		}
	}, nil
}
