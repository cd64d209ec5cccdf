package scan

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyedItem struct {
	key   string
	value int
}

func itemKey(item keyedItem) string { return item.key }

func TestMatchGlob(t *testing.T) {
	items := []keyedItem{{key: "key1", value: 1}, {key: "key2", value: 2}, {key: "anotherkey", value: 3}}

	for _, testCase := range []struct {
		name     string
		glob     string
		expected []keyedItem
	}{
		{name: "empty_pattern", glob: "", expected: items},
		{name: "match_all", glob: "*", expected: items},
		{name: "match_with_question_mark", glob: "key?", expected: items[:2]},
		{name: "match_with_star_at_the_end", glob: "key*", expected: items[:2]},
		{name: "match_with_star_at_the_beginning", glob: "*key", expected: items[2:]},
		{name: "match_with_multiple_stars", glob: "*key*", expected: items},
		{name: "no_match", glob: "nomatch", expected: nil},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			seq, err := MatchGlob(testCase.glob, itemKey, slices.Values(items))
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, slices.Collect(seq))
		})
	}
}

func TestMatchGlob_StopsEarly(t *testing.T) {
	items := []keyedItem{{key: "a1"}, {key: "a2"}, {key: "a3"}}
	seq, err := MatchGlob("a*", itemKey, slices.Values(items))
	require.NoError(t, err)
	var got []string
	for item := range seq {
		got = append(got, item.key)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a1", "a2"}, got)
}
