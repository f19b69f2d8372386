package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableIncludesCells(t *testing.T) {
	f := NewTableFormatter()
	out := f.Table([]string{"Variant", "Users"}, [][]string{{"A", "120"}, {"B", "98"}})

	for _, want := range []string{"Variant", "Users", "A", "120", "B", "98"} {
		assert.Contains(t, out, want)
	}
}

func TestKeyValue(t *testing.T) {
	f := NewTableFormatter()
	out := f.KeyValue([][2]string{{"Session", "01J"}, {"Events", "4"}})
	assert.Contains(t, out, "Session")
	assert.Contains(t, out, "01J")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "ユーザ...", Truncate("ユーザーです", 6))
}
