package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var colors = Table{
	Name: "colors",
	Rules: []Rule{
		{Tag: "red", Keywords: []string{"red", "crimson"}},
		{Tag: "blue", Keywords: []string{"blue", "navy"}},
	},
}

func TestTable_Match(t *testing.T) {
	tag, ok := colors.Match("A NAVY coat")
	assert.True(t, ok)
	assert.Equal(t, "blue", tag)

	_, ok = colors.Match("green")
	assert.False(t, ok)
}

func TestTable_MatchPriorityOverPosition(t *testing.T) {
	// blue appears first in the text but red is earlier in the table
	assert.Equal(t, "red", colors.MatchOr("blue and crimson", "none"))
}

func TestTable_MatchOr(t *testing.T) {
	assert.Equal(t, "none", colors.MatchOr("", "none"))
}

func TestTable_Tags(t *testing.T) {
	assert.Equal(t, []string{"red", "blue"}, colors.Tags())
}
