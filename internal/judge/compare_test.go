package judge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codemonster/judge/internal/judge"
)

func TestOutputsMatchWhitespace(t *testing.T) {
	cases := []struct {
		name     string
		expected string
		actual   string
		match    bool
	}{
		{"exact", "1 2 3", "1 2 3", true},
		{"surrounding whitespace", "1 2 3", "  1 2 3  \n", true},
		{"crlf line endings", "a\nb\nc", "a\r\nb\r\nc\r\n", true},
		{"per line edge trim", "a\nb", "  a  \n  b  ", true},
		{"inner whitespace collapsed", "1 2 3", "1   2\t3", true},
		{"different values", "1 2 3", "1 2 4", false},
		{"missing line", "a\nb", "a", false},
		{"empty vs nonempty", "", "x", false},
		{"both empty", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.match, judge.OutputsMatch(tc.expected, tc.actual))
		})
	}
}

func TestOutputsMatchStructuredJSON(t *testing.T) {
	assert.True(t, judge.OutputsMatch(`{"a":1,"b":2}`, `{"b": 2, "a": 1}`))
	assert.True(t, judge.OutputsMatch(`[1,2,3]`, `[ 1, 2, 3 ]`))
	assert.True(t, judge.OutputsMatch(`{"a":{"b":[1,2]}}`, `{ "a" : { "b" : [1, 2] } }`))

	assert.False(t, judge.OutputsMatch(`{"a":1}`, `{"a":2}`))
	assert.False(t, judge.OutputsMatch(`[1,2]`, `[2,1]`))
	assert.False(t, judge.OutputsMatch(`{"a":1}`, `not json`))
}

func TestOutputsMatchNoNumericCoercion(t *testing.T) {
	// Scalars are compared as text: "1.0" and "1" both parse as JSON
	// numbers but are different answers.
	assert.False(t, judge.OutputsMatch("1.0", "1"))
	assert.False(t, judge.OutputsMatch(`"1"`, "1"))
	assert.True(t, judge.OutputsMatch("1.0", "1.0"))
}
