package judge

import (
	"encoding/json"
	"reflect"
	"strings"
)

// OutputsMatch decides whether a contestant's output answers a test case.
// Both sides are normalized (line endings, incidental whitespace) before a
// string comparison; when both look like structured JSON they are compared
// structurally instead, so key order and formatting cannot fail a correct
// answer.
func OutputsMatch(expected, actual string) bool {
	e := normalizeOutput(expected)
	a := normalizeOutput(actual)
	if e == a {
		return true
	}
	if looksStructured(e) && looksStructured(a) {
		return jsonEqual(e, a)
	}
	return false
}

func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}

// looksStructured gates the JSON comparison to objects and arrays. Bare
// scalars stay in string space: "1.0" and "1" are both valid JSON numbers
// but must not be coerced equal.
func looksStructured(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

func jsonEqual(a, b string) bool {
	var av, bv any
	if err := json.Unmarshal([]byte(a), &av); err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(b), &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
