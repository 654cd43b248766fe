package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Presence matches any value of an expected key.
const Presence = "<<PRESENCE>>"

// JSONAsserter compares JSON-lines output record by record.
// Keys absent from an expected record are ignored in the actual one.
type JSONAsserter struct {
	t       TestingT
	ignored map[string]bool
}

// NewJSONAsserter creates an asserter.
func NewJSONAsserter(t TestingT) *JSONAsserter {
	return &JSONAsserter{t: t, ignored: make(map[string]bool)}
}

// Ignoring drops the named keys from both sides before comparison.
func (ja *JSONAsserter) Ignoring(keys ...string) *JSONAsserter {
	for _, k := range keys {
		ja.ignored[k] = true
	}
	return ja
}

// AssertLines compares newline-separated JSON objects.
func (ja *JSONAsserter) AssertLines(actual, expected string) bool {
	ja.t.Helper()
	got := splitLines(actual)
	want := splitLines(expected)
	if len(got) != len(want) {
		ja.t.Errorf("JSON lines: expected %d records, got %d:\n%s", len(want), len(got), actual)
		return false
	}
	ok := true
	for i := range want {
		if d := ja.Diff(got[i], want[i]); d != "" {
			ja.t.Errorf("JSON record %d differs:\n%s", i, d)
			ok = false
		}
	}
	return ok
}

// Diff returns "" when actual matches expected.
func (ja *JSONAsserter) Diff(actual, expected string) string {
	var want, got map[string]interface{}
	if err := json.Unmarshal([]byte(expected), &want); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actual), &got); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	for k := range got {
		if _, keep := want[k]; !keep || ja.ignored[k] {
			delete(got, k)
		}
	}
	for k, v := range want {
		if ja.ignored[k] {
			delete(want, k)
			continue
		}
		if s, isStr := v.(string); isStr && s == Presence {
			if _, present := got[k]; present {
				want[k] = got[k]
			}
		}
	}

	diff := gojsondiff.New().CompareObjects(want, got)
	if !diff.Modified() {
		return ""
	}
	out, err := formatter.NewAsciiFormatter(want, formatter.AsciiFormatterConfig{ShowArrayIndex: true}).Format(diff)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	return out
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
