package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordingT) Helper() {}

func TestTextAsserter(t *testing.T) {
	rt := &recordingT{}
	ta := NewTextAsserter(rt)

	assert.True(t, ta.Assert("a  \nb\n", "a\nb"), "trailing space and final newline MUST be ignored")
	assert.Empty(t, rt.errors)

	assert.False(t, ta.Assert("a\nc\n", "a\nb\n"))
	assert.Len(t, rt.errors, 1)
	assert.Contains(t, rt.errors[0], "-b")
	assert.Contains(t, rt.errors[0], "+c")

	assert.Empty(t, ta.SkipEmptyLines(true).Diff("a\n\nb", "a\nb"))
	assert.Contains(t, ta.WithColors(true).Diff("x", "y"), "\x1b[")
}

func TestJSONAsserter(t *testing.T) {
	rt := &recordingT{}
	ja := NewJSONAsserter(rt).Ignoring("time")

	actual := `{"time":"now","event":"connected","device":"A","name":"H10"}
{"time":"later","event":"battery","device":"A","level":80}`

	assert.True(t, ja.AssertLines(actual, `
{"event":"connected","device":"A"}
{"event":"battery","device":"A","level":"<<PRESENCE>>"}
`), "extra keys and presence placeholders MUST match")
	assert.Empty(t, rt.errors)

	assert.False(t, ja.AssertLines(actual, `{"event":"connected","device":"A"}`))
	assert.Contains(t, rt.errors[0], "expected 1 records, got 2")

	assert.NotEmpty(t, ja.Diff(`{"level":80}`, `{"level":81}`))
	assert.Contains(t, ja.Diff(`{`, `{}`), "invalid actual JSON")
}
