//go:build test

package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextAsserter_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		opts     []TextOption
		match    bool
	}{
		{name: "identical", actual: "a\nb", expected: "a\nb", match: true},
		{name: "surrounding space trimmed by default", actual: "\n  a\nb  \n", expected: "a\nb", match: true},
		{name: "trailing whitespace ignored", actual: "a  \nb\t", expected: "a\nb", match: true},
		{name: "empty lines kept by default", actual: "a\n\nb", expected: "a\nb", match: false},
		{name: "empty lines dropped", actual: "a\n\nb", expected: "a\nb", opts: []TextOption{WithIgnoreEmptyLines(true)}, match: true},
		{name: "strict trailing whitespace", actual: "a ", expected: "a", opts: []TextOption{WithTrimSpace(false), WithIgnoreTrailingWhitespace(false)}, match: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &recordingT{}
			ok := NewTextAsserter(rt).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.match, ok)
		})
	}
}

func TestTextAsserter_DiffOutput(t *testing.T) {
	ta := NewTextAsserter(&recordingT{})
	d := ta.Diff("state: poweredOff", "state: poweredOn")
	assert.Contains(t, d, "--- expected")
	assert.Contains(t, d, "+++ actual")
	assert.Contains(t, d, "-state: poweredOn")
	assert.Contains(t, d, "+state: poweredOff")

	colored := ta.WithOptions(WithEnableColors(true)).Diff("a b", "a c")
	assert.Contains(t, colored, "\x1b[", "colored diff MUST contain ANSI escapes")
	assert.Contains(t, colored, "a·b", "whitespace MUST be visible in changed lines")
}
