//go:build test

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

func TestJSONAsserter_Defaults(t *testing.T) {
	opts := NewJSONAsserter(t).options
	assert.True(t, opts.IgnoreExtraKeys)
	assert.True(t, opts.AllowPresencePlaceholder)
	assert.False(t, opts.IgnoreArrayOrder)
}

func TestJSONAsserter_Match(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		opts     []Option
		match    bool
	}{
		{
			name:     "identical",
			actual:   `{"name":"ble.data","address":"AA:BB"}`,
			expected: `{"name":"ble.data","address":"AA:BB"}`,
			match:    true,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"name":"ble.data","value":[1,2]}`,
			expected: `{"name":"ble.data"}`,
			match:    true,
		},
		{
			name:     "extra keys rejected when configured",
			actual:   `{"name":"ble.data","value":[1,2]}`,
			expected: `{"name":"ble.data"}`,
			opts:     []Option{WithIgnoreExtraKeys(false)},
			match:    false,
		},
		{
			name:     "presence placeholder",
			actual:   `{"name":"ble.discover","rssi":-61}`,
			expected: `{"name":"ble.discover","rssi":"<<PRESENCE>>"}`,
			match:    true,
		},
		{
			name:     "placeholder requires the key",
			actual:   `{"name":"ble.discover"}`,
			expected: `{"name":"ble.discover","rssi":"<<PRESENCE>>"}`,
			match:    false,
		},
		{
			name:     "ignored fields at depth",
			actual:   `[{"name":"a","at":1},{"name":"b","at":2}]`,
			expected: `[{"name":"a","at":9},{"name":"b"}]`,
			opts:     []Option{WithIgnoredFields("at")},
			match:    true,
		},
		{
			name:     "array order matters by default",
			actual:   `["180f","180d"]`,
			expected: `["180d","180f"]`,
			match:    false,
		},
		{
			name:     "array order ignored when configured",
			actual:   `["180f","180d"]`,
			expected: `["180d","180f"]`,
			opts:     []Option{WithIgnoreArrayOrder(true)},
			match:    true,
		},
		{
			name:     "value mismatch",
			actual:   `{"value":[0,72]}`,
			expected: `{"value":[0,73]}`,
			match:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &recordingT{}
			ok := NewJSONAsserter(rt).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.match, ok)
			assert.Equal(t, !tt.match, len(rt.errors) > 0)
		})
	}
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	ja := NewJSONAsserter(&recordingT{})
	assert.Contains(t, ja.Diff(`{`, `{}`), "invalid actual JSON")
	assert.Contains(t, ja.Diff(`{}`, `{`), "invalid expected JSON")
}

func TestJSONAsserter_AssertValue(t *testing.T) {
	NewJSONAsserter(t).AssertValue(map[string]any{"services": []string{"180d"}}, `{"services":["180d"]}`)
}
