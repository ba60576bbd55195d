package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindingMatches(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		key     string
		want    bool
	}{
		{"literal exact", "order.new", "order.new", true},
		{"literal mismatch", "order.new", "order.cancel", false},
		{"literal is anchored", "order.new", "order.new.extra", false},
		{"literal dot not a wildcard", "order.new", "orderxnew", false},

		{"star single segment", "order.*", "order.new", true},
		{"star rejects extra segment", "order.*", "order.new.extra", false},
		{"star rejects empty segment", "order.*", "order.", false},
		{"star rejects bare prefix", "order.*", "order", false},
		{"star mid-pattern", "order.*.shipped", "order.123.shipped", true},
		{"star mid-pattern extra", "order.*.shipped", "order.1.2.shipped", false},
		{"double star", "*.*", "order.new", true},
		{"double star single key", "*.*", "order", false},

		{"hash any suffix", "order.#", "order.new.extra", true},
		{"hash single segment", "order.#", "order.new", true},
		{"hash is anchored left", "order.#", "neworder.x", false},
		{"hash alone matches everything", "#", "a.b.c", true},
		{"hash alone matches empty", "#", "", true},
		{"hash mid-pattern", "order.#.shipped", "order.1.2.shipped", true},

		// With a "#" present, "*" stays a literal character.
		{"hash wins over star", "order.#.*", "order.x.*", true},
		{"hash wins over star mismatch", "order.#.*", "order.x.y", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := compileBinding(tt.pattern, "q")
			assert.Equal(t, tt.want, b.matches(tt.key),
				"pattern %q against key %q", tt.pattern, tt.key)
		})
	}
}

func TestCompileBindingLiteralHasNoMatcher(t *testing.T) {
	assert.Nil(t, compileBinding("order.new", "q").matcher)
	assert.NotNil(t, compileBinding("order.*", "q").matcher)
	assert.NotNil(t, compileBinding("order.#", "q").matcher)
}

func TestCloneTable(t *testing.T) {
	assert.Nil(t, cloneTable(nil))

	in := map[string]interface{}{"key": "value", "num": 42}
	out := cloneTable(in)
	assert.Equal(t, "value", out["key"])
	assert.Equal(t, 42, out["num"])

	out["key"] = "changed"
	assert.Equal(t, "value", in["key"])
}
