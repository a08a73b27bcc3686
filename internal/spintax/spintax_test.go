package spintax_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pagebot/internal/spintax"
)

func TestExpand_ResolvesToKnownAlternatives(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		allowed []string
	}{
		{name: "No braces", input: "no braces", allowed: []string{"no braces"}},
		{name: "Single group", input: "{a|b}", allowed: []string{"a", "b"}},
		{name: "Nested group", input: "{{a|b}|c}", allowed: []string{"a", "b", "c"}},
		{name: "Groups with text", input: "Hi {there|friend}, {thanks|cheers}!", allowed: []string{
			"Hi there, thanks!", "Hi there, cheers!", "Hi friend, thanks!", "Hi friend, cheers!",
		}},
		{name: "Single alternative", input: "{only}", allowed: []string{"only"}},
		{name: "Empty alternative", input: "x{|y}", allowed: []string{"x", "xy"}},
		{name: "Arabic text", input: "{شكرا|مرحبا} لك", allowed: []string{"شكرا لك", "مرحبا لك"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for range 200 {
				assert.Contains(t, tt.allowed, spintax.Expand(tt.input))
			}
		})
	}
}

func TestExpand_CoversEveryAlternative(t *testing.T) {
	t.Parallel()

	e := spintax.NewExpander(rand.New(rand.NewPCG(1, 2)))
	seen := map[string]bool{}
	for range 500 {
		seen[e.Expand("{{a|b}|c}")] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
}

func TestExpand_MalformedTerminates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Unclosed", input: "hello {world", expected: "hello {world"},
		{name: "Unopened", input: "hello world}", expected: "hello world}"},
		{name: "Empty group", input: "a{}b", expected: "a{}b"},
		{name: "Only braces", input: "{{{}}}", expected: "{{{}}}"},
		{name: "Unclosed outer around group", input: "{x {a|a}", expected: "{x a"},
		{name: "Stray closer after group", input: "{a|a}}", expected: "a}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, spintax.Expand(tt.input))
		})
	}
}

func TestExpand_Deterministic(t *testing.T) {
	t.Parallel()

	a := spintax.NewExpander(rand.New(rand.NewPCG(7, 7)))
	b := spintax.NewExpander(rand.New(rand.NewPCG(7, 7)))
	for range 20 {
		tmpl := "{Thanks|Thank you} {for|about} {your {comment|note}|reaching out}"
		require.Equal(t, a.Expand(tmpl), b.Expand(tmpl))
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, spintax.Validate("plain"))
	assert.NoError(t, spintax.Validate("{a|{b|c}}"))
	assert.ErrorIs(t, spintax.Validate("{a|b"), spintax.ErrUnbalanced)
	assert.ErrorIs(t, spintax.Validate("a|b}"), spintax.ErrUnbalanced)
	assert.ErrorIs(t, spintax.Validate("}{"), spintax.ErrUnbalanced)
}
