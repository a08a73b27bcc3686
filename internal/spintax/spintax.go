// Package spintax expands reply templates written in the alternation
// mini-language, where {a|b|c} stands for one alternative picked at random.
package spintax

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// ErrUnbalanced is returned by Validate when a template has a brace without a partner.
var ErrUnbalanced = errors.New("unbalanced braces in template")

// Expander resolves alternation groups using its own random source.
type Expander struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewExpander returns an Expander drawing choices from rnd.
// A nil rnd gets a freshly seeded source.
func NewExpander(rnd *rand.Rand) *Expander {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Expander{rnd: rnd}
}

var defaultExpander = NewExpander(nil)

// Expand resolves tmpl with the process-wide random source.
func Expand(tmpl string) string {
	return defaultExpander.Expand(tmpl)
}

// Expand replaces the leftmost innermost group with one of its alternatives
// and rescans, until no group is left. Resolving an inner group can expose an
// outer one ("{{a|b}|c}" -> "{a|c}"), so a single pass is not enough.
//
// Every substitution consumes two braces, which bounds the loop by the brace
// count. Braces that never form a group ("{", "}", "{}") are kept as text.
func (e *Expander) Expand(tmpl string) string {
	out := tmpl
	for range len(tmpl) + 1 {
		start, end, ok := innermostGroup(out)
		if !ok {
			return out
		}
		options := strings.Split(out[start+1:end], "|")
		out = out[:start] + options[e.intN(len(options))] + out[end+1:]
	}
	return out
}

func (e *Expander) intN(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rnd.IntN(n)
}

// innermostGroup finds the leftmost "{...}" span with non-empty content and
// no braces inside it. end is the index of the closing brace.
func innermostGroup(s string) (start, end int, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		j := i + 1
		for j < len(s) && s[j] != '{' && s[j] != '}' {
			j++
		}
		if j == len(s) {
			return 0, 0, false
		}
		if s[j] == '}' && j > i+1 {
			return i, j, true
		}
		// s[j] is '{' (a nested opener) or an empty "{}"; resume at j.
		i = j - 1
	}
	return 0, 0, false
}

// Validate reports templates whose braces do not pair up. Expand tolerates
// such templates, but the admin tooling refuses to store them.
func Validate(tmpl string) error {
	depth := 0
	for i, r := range tmpl {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unexpected '}' at offset %d", ErrUnbalanced, i)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: %d unclosed '{'", ErrUnbalanced, depth)
	}
	return nil
}
