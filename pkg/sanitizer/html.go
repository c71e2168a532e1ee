// Package sanitizer strips markup from strings received from the external
// provider APIs. Document names, part names, card summaries, and provider
// error messages are all third-party input that ends up rendered in pages;
// anything that looks like HTML in them is hostile or garbage either way.
package sanitizer

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy *bluemonday.Policy
	initOnce     sync.Once
)

func policy() *bluemonday.Policy {
	initOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// Text strips all HTML from a provider-supplied string, returning plain
// text with surrounding whitespace trimmed. Entities introduced by the
// stripping are decoded, so clean input passes through unchanged.
func Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(policy().Sanitize(s)))
}

// Custom applies a caller-provided bluemonday policy. A nil policy returns
// the input unchanged.
func Custom(s string, p *bluemonday.Policy) string {
	if p == nil {
		return s
	}
	return p.Sanitize(s)
}
