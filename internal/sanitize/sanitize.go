// Package sanitize strips script markup from user-supplied strings before
// any handler sees them. It walks decoded JSON values, url.Values and path
// parameters and applies a strict HTML policy to every string.
package sanitize

import (
	"net/url"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer is safe for concurrent use; bluemonday policies are read-only
// once built.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New returns a Sanitizer that removes every HTML element. Content of
// script and style elements is dropped entirely, stray angle brackets are
// escaped.
func New() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// String sanitizes one value. Strings without angle brackets are returned
// unchanged, so plain text such as "Tom & Jerry" is not entity encoded.
func (s *Sanitizer) String(v string) string {
	if !strings.ContainsAny(v, "<>") {
		return v
	}
	return strings.TrimSpace(s.policy.Sanitize(v))
}

// Value sanitizes a decoded JSON value in place and returns it. Maps and
// slices are walked recursively; keys are sanitized as well as values.
// When a key sanitizes to one the object already has, the entry that was
// already clean wins and the rewritten one is dropped. Among rewritten keys
// colliding with each other the lowest original key wins.
func (s *Sanitizer) Value(v any) any {
	switch x := v.(type) {
	case string:
		return s.String(x)
	case map[string]any:
		var dirty []string
		for k, inner := range x {
			if s.String(k) != k {
				dirty = append(dirty, k)
				continue
			}
			x[k] = s.Value(inner)
		}
		slices.Sort(dirty)
		for _, k := range dirty {
			inner := x[k]
			delete(x, k)
			clean := s.String(k)
			if _, taken := x[clean]; taken {
				continue
			}
			x[clean] = s.Value(inner)
		}
		return x
	case []any:
		for i := range x {
			x[i] = s.Value(x[i])
		}
		return x
	default:
		// numbers, bools and nil carry no markup
		return v
	}
}

// Values sanitizes query or form values in place. Unlike JSON objects a
// query key may repeat, so values under a key that sanitizes to an existing
// one are appended after that key's own values.
func (s *Sanitizer) Values(vals url.Values) url.Values {
	var dirty []string
	for k, vs := range vals {
		if s.String(k) != k {
			dirty = append(dirty, k)
			continue
		}
		for i := range vs {
			vs[i] = s.String(vs[i])
		}
	}
	slices.Sort(dirty)
	for _, k := range dirty {
		vs := vals[k]
		delete(vals, k)
		clean := s.String(k)
		for _, v := range vs {
			vals[clean] = append(vals[clean], s.String(v))
		}
	}
	return vals
}

// Contains reports whether v would be changed by String.
func (s *Sanitizer) Contains(v string) bool {
	return s.String(v) != v
}
