package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Mount binds a path prefix to a handler group.
type Mount struct {
	Prefix string
	// RateLimited puts a dedicated limiter in front of the group.
	RateLimited bool
	// Name labels logs and spans; defaults to the prefix.
	Name  string
	Group http.Handler
}

// Table is evaluated in order. Order matters once prefixes nest.
type Table []Mount

// Validate reports every malformed entry. Prefixes must start with "/",
// must not end with "/", must be unique and must have a group.
func (t Table) Validate() error {
	var errs []error
	seen := make(map[string]int, len(t))
	for i, m := range t {
		switch {
		case m.Prefix == "" || m.Prefix[0] != '/':
			errs = append(errs, fmt.Errorf("mount %d: prefix %q must start with /", i, m.Prefix))
		case len(m.Prefix) > 1 && strings.HasSuffix(m.Prefix, "/"):
			errs = append(errs, fmt.Errorf("mount %d: prefix %q must not end with /", i, m.Prefix))
		case m.Prefix == "/":
			errs = append(errs, fmt.Errorf("mount %d: root prefix would shadow every later mount", i))
		}
		if j, dup := seen[m.Prefix]; dup {
			errs = append(errs, fmt.Errorf("mount %d: prefix %q already bound by mount %d", i, m.Prefix, j))
		} else {
			seen[m.Prefix] = i
		}
		if m.Group == nil {
			errs = append(errs, fmt.Errorf("mount %d: prefix %q has no handler group", i, m.Prefix))
		}
	}
	return errors.Join(errs...)
}

// Prefixes lists the prefixes in registration order.
func (t Table) Prefixes() []string {
	out := make([]string, len(t))
	for i, m := range t {
		out[i] = m.Prefix
	}
	return out
}

// matchPrefix reports whether prefix is a segment prefix of path and
// returns the remaining suffix, always starting with "/".
func matchPrefix(prefix, path string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := path[len(prefix):]
	switch {
	case rest == "":
		return "/", true
	case rest[0] == '/':
		return rest, true
	}
	return "", false
}
