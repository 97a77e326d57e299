package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var placeholderRE = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolveEnv replaces ${VAR} placeholders in s using lookup. Every placeholder
// must resolve; the error lists the names that did not. A nil lookup uses
// os.LookupEnv.
func ResolveEnv(s string, lookup func(string) (string, bool)) (string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var missing []string
	out := placeholderRE.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRE.FindStringSubmatch(m)[1]
		v, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved environment placeholder(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Resolve returns a copy of c with ${VAR} placeholders in every field
// resolved.
func (c Connection) Resolve(lookup func(string) (string, bool)) (Connection, error) {
	out := c
	for _, f := range []*string{&out.Host, &out.Database, &out.Username, &out.Password} {
		v, err := ResolveEnv(*f, lookup)
		if err != nil {
			return Connection{}, err
		}
		*f = v
	}
	if len(c.Params) > 0 {
		out.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			rv, err := ResolveEnv(v, lookup)
			if err != nil {
				return Connection{}, err
			}
			out.Params[k] = rv
		}
	}
	return out, nil
}
