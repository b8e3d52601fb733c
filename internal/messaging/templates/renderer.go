package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// placeholderPattern matches {{name}} (spaces allowed inside) and {name}.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}|\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Renderer substitutes named placeholders in outbound message bodies.
// Placeholder names are case-insensitive.
type Renderer struct {
	// Strict makes unknown placeholders an error instead of leaving them untouched.
	Strict bool
}

// Render replaces every placeholder in tmpl with its value from vars.
func (r Renderer) Render(name, tmpl string, vars map[string]string) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return "", fmt.Errorf("templates: template %q text required", name)
	}
	lookup := make(map[string]string, len(vars))
	for k, v := range vars {
		lookup[strings.ToLower(k)] = v
	}

	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		key := sub[1]
		if key == "" {
			key = sub[2]
		}
		if v, ok := lookup[strings.ToLower(key)]; ok {
			return v
		}
		missing = append(missing, key)
		return match
	})
	if r.Strict && len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("templates: %q missing values for %s", name, strings.Join(missing, ", "))
	}
	return out, nil
}

// Placeholders lists the distinct placeholder names used in tmpl, lower-cased.
func Placeholders(tmpl string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, sub := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		key := sub[1]
		if key == "" {
			key = sub[2]
		}
		key = strings.ToLower(key)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
