// Package template renders message templates and resolves mapping
// expressions against accumulated execution context.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nocturnelabs/vigil/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Render substitutes every {{variable}} placeholder in input with its value
// from data. Dotted names ("ioc.value") traverse nested maps. An unresolved
// placeholder is an error; registration-time validation is expected to have
// caught it earlier.
func Render(input string, data map[string]any) (string, error) {
	var renderErr error

	rendered := placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSpace(strings.Trim(match, "{}"))

		value, found := models.LookupPath(data, name)
		if !found {
			if renderErr == nil {
				renderErr = fmt.Errorf("unresolved template variable %q", name)
			}

			return match
		}

		return fmt.Sprintf("%v", value)
	})

	if renderErr != nil {
		return "", renderErr
	}

	return rendered, nil
}

// Variables returns the distinct placeholder names referenced by input, in
// order of first appearance.
func Variables(input string) []string {
	seen := make(map[string]bool)

	var names []string

	for _, match := range placeholderPattern.FindAllStringSubmatch(input, -1) {
		name := match[1]
		if seen[name] {
			continue
		}

		seen[name] = true
		names = append(names, name)
	}

	return names
}

// Validate checks that every variable a message template references is
// declared. Dotted references are checked against their root segment, so a
// declared "ioc" covers "ioc.value".
func Validate(message models.MessageTemplate, declared []models.TemplateVariable) error {
	known := make(map[string]bool, len(declared))
	for _, variable := range declared {
		known[variable.Name] = true
	}

	for _, name := range Variables(message.Subject + " " + message.Body) {
		if known[name] {
			continue
		}

		root, _, _ := strings.Cut(name, ".")
		if known[root] {
			continue
		}

		return fmt.Errorf("template references undeclared variable %q", name)
	}

	return nil
}

// ResolveExpr resolves a mapping expression against context data. The
// expression is either a bare dotted path ("steps.validate.is_valid") or a
// single {{...}}-wrapped placeholder; anything else is treated as a literal.
func ResolveExpr(expr string, data map[string]any) (any, error) {
	trimmed := strings.TrimSpace(expr)

	if match := placeholderPattern.FindStringSubmatch(trimmed); match != nil && match[0] == trimmed {
		value, found := models.LookupPath(data, match[1])
		if !found {
			return nil, fmt.Errorf("unresolved expression %q", match[1])
		}

		return value, nil
	}

	if strings.Contains(trimmed, ".") && !strings.ContainsAny(trimmed, " \t") {
		if value, found := models.LookupPath(data, trimmed); found {
			return value, nil
		}
	}

	if value, found := models.LookupPath(data, trimmed); found {
		return value, nil
	}

	return trimmed, nil
}
