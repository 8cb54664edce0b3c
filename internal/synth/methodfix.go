package synth

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var decoLineRegex = regexp.MustCompile(`^(\s*@[a-zA-Z_][a-zA-Z0-9_]*\.route\(\s*['"][^'"]+['"])[^)]*(\))\s*$`)

// FixMethods re-parses an emitted main file and reconciles the route
// decorator's method list for the named handler with the function's
// declared methods. Textual assembly can get this wrong when the
// original decorator relied on default-method inference.
func FixMethods(ctx context.Context, mainPath, functionName string, methods []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(mainPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", mainPath, err)
	}

	lines := strings.Split(string(data), "\n")
	defPrefix := "def " + functionName + "("

	changed := false
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), defPrefix) {
			continue
		}

		// Walk back over the decorator stack for this def.
		for j := i - 1; j >= 0; j-- {
			trimmed := strings.TrimSpace(lines[j])
			if trimmed == "" {
				break
			}
			if !strings.HasPrefix(trimmed, "@") {
				break
			}
			m := decoLineRegex.FindStringSubmatch(lines[j])
			if m == nil {
				continue
			}

			fixed := m[1] + ", methods=[" + quoteMethods(methods) + "]" + m[2]
			if lines[j] != fixed {
				lines[j] = fixed
				changed = true
			}
			break
		}
		break
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if !changed {
		return nil
	}

	return os.WriteFile(mainPath, []byte(strings.Join(lines, "\n")), 0o644)
}

func quoteMethods(methods []string) string {
	quoted := make([]string, len(methods))
	for i, m := range methods {
		quoted[i] = "'" + m + "'"
	}
	return strings.Join(quoted, ", ")
}
