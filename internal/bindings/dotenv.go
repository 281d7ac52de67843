// SPDX-License-Identifier: MPL-2.0

package bindings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"strata/pkg/recipe"
)

// LoadEnvFile reads a dotenv file and declares its contents into the table
// under the given scope, relative paths resolved against basePath (the
// recipe directory). A path suffixed with '?' is optional: a missing
// optional file is not an error. Later loads override earlier values for
// the same keys, consistent with last-write-wins.
func LoadEnvFile(t *Table, path, basePath string, scope recipe.EnvScope) error {
	optional := strings.HasSuffix(path, "?")
	if optional {
		path = strings.TrimSuffix(path, "?")
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(basePath, filepath.FromSlash(path))
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read env file '%s': %w", path, err)
	}

	return parseEnvFile(t, content, path, scope)
}

// parseEnvFile parses dotenv content and declares each entry. Supported:
//   - lines starting with # are comments; empty lines are ignored
//   - KEY=value (unquoted; trailing " #" comment stripped)
//   - KEY="value" (escape sequences: \n, \r, \t, \\, \")
//   - KEY='value' (literal, no escape processing)
//   - an optional leading "export " is ignored
func parseEnvFile(t *Table, content []byte, filename string, scope recipe.EnvScope) error {
	for i, line := range strings.Split(string(content), "\n") {
		lineNum := i + 1

		line = strings.TrimSuffix(line, "\r")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, found := strings.Cut(line, "=")
		if !found {
			return fmt.Errorf("%s:%d: invalid format (missing '=')", filename, lineNum)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("%s:%d: empty variable name", filename, lineNum)
		}

		parsed, err := parseEnvValue(value)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", filename, lineNum, err)
		}

		if err := t.Set(key, parsed, scope); err != nil {
			return fmt.Errorf("%s:%d: %w", filename, lineNum, err)
		}
	}
	return nil
}

func parseEnvValue(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}

	switch value[0] {
	case '"':
		if len(value) < 2 || value[len(value)-1] != '"' {
			return "", fmt.Errorf("unterminated double quote")
		}
		return unescapeDoubleQuoted(value[1 : len(value)-1])
	case '\'':
		if len(value) < 2 || value[len(value)-1] != '\'' {
			return "", fmt.Errorf("unterminated single quote")
		}
		return value[1 : len(value)-1], nil
	}

	// Unquoted: strip an inline comment.
	if idx := strings.Index(value, " #"); idx != -1 {
		value = strings.TrimSpace(value[:idx])
	}
	return value, nil
}

func unescapeDoubleQuoted(value string) (string, error) {
	var result strings.Builder
	result.Grow(len(value))

	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '\\' {
			result.WriteByte(c)
			continue
		}
		i++
		if i >= len(value) {
			return "", fmt.Errorf("trailing backslash")
		}
		switch value[i] {
		case 'n':
			result.WriteByte('\n')
		case 'r':
			result.WriteByte('\r')
		case 't':
			result.WriteByte('\t')
		case '\\':
			result.WriteByte('\\')
		case '"':
			result.WriteByte('"')
		default:
			return "", fmt.Errorf("unsupported escape sequence '\\%c'", value[i])
		}
	}
	return result.String(), nil
}
