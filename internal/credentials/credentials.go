// Package credentials loads the dotenv credential bundles read once at
// start-up.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingKey is returned when a required key is absent from a bundle.
var ErrMissingKey = errors.New("missing credential")

// Bundle is one parsed credential file.
type Bundle struct {
	Path   string
	values map[string]string
}

// Load reads a dotenv file. A leading "~/" is expanded to the home directory.
// Variables already set in the process environment take precedence.
func Load(path string) (*Bundle, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return nil, err
	}

	values, err := godotenv.Read(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials %s: %w", resolved, err)
	}
	return &Bundle{Path: resolved, values: values}, nil
}

// FromMap builds a bundle from literal values.
func FromMap(values map[string]string) *Bundle {
	return &Bundle{Path: "<inline>", values: values}
}

// Get returns a value, preferring the process environment.
func (b *Bundle) Get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return b.values[key]
}

// Require returns the values for keys, failing on the first one missing.
func (b *Bundle) Require(keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v := b.Get(k)
		if v == "" {
			return nil, fmt.Errorf("%w: %s in %s", ErrMissingKey, k, b.Path)
		}
		out[k] = v
	}
	return out, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
