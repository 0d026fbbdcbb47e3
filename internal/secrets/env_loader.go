package secrets

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
)

// EnvLoader returns a Loader that reads the specified environment variables.
// Missing variables are silently omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// DirLoader reads one secret per file from dir (the layout of Docker and
// Kubernetes secret mounts). The file name is the key. Only the listed keys
// are read; a missing directory or file is not an error.
func DirLoader(dir string, keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		if dir == "" {
			return vals, nil
		}
		for _, k := range keys {
			data, err := os.ReadFile(filepath.Join(dir, k)) //nolint:gosec // G304: dir is operator config
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("read secret %s: %w", k, err)
			}
			if v := strings.TrimSpace(string(data)); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// Chain merges the results of loaders in order. Later loaders win.
func Chain(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string)
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			maps.Copy(out, vals)
		}
		return out, nil
	}
}
