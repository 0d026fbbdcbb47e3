// Package secrets provides a thread-safe secret vault with hot reload support.
package secrets

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Well-known secret keys.
const (
	AmadeusAPIKey    = "AMADEUS_API_KEY"
	AmadeusAPISecret = "AMADEUS_API_SECRET"
	SMTPPassword     = "SMTP_PASSWORD"
	WebhookSecret    = "DEALWATCH_WEBHOOK_SECRET"
	HookSecret       = "DEALWATCH_HOOK_SECRET"
)

// DefaultKeys lists the secrets DealWatch reads.
var DefaultKeys = []string{AmadeusAPIKey, AmadeusAPISecret, SMTPPassword, WebhookSecret, HookSecret}

// Loader retrieves secrets from a source (env vars, mounted files, etc.).
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}

// Keys returns the names of the loaded secrets in sorted order.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Redacted returns a masked form of the secret suitable for logs.
func (v *Vault) Redacted(key string) string {
	return mask(v.Get(key))
}

// RedactString masks every secret value of at least four characters found
// in s. Upstream error bodies sometimes echo credentials back.
func (v *Vault) RedactString(s string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, val := range v.values {
		if len(val) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, val, mask(val))
	}
	return s
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + "****"
	}
}
