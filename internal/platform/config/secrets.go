package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SecretResolver turns a secret:// reference into its value.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// WithSecretResolver resolves secret:// (and legacy sm://) values during Load.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets fails Load when any named field (for example "PSP.StripeAPIKey") resolves
// to an empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError lists required secrets that came back empty. Error only prints redacted
// names so the message is safe to log.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

func (e *MissingSecretsError) Names() []string {
	return append([]string(nil), e.names...)
}

// RedactedNames returns a short hash per missing name.
func (e *MissingSecretsError) RedactedNames() []string {
	out := make([]string, len(e.names))
	for i, name := range e.names {
		out[i] = redactSecretName(name)
	}
	sort.Strings(out)
	return out
}

// secretField is a config string that may hold a secret reference.
type secretField struct {
	name  string
	value *string
}

func (cfg *Config) secretFields() []secretField {
	return []secretField{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.StripeWebhookSecret", &cfg.PSP.StripeWebhookSecret},
		{"Database.DSN", &cfg.Database.DSN},
		{"Redis.Password", &cfg.Redis.Password},
		{"Admin.SigningSecret", &cfg.Admin.SigningSecret},
	}
}

// resolveSecrets replaces every reference in place.
func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) error {
	for _, field := range cfg.secretFields() {
		ref, ok := secretReference(strings.TrimSpace(*field.value))
		if !ok {
			continue
		}
		if resolver == nil {
			return &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}
		secret, err := resolver.ResolveSecret(ctx, ref)
		if err != nil {
			return &SecretError{Ref: ref, Err: err}
		}
		*field.value = secret
	}
	return nil
}

// checkRequiredSecrets reports the required fields that are still empty after resolution.
func checkRequiredSecrets(cfg *Config, required []string) error {
	values := make(map[string]string)
	for _, field := range cfg.secretFields() {
		values[field.name] = strings.TrimSpace(*field.value)
	}

	var missing []string
	seen := make(map[string]bool)
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingSecretsError{names: missing}
}

// secretReference normalises sm:// to secret:// and reports whether value is a reference at all.
func secretReference(value string) (string, bool) {
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest, true
	}
	return value, strings.HasPrefix(value, "secret://")
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
