package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Option customises how Load and EnvironmentValues read their inputs.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func defaultOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// WithEnvFile points at a dotenv file; an empty path skips it. A missing file is not an error.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap supplies values that win over both the process environment and the dotenv file.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// source layers explicit values over the process environment over the dotenv file, and collects
// malformed values instead of silently using defaults.
type source struct {
	layers  []map[string]string
	invalid []string
}

func newSource(options loaderOptions) (*source, error) {
	dotenv, err := readDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	s := &source{}
	if options.envMap != nil {
		s.layers = append(s.layers, options.envMap)
	}
	if options.useSystemEnv {
		s.layers = append(s.layers, processEnv())
	}
	if dotenv != nil {
		s.layers = append(s.layers, dotenv)
	}
	return s, nil
}

// EnvironmentValues flattens the layers Load would read. cmd/api uses it to configure logging and
// the secret fetcher before configuration proper is loaded.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	src, err := newSource(defaultOptions(opts))
	if err != nil {
		return nil, err
	}
	values := make(map[string]string)
	for i := len(src.layers) - 1; i >= 0; i-- {
		for key, value := range src.layers[i] {
			values[key] = value
		}
	}
	return values, nil
}

func (s *source) lookup(key string) (string, bool) {
	for _, layer := range s.layers {
		if value, ok := layer[key]; ok && value != "" {
			return value, true
		}
	}
	return "", false
}

func (s *source) str(key, fallback string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return fallback
}

func (s *source) lower(key, fallback string) string {
	return strings.ToLower(strings.TrimSpace(s.str(key, fallback)))
}

func (s *source) duration(key string, fallback time.Duration) time.Duration {
	value, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		s.invalid = append(s.invalid, key)
		return fallback
	}
	return d
}

func (s *source) int(key string, fallback int) int {
	return int(s.int64(key, int64(fallback)))
}

func (s *source) int64(key string, fallback int64) int64 {
	value, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		s.invalid = append(s.invalid, key)
		return fallback
	}
	return n
}

func (s *source) bool(key string, fallback bool) bool {
	value, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	s.invalid = append(s.invalid, key)
	return fallback
}

func processEnv() map[string]string {
	env := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if key = strings.TrimSpace(key); ok && key != "" {
			env[key] = value
		}
	}
	return env
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return values, nil
}
