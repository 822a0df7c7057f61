// Package datalayer resolves the process-wide persistence backend.
//
// Resolution is lazy and happens on the first Resolve call. Sources are tried
// in order: the configured factory, then the managed Literal backend when
// LITERAL_API_KEY is set. A resolved handle is cached for the lifetime of the
// resolver; an unresolved result is retried on the next call.
package datalayer

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"chat-session-be/internal/pkg/logger"
)

const (
	EnvAPIKey       = "LITERAL_API_KEY"
	EnvAPIURL       = "LITERAL_API_URL"
	EnvLegacyServer = "LITERAL_SERVER"
)

// DataLayer is the handle to the active persistence backend.
type DataLayer interface {
	Name() string
	Close() error
}

// Factory builds the backend from application configuration.
type Factory func() (DataLayer, error)

// ManagedFactory builds the managed backend from an API key and an optional
// server override.
type ManagedFactory func(apiKey, server string) (DataLayer, error)

type Option func(*Resolver)

// WithFactory sets the application-configured factory, tried first.
func WithFactory(f Factory) Option {
	return func(r *Resolver) { r.factory = f }
}

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(r *Resolver) { r.lookupEnv = fn }
}

// WithManagedFactory replaces NewLiteralDataLayer.
func WithManagedFactory(f ManagedFactory) Option {
	return func(r *Resolver) { r.managed = f }
}

type handle struct {
	layer DataLayer
}

type Resolver struct {
	// mu serialises resolution attempts so a factory is never run twice
	// concurrently. It guards nothing else.
	mu     sync.Mutex
	cached atomic.Pointer[handle]

	factory   Factory
	managed   ManagedFactory
	lookupEnv func(string) (string, bool)
	logger    logger.ILogger
}

func NewResolver(log logger.ILogger, opts ...Option) *Resolver {
	r := &Resolver{
		managed:   NewLiteralDataLayer,
		lookupEnv: os.LookupEnv,
		logger:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the cached backend, resolving it if needed. A nil handle
// with a nil error means no source is configured. Construction errors are
// returned to the caller and nothing is cached.
func (r *Resolver) Resolve() (DataLayer, error) {
	if h := r.cached.Load(); h != nil {
		return h.layer, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h := r.cached.Load(); h != nil {
		return h.layer, nil
	}

	layer, err := r.build()
	if err != nil {
		return nil, err
	}
	if layer == nil {
		return nil, nil
	}

	r.cached.Store(&handle{layer: layer})
	r.logger.Info("DataLayer", "Data layer resolved", map[string]interface{}{"name": layer.Name()})
	return layer, nil
}

func (r *Resolver) build() (DataLayer, error) {
	if r.factory != nil {
		layer, err := r.factory()
		if err != nil {
			return nil, fmt.Errorf("configured data layer: %w", err)
		}
		return layer, nil
	}

	apiKey, ok := r.lookupEnv(EnvAPIKey)
	if !ok || apiKey == "" {
		return nil, nil
	}

	server := r.env(EnvAPIURL)
	if server == "" {
		server = r.env(EnvLegacyServer)
	}

	layer, err := r.managed(apiKey, server)
	if err != nil {
		return nil, fmt.Errorf("literal data layer: %w", err)
	}
	return layer, nil
}

func (r *Resolver) env(key string) string {
	v, _ := r.lookupEnv(key)
	return v
}

// Resolved reports whether a backend is cached, without attempting resolution.
func (r *Resolver) Resolved() bool {
	return r.cached.Load() != nil
}

// Close releases the cached backend, if any. The resolver stays resolved.
func (r *Resolver) Close() error {
	if h := r.cached.Load(); h != nil {
		return h.layer.Close()
	}
	return nil
}
