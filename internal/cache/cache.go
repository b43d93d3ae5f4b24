// Package cache provides the scoped cache facade used by the dispatch
// pipeline, including the single-flight "inline" mode that can short-circuit
// handler execution with a previously computed result or error.
package cache

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// Store is the backing cache engine. Eviction and persistence are the
// engine's concern, not this package's.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Options are addon-declared cache defaults.
type Options struct {
	TTL time.Duration
}

// Facade is a scoped, cloneable handle over a Store. Facades derived from
// the same root share one backing store and one in-process flight table.
type Facade struct {
	store   Store
	scope   string
	prefix  string
	opts    Options
	flights *flightTable
}

// New creates a root facade over store.
func New(store Store, scope string, opts Options) *Facade {
	return &Facade{
		store:   store,
		scope:   scope,
		prefix:  scopePrefix(scope),
		opts:    opts,
		flights: newFlightTable(),
	}
}

// Scoped derives a facade for a different scope from the same backing store.
func (f *Facade) Scoped(scope string, opts Options) *Facade {
	return &Facade{
		store:   f.store,
		scope:   scope,
		prefix:  scopePrefix(scope),
		opts:    opts,
		flights: f.flights,
	}
}

// Clone derives an independent, differently-optioned facade for the same
// scope and backing store.
func (f *Facade) Clone(opts Options) *Facade {
	c := *f
	c.opts = opts
	return &c
}

// Scope returns the facade's scope identifier.
func (f *Facade) Scope() string { return f.scope }

// Options returns the facade's default options.
func (f *Facade) Options() Options { return f.opts }

// Get reads a raw value from the scoped key space.
func (f *Facade) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return f.store.Get(ctx, f.key(key))
}

// Set writes a raw value using the facade's default TTL.
func (f *Facade) Set(ctx context.Context, key string, value []byte) error {
	return f.store.Set(ctx, f.key(key), value, f.opts.TTL)
}

// SetTTL writes a raw value with an explicit TTL.
func (f *Facade) SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return f.store.Set(ctx, f.key(key), value, ttl)
}

// Delete removes a key from the scoped key space.
func (f *Facade) Delete(ctx context.Context, key string) error {
	return f.store.Delete(ctx, f.key(key))
}

func (f *Facade) key(key string) string {
	return f.prefix + key
}

// scopePrefix derives a fixed-width digest so scope names cannot collide
// with or escape into each other's key space.
func scopePrefix(scope string) string {
	sum := blake3.Sum256([]byte(scope))
	return hex.EncodeToString(sum[:8]) + ":"
}
