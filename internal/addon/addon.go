// Package addon defines registered addons and the action table the
// dispatcher resolves handlers from.
package addon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/addongate/addongate/internal/auth"
	"github.com/addongate/addongate/internal/cache"
	"github.com/addongate/addongate/internal/migrate"
	"github.com/addongate/addongate/internal/task"
)

// Well-known action names. Actions are an open string-keyed space; these are
// the ones the engine itself gives meaning to.
const (
	ActionResolve  = "resolve"
	ActionCatalog  = "catalog"
	ActionCaptcha  = "captcha"
	ActionSelftest = "selftest"
	ActionAddon    = "addon"

	// ActionDirectory is the legacy alias for catalog, rewritten before any
	// other processing.
	ActionDirectory = "directory"
)

// Session is what a handler can reach during one request cycle.
type Session interface {
	// User is the authenticated caller, a synthetic guest in test mode, or
	// nil on a permitted auth bypass.
	User() *auth.Identity
	// Transport carries transport-level request metadata.
	Transport() map[string]any
	// Cache is the request's addon-scoped cache facade.
	Cache() *cache.Facade
	// RequestCache opens the request's single inline slot for key. Calling
	// it a second time on the same session is a configuration error.
	RequestCache(ctx context.Context, key string, opts ...cache.Options) (*cache.Slot, cache.Outcome, error)

	// Deferred task capabilities, bound to the request's test-mode flag,
	// delivery channel, and cache.
	Fetch(ctx context.Context, req task.FetchRequest) (json.RawMessage, error)
	Recaptcha(ctx context.Context, ch task.Challenge) (json.RawMessage, error)
	Toast(ctx context.Context, message string) error
	Notify(ctx context.Context, n task.Notification) error
}

// Handler processes one action invocation.
type Handler func(ctx context.Context, input json.RawMessage, s Session, a *Addon) (json.RawMessage, error)

// Action binds a handler to its validators and optional migration adapter.
type Action struct {
	Handler   Handler
	Validator migrate.Validator
	Migration *migrate.Adapter
}

// Addon is a registered addon: an id, a manifest, its declared actions, and
// its default cache options.
type Addon struct {
	manifest Manifest
	actions  map[string]Action
	cacheOpt cache.Options
}

// New builds an addon from its manifest and action table. Every addon serves
// the built-in "addon" (manifest) and "selftest" actions; explicit entries
// in actions override the built-ins.
func New(m Manifest, actions map[string]Action) (*Addon, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("addon %q: %w", m.ID, err)
	}

	a := &Addon{
		manifest: m,
		actions:  make(map[string]Action, len(actions)+2),
		cacheOpt: cache.Options{TTL: m.Cache.TTL},
	}
	a.actions[ActionAddon] = Action{Handler: a.manifestHandler}
	a.actions[ActionSelftest] = Action{Handler: a.selftestHandler}
	for name, act := range actions {
		if name == "" {
			return nil, fmt.Errorf("addon %q: action with empty name", m.ID)
		}
		if act.Handler == nil {
			return nil, fmt.Errorf("addon %q: action %q has no handler", m.ID, name)
		}
		a.actions[name] = act
	}
	return a, nil
}

// ID returns the addon id.
func (a *Addon) ID() string { return a.manifest.ID }

// Manifest returns the addon's manifest.
func (a *Addon) Manifest() Manifest { return a.manifest }

// CacheOptions returns the addon-declared default cache options.
func (a *Addon) CacheOptions() cache.Options { return a.cacheOpt }

// ActionFor resolves an action by name. The second return distinguishes an
// unknown action from every other failure mode.
func (a *Addon) ActionFor(name string) (Action, bool) {
	act, ok := a.actions[name]
	return act, ok
}

// Actions returns the declared action names.
func (a *Addon) Actions() []string {
	out := make([]string, 0, len(a.actions))
	for name := range a.actions {
		out = append(out, name)
	}
	return out
}

func (a *Addon) manifestHandler(ctx context.Context, input json.RawMessage, s Session, _ *Addon) (json.RawMessage, error) {
	return json.Marshal(a.manifest)
}

func (a *Addon) selftestHandler(ctx context.Context, input json.RawMessage, s Session, _ *Addon) (json.RawMessage, error) {
	// Round-trip the scoped cache so a selftest exercises the storage path.
	probe := []byte(`{"ok":true}`)
	if err := s.Cache().Set(ctx, "selftest", probe); err != nil {
		return nil, fmt.Errorf("selftest cache write: %w", err)
	}
	got, ok, err := s.Cache().Get(ctx, "selftest")
	if err != nil {
		return nil, fmt.Errorf("selftest cache read: %w", err)
	}
	if !ok || string(got) != string(probe) {
		return nil, fmt.Errorf("selftest cache round-trip mismatch")
	}
	return json.RawMessage(`{"ok":true}`), nil
}
