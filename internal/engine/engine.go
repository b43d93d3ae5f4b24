// Package engine assembles validated addons, immutable configuration, and
// per-addon dispatchers. Configuration is a two-state object: Building
// until the first dispatcher is created, Frozen afterwards. Mutating frozen
// configuration is a checked error, never a silent no-op.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/addongate/addongate/internal/addon"
	"github.com/addongate/addongate/internal/auth"
	"github.com/addongate/addongate/internal/cache"
	"github.com/addongate/addongate/internal/dispatch"
	"github.com/addongate/addongate/internal/events"
	"github.com/addongate/addongate/internal/log"
	"github.com/addongate/addongate/internal/migrate"
)

// ErrFrozen reports a configuration mutation after the first dispatcher was
// created.
var ErrFrozen = errors.New("configuration is frozen")

// Options assembles an engine.
type Options struct {
	Addons   *addon.Registry
	Verifier auth.Verifier
	Store    cache.Store
	Recorder dispatch.Recorder
	Settings dispatch.Settings
	Hub      *events.Hub
}

// Engine owns the process-wide dispatch configuration and the per-addon
// dispatchers built from it.
type Engine struct {
	mu          sync.Mutex
	frozen      bool
	settings    dispatch.Settings
	addons      *addon.Registry
	migrations  *migrate.Registry
	verifier    auth.Verifier
	root        *cache.Facade
	hub         *events.Hub
	recorder    dispatch.Recorder
	pipelines   dispatch.Pipelines
	dispatchers map[string]*dispatch.Dispatcher
	logger      *slog.Logger
}

// New creates an engine in the Building state.
func New(opts Options) (*Engine, error) {
	if opts.Addons == nil {
		return nil, fmt.Errorf("addon registry is nil")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("verifier is nil")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("cache store is nil")
	}
	hub := opts.Hub
	if hub == nil {
		hub = events.NewHub(256)
	}

	recorder := opts.Recorder
	if opts.Settings.Production {
		// Recording is disabled in production regardless of configuration.
		recorder = nil
	}

	return &Engine{
		settings:    opts.Settings,
		addons:      opts.Addons,
		migrations:  migrate.NewRegistry(),
		verifier:    opts.Verifier,
		root:        cache.New(opts.Store, "engine", cache.Options{}),
		hub:         hub,
		recorder:    recorder,
		dispatchers: make(map[string]*dispatch.Dispatcher),
		logger:      log.WithComponent("engine"),
	}, nil
}

// Hub returns the engine's event hub.
func (e *Engine) Hub() *events.Hub { return e.hub }

// Configure mutates the engine settings. It fails with ErrFrozen once any
// dispatcher has been created, leaving the settings unchanged.
func (e *Engine) Configure(fn func(*dispatch.Settings)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frozen {
		return ErrFrozen
	}
	fn(&e.settings)
	return nil
}

// RegisterMigration installs a migration adapter for an action.
func (e *Engine) RegisterMigration(action string, a *migrate.Adapter) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frozen {
		return ErrFrozen
	}
	e.migrations.Register(action, a)
	return nil
}

// UseInit appends a named transform to the init stage.
func (e *Engine) UseInit(t dispatch.InitTransform) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frozen {
		return ErrFrozen
	}
	e.pipelines.Init = append(e.pipelines.Init, t)
	return nil
}

// UseRequest appends a named transform to the request stage.
func (e *Engine) UseRequest(t dispatch.RequestTransform) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frozen {
		return ErrFrozen
	}
	e.pipelines.Request = append(e.pipelines.Request, t)
	return nil
}

// UseResponse appends a named transform to the response stage.
func (e *Engine) UseResponse(t dispatch.ResponseTransform) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frozen {
		return ErrFrozen
	}
	e.pipelines.Response = append(e.pipelines.Response, t)
	return nil
}

// Dispatcher returns the dispatcher for an addon, building and memoizing it
// on first use. The first call freezes the configuration.
func (e *Engine) Dispatcher(addonID string) (*dispatch.Dispatcher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if d, ok := e.dispatchers[addonID]; ok {
		return d, nil
	}

	a, ok := e.addons.Get(addonID)
	if !ok {
		return nil, fmt.Errorf("unknown addon %q", addonID)
	}

	if !e.frozen {
		e.frozen = true
		e.logger.Debug("configuration frozen")
	}

	d := dispatch.New(dispatch.Options{
		Addon:      a,
		Migrations: e.migrations,
		Verifier:   e.verifier,
		Cache:      e.root,
		Hub:        e.hub,
		Recorder:   e.recorder,
		Pipelines:  e.pipelines,
		Settings:   e.settings,
	})
	e.dispatchers[addonID] = d
	return d, nil
}

// ServerInfo is the platform description returned by the front door.
type ServerInfo struct {
	Type   string   `json:"type"`
	Addons []string `json:"addons"`
}

// Info describes the server and its registered addons.
func (e *Engine) Info() ServerInfo {
	return ServerInfo{Type: "server", Addons: e.addons.IDs()}
}

// SelftestEntry is one addon's selftest result, serialized as
// [statusCode, body].
type SelftestEntry struct {
	Status int
	Body   json.RawMessage
}

func (s SelftestEntry) MarshalJSON() ([]byte, error) {
	body := s.Body
	if len(body) == 0 {
		body = []byte("null")
	}
	return json.Marshal([]any{s.Status, body})
}

// Selftest dispatches a synthetic "selftest" action to every registered
// addon and aggregates the results. Overall status is 500 if any addon's
// status was not 200.
func (e *Engine) Selftest(ctx context.Context) (int, map[string]SelftestEntry) {
	results := make(map[string]SelftestEntry)
	overall := http.StatusOK

	for _, id := range e.addons.IDs() {
		status, body := e.selftestOne(ctx, id)
		results[id] = SelftestEntry{Status: status, Body: body}
		if status != http.StatusOK {
			overall = http.StatusInternalServerError
		}
	}
	return overall, results
}

// selftestOne runs one addon's selftest, converting anything thrown outside
// the pipeline's own error handling into a 500 entry.
func (e *Engine) selftestOne(ctx context.Context, id string) (status int, body json.RawMessage) {
	status = http.StatusInternalServerError

	defer func() {
		if r := recover(); r != nil {
			status = http.StatusInternalServerError
			body, _ = json.Marshal(map[string]string{"error": fmt.Sprint(r)})
		}
	}()

	d, err := e.Dispatcher(id)
	if err != nil {
		body, _ = json.Marshal(map[string]string{"error": err.Error()})
		return status, body
	}

	delivered := false
	env := &dispatch.Envelope{
		Action: addon.ActionSelftest,
		Input:  json.RawMessage(`{}`),
		Send: func(st int, b json.RawMessage) error {
			status, body, delivered = st, b, true
			return nil
		},
	}
	d.Dispatch(ctx, env)

	if !delivered {
		body, _ = json.Marshal(map[string]string{"error": "selftest delivered no response"})
	}
	return status, body
}
