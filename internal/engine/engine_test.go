package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addongate/addongate/internal/addon"
	"github.com/addongate/addongate/internal/auth"
	"github.com/addongate/addongate/internal/cache"
	"github.com/addongate/addongate/internal/dispatch"
	"github.com/addongate/addongate/internal/migrate"
)

type staticVerifier struct{}

func (staticVerifier) Verify(ctx context.Context, sig string) (*auth.Identity, error) {
	return &auth.Identity{Subject: "tester"}, nil
}

func registryWith(t *testing.T, addons ...*addon.Addon) *addon.Registry {
	t.Helper()
	r := addon.NewRegistry()
	for _, a := range addons {
		require.NoError(t, r.Register(a))
	}
	return r
}

func manifestOnly(t *testing.T, id string) *addon.Addon {
	t.Helper()
	a, err := addon.New(addon.Manifest{ID: id, Name: id, Version: "1.0.0"}, nil)
	require.NoError(t, err)
	return a
}

func newEngine(t *testing.T, addons *addon.Registry, mutate ...func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		Addons:   addons,
		Verifier: staticVerifier{},
		Store:    cache.NewMemoryStore(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	reg := registryWith(t)

	_, err := New(Options{Verifier: staticVerifier{}, Store: cache.NewMemoryStore()})
	assert.Error(t, err)
	_, err = New(Options{Addons: reg, Store: cache.NewMemoryStore()})
	assert.Error(t, err)
	_, err = New(Options{Addons: reg, Verifier: staticVerifier{}})
	assert.Error(t, err)
}

func TestConfigureBeforeFreeze(t *testing.T) {
	e := newEngine(t, registryWith(t, manifestOnly(t, "demo")))

	require.NoError(t, e.Configure(func(s *dispatch.Settings) {
		s.TestMode = true
	}))
	require.NoError(t, e.UseInit(dispatch.InitTransform{Name: "noop", Fn: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		return input, nil
	}}))
	require.NoError(t, e.RegisterMigration("resolve", &migrate.Adapter{}))
}

func TestFirstDispatcherFreezesConfiguration(t *testing.T) {
	e := newEngine(t, registryWith(t, manifestOnly(t, "demo")))

	d, err := e.Dispatcher("demo")
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.ErrorIs(t, e.Configure(func(s *dispatch.Settings) { s.TestMode = true }), ErrFrozen)
	assert.ErrorIs(t, e.RegisterMigration("resolve", &migrate.Adapter{}), ErrFrozen)
	assert.ErrorIs(t, e.UseInit(dispatch.InitTransform{}), ErrFrozen)
	assert.ErrorIs(t, e.UseRequest(dispatch.RequestTransform{}), ErrFrozen)
	assert.ErrorIs(t, e.UseResponse(dispatch.ResponseTransform{}), ErrFrozen)
}

func TestDispatcherMemoized(t *testing.T) {
	e := newEngine(t, registryWith(t, manifestOnly(t, "demo")))

	first, err := e.Dispatcher("demo")
	require.NoError(t, err)
	second, err := e.Dispatcher("demo")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestDispatcherUnknownAddon(t *testing.T) {
	e := newEngine(t, registryWith(t))

	_, err := e.Dispatcher("ghost")
	assert.Error(t, err)
}

func TestProductionDisablesRecorder(t *testing.T) {
	recorded := 0
	e := newEngine(t, registryWith(t, manifestOnly(t, "demo")), func(o *Options) {
		o.Settings = dispatch.Settings{Production: true, SkipAuth: true}
		o.Recorder = recorderFunc(func(ctx context.Context, rec dispatch.RecordData) error {
			recorded++
			return nil
		})
	})

	d, err := e.Dispatcher("demo")
	require.NoError(t, err)

	done := false
	d.Dispatch(context.Background(), &dispatch.Envelope{
		Action: addon.ActionAddon,
		Send: func(status int, body json.RawMessage) error {
			done = true
			return nil
		},
	})
	assert.True(t, done)
	assert.Zero(t, recorded, "recording must be off in production")
}

type recorderFunc func(ctx context.Context, rec dispatch.RecordData) error

func (f recorderFunc) Record(ctx context.Context, rec dispatch.RecordData) error {
	return f(ctx, rec)
}

func TestInfo(t *testing.T) {
	e := newEngine(t, registryWith(t, manifestOnly(t, "beta"), manifestOnly(t, "alpha")))

	info := e.Info()
	assert.Equal(t, "server", info.Type)
	assert.Equal(t, []string{"alpha", "beta"}, info.Addons)
}

func TestSelftestEntryMarshal(t *testing.T) {
	raw, err := json.Marshal(SelftestEntry{Status: 200, Body: json.RawMessage(`{"ok":true}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `[200,{"ok":true}]`, string(raw))

	raw, err = json.Marshal(SelftestEntry{Status: 500})
	require.NoError(t, err)
	assert.JSONEq(t, `[500,null]`, string(raw))
}

func TestSelftestAggregation(t *testing.T) {
	healthy := manifestOnly(t, "healthy")

	brokenAddon, err := addon.New(
		addon.Manifest{ID: "broken", Name: "Broken", Version: "1.0.0"},
		map[string]addon.Action{
			addon.ActionSelftest: {Handler: func(ctx context.Context, input json.RawMessage, s addon.Session, a *addon.Addon) (json.RawMessage, error) {
				return nil, errors.New("boom")
			}},
		})
	require.NoError(t, err)

	e := newEngine(t, registryWith(t, healthy, brokenAddon))

	overall, results := e.Selftest(context.Background())
	assert.Equal(t, http.StatusInternalServerError, overall)
	require.Len(t, results, 2)

	assert.Equal(t, http.StatusOK, results["healthy"].Status)
	assert.JSONEq(t, `{"ok":true}`, string(results["healthy"].Body))

	assert.Equal(t, http.StatusInternalServerError, results["broken"].Status)
	assert.JSONEq(t, `{"error":"boom"}`, string(results["broken"].Body))
}

func TestSelftestAllHealthy(t *testing.T) {
	e := newEngine(t, registryWith(t, manifestOnly(t, "a"), manifestOnly(t, "b")))

	overall, results := e.Selftest(context.Background())
	assert.Equal(t, http.StatusOK, overall)
	assert.Len(t, results, 2)
}

func TestHubDefaulted(t *testing.T) {
	e := newEngine(t, registryWith(t))
	assert.NotNil(t, e.Hub())
}
