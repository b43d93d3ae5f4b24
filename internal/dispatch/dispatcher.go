// Package dispatch implements the per-request pipeline: authentication,
// payload migration, middleware, handler invocation, inline-cache
// reconciliation, and exactly-once response delivery.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/addongate/addongate/internal/addon"
	"github.com/addongate/addongate/internal/auth"
	"github.com/addongate/addongate/internal/cache"
	"github.com/addongate/addongate/internal/events"
	"github.com/addongate/addongate/internal/log"
	"github.com/addongate/addongate/internal/migrate"
	"github.com/addongate/addongate/internal/task"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/addongate/addongate/internal/cache Store
//go:generate mockgen -destination=mocks/mock_verifier.go -package=mocks github.com/addongate/addongate/internal/auth Verifier

// Settings are the frozen, process-wide switches the pipeline consults.
type Settings struct {
	// Production restricts auth bypass and disables request recording.
	Production bool
	// TestMode relaxes authentication and stubs task side effects globally.
	TestMode bool
	// SkipAuth is the explicit skip-authentication override.
	SkipAuth bool
}

// Envelope is one incoming action request.
type Envelope struct {
	Action string          `json:"action"`
	Input  json.RawMessage `json:"input"`
	Sig    string          `json:"sig"`
	// Request carries transport-level metadata.
	Request map[string]any `json:"request"`
	// Send delivers the response. Exactly one delivery happens per cycle.
	Send SendFunc `json:"-"`
}

// Options assembles a dispatcher's collaborators.
type Options struct {
	Addon      *addon.Addon
	Migrations *migrate.Registry
	Verifier   auth.Verifier
	Cache      *cache.Facade
	Hub        *events.Hub
	Recorder   Recorder
	Pipelines  Pipelines
	Settings   Settings
}

// Dispatcher orchestrates one addon's requests end-to-end.
type Dispatcher struct {
	addon      *addon.Addon
	migrations *migrate.Registry
	verifier   auth.Verifier
	cache      *cache.Facade
	hub        *events.Hub
	recorder   Recorder
	pipelines  Pipelines
	settings   Settings
	responder  *Responder
	logger     *slog.Logger
}

// New creates a dispatcher for one addon.
func New(opts Options) *Dispatcher {
	migrations := opts.Migrations
	if migrations == nil {
		migrations = migrate.NewRegistry()
	}
	return &Dispatcher{
		addon:      opts.Addon,
		migrations: migrations,
		verifier:   opts.Verifier,
		cache:      opts.Cache,
		hub:        opts.Hub,
		recorder:   opts.Recorder,
		pipelines:  opts.Pipelines,
		settings:   opts.Settings,
		responder:  NewResponder(),
		logger:     log.WithAddon(log.WithComponent("dispatch"), opts.Addon.ID()),
	}
}

// Addon returns the dispatcher's addon.
func (d *Dispatcher) Addon() *addon.Addon { return d.addon }

// Dispatch runs one request through the pipeline and delivers exactly one
// (status, body) via env.Send. All effects are the delivery and the
// optional recorder write.
func (d *Dispatcher) Dispatch(ctx context.Context, env *Envelope) {
	slot := d.responder.NewSlot(env.Send)
	logger := log.WithCycle(d.logger, slot.ID()).With("action", env.Action)

	// Snapshot before anything can rewrite the payload in place.
	var snapshot json.RawMessage
	if d.recorder != nil {
		snapshot = append(json.RawMessage(nil), env.Input...)
	}

	action := env.Action
	if action == addon.ActionDirectory {
		action = addon.ActionCatalog
	}

	input := env.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	for _, t := range d.pipelines.Init {
		out, err := t.Fn(ctx, input)
		if err != nil {
			logger.Warn("init middleware failed", "middleware", t.Name, "error", err)
			d.finish(ctx, logger, slot, snapshot, action, nil, input, errorBody(err.Error()), http.StatusInternalServerError)
			return
		}
		input = out
	}

	// A task continuation hands off entirely to the coordinator using this
	// call's delivery slot; none of the later stages run.
	if task.IsTaskResponse(input) {
		fc := d.scopedCache()
		coord := task.NewCoordinator(d.settings.TestMode, slot, fc, d.hub)
		if err := coord.Resume(ctx, input); err != nil {
			logger.Warn("task resume failed", "error", err)
			if !slot.Delivered() {
				if derr := slot.Deliver(http.StatusInternalServerError, errorBody(err.Error())); derr != nil {
					logger.Error("response delivery failed", "error", derr)
				}
			}
		}
		return
	}

	// Handler lookup happens before signature validation on purpose: an
	// unknown action must be reported as such, never masked by an auth
	// failure.
	act, ok := d.addon.ActionFor(action)
	if !ok {
		d.finish(ctx, logger, slot, snapshot, action, nil, input,
			errorBody("unknown action: "+action), http.StatusNotFound)
		return
	}

	testMode := d.settings.TestMode || action == addon.ActionSelftest

	user, authStatus, authErr := d.authenticate(ctx, env.Sig, action, testMode)
	if authErr != nil {
		if authStatus == http.StatusInternalServerError {
			logger.Warn("signature validation failed", "error", authErr)
		}
		d.finish(ctx, logger, slot, snapshot, action, nil, input, errorBody(authErr.Error()), authStatus)
		return
	}

	mc := migrate.NewContext(d.addon.ID(), input, user, act.Validator)
	adapted, err := d.migrations.AdaptRequest(action, mc, input)
	if err != nil {
		d.finish(ctx, logger, slot, snapshot, action, nil, input, errorBody(err.Error()), http.StatusBadRequest)
		return
	}
	input = adapted

	fc := d.scopedCache()
	s := newSession(user, env.Request, fc, task.NewCoordinator(testMode, slot, fc, d.hub))

	for _, t := range d.pipelines.Request {
		out, rerr := t.Fn(ctx, d.addon, action, s, input)
		if rerr != nil {
			logger.Warn("request middleware failed", "middleware", t.Name, "error", rerr)
			d.finish(ctx, logger, slot, snapshot, action, s, input, errorBody(rerr.Error()), http.StatusInternalServerError)
			return
		}
		input = out
	}

	output, herr := d.invoke(ctx, act, action, s, mc, input)

	status := http.StatusOK
	if herr != nil {
		if errors.Is(herr, task.ErrPending) {
			// The capability already delivered the intermediate response.
			// An open inline slot cannot resolve this cycle; abandon it so
			// the key stays live for later callers.
			if slot := s.inlineSlot(); slot != nil {
				slot.Abandon()
			}
			d.record(ctx, logger, snapshot, action, nil, http.StatusAccepted)
			return
		}
		output, status = d.reconcile(ctx, logger, s, herr)
	}

	d.finish(ctx, logger, slot, snapshot, action, s, input, output, status)
}

// invoke runs the handler and the stages immediately following it: the
// default-error rule, response migration, and the inline-cache commit.
func (d *Dispatcher) invoke(ctx context.Context, act addon.Action, action string, s *session, mc *migrate.Context, input json.RawMessage) (json.RawMessage, error) {
	output, err := act.Handler(ctx, input, s, d.addon)
	if err != nil {
		return nil, err
	}

	if nullish(output) && (action == addon.ActionResolve || action == addon.ActionCaptcha) {
		return nil, ErrNothingFound
	}

	output, err = d.migrations.AdaptResponse(action, mc, input, output)
	if err != nil {
		return nil, err
	}

	if slot := s.inlineSlot(); slot != nil {
		if err := slot.Set(ctx, output); err != nil {
			return nil, err
		}
	}
	return output, nil
}

// reconcile turns a failure from invocation into the final (body, status),
// consulting the inline cache first: a replayed outcome is used verbatim
// without logging, and an open slot may rewrite the failure into a
// previously stored success.
func (d *Dispatcher) reconcile(ctx context.Context, logger *slog.Logger, s *session, herr error) (json.RawMessage, int) {
	var replayed *cache.ReplayedError
	if errors.As(herr, &replayed) {
		return errorBody(replayed.Error()), http.StatusInternalServerError
	}

	if slot := s.inlineSlot(); slot != nil {
		if out, ferr := slot.Fail(ctx, herr); ferr == nil && out.State == cache.Hit {
			return out.Value, http.StatusOK
		}
	}

	var verr *migrate.ValidationError
	if errors.As(herr, &verr) {
		return errorBody(verr.Msg), http.StatusBadRequest
	}

	if !suppressed(herr) {
		logger.Warn("handler failed", "error", herr)
	}
	return errorBody(herr.Error()), http.StatusInternalServerError
}

// finish runs the response middleware, records the cycle, and delivers.
func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, slot *DeliverySlot, snapshot json.RawMessage, action string, s *session, input, output json.RawMessage, status int) {
	if s != nil {
		for _, t := range d.pipelines.Response {
			out, err := t.Fn(ctx, d.addon, action, s, input, output)
			if err != nil {
				logger.Warn("response middleware failed", "middleware", t.Name, "error", err)
				break
			}
			output = out
		}
	}

	d.record(ctx, logger, snapshot, action, output, status)

	if err := slot.Deliver(status, output); err != nil {
		logger.Error("response delivery failed", "error", err)
	}
}

func (d *Dispatcher) record(ctx context.Context, logger *slog.Logger, snapshot json.RawMessage, action string, output json.RawMessage, status int) {
	if d.recorder == nil {
		return
	}
	err := d.recorder.Record(ctx, RecordData{
		Addon:  d.addon.ID(),
		Action: action,
		Input:  snapshot,
		Output: output,
		Status: status,
	})
	if err != nil {
		logger.Warn("request record failed", "error", err)
	}
}

// authenticate runs the signature state machine. It returns the identity on
// success or permitted bypass, or a terminal (status, error).
func (d *Dispatcher) authenticate(ctx context.Context, sig, action string, testMode bool) (*auth.Identity, int, error) {
	user, err := d.verifier.Verify(ctx, sig)
	if err == nil {
		return user, 0, nil
	}
	if !auth.Recognized(err) {
		return nil, http.StatusInternalServerError, err
	}

	bypass := testMode || action == addon.ActionAddon || d.settings.SkipAuth || !d.settings.Production
	if !bypass {
		return nil, http.StatusForbidden, err
	}
	if testMode {
		return auth.Guest(time.Now().UTC()), 0, nil
	}
	return nil, 0, nil
}

func (d *Dispatcher) scopedCache() *cache.Facade {
	return d.cache.Scoped(d.addon.ID(), d.addon.CacheOptions())
}

func nullish(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	s := string(raw)
	return s == "null" || s == `""`
}
