// Package migrate adapts request and response payloads across client
// protocol versions. Each action may register one Adapter; actions without
// one fall back to their bare validator.
//
// Adapter functions must be pure in (context, payload) and idempotent:
// re-applying an adapter to an already-adapted payload is a no-op.
package migrate

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"

	"github.com/addongate/addongate/internal/auth"
)

// Validator checks an action's request and response payloads against their
// schemas. Validators are external collaborators; this package only calls
// them.
type Validator interface {
	ValidateRequest(payload json.RawMessage) error
	ValidateResponse(payload json.RawMessage) error
}

// ValidatorFuncs adapts two plain functions into a Validator. A nil
// function accepts every payload.
type ValidatorFuncs struct {
	Request  func(payload json.RawMessage) error
	Response func(payload json.RawMessage) error
}

func (v ValidatorFuncs) ValidateRequest(payload json.RawMessage) error {
	if v.Request == nil {
		return nil
	}
	return v.Request(payload)
}

func (v ValidatorFuncs) ValidateResponse(payload json.RawMessage) error {
	if v.Response == nil {
		return nil
	}
	return v.Response(payload)
}

// ValidationError reports a payload that failed its validator or adapter.
// The dispatch pipeline maps it to a 400 response.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Context threads per-request migration state through the request-adapt and
// response-adapt calls. It is created once per request.
type Context struct {
	ClientVersion *semver.Version
	AddonID       string
	Data          map[string]any
	User          *auth.Identity
	Validator     Validator
}

// NewContext builds a migration context for one request, extracting the
// client version from the raw input if present.
func NewContext(addonID string, input json.RawMessage, user *auth.Identity, v Validator) *Context {
	mc := &Context{
		AddonID:   addonID,
		Data:      make(map[string]any),
		User:      user,
		Validator: v,
	}
	if raw := gjson.GetBytes(input, "clientVersion"); raw.Exists() {
		if ver, err := semver.NewVersion(raw.String()); err == nil {
			mc.ClientVersion = ver
		}
	}
	return mc
}

// RequestFunc adapts an incoming payload for the current protocol version.
type RequestFunc func(mc *Context, input json.RawMessage) (json.RawMessage, error)

// ResponseFunc adapts an outgoing payload back for the caller's version.
type ResponseFunc func(mc *Context, input, output json.RawMessage) (json.RawMessage, error)

// Adapter is a pair of pure functions adapting payloads for clients older
// than Threshold. A nil Threshold applies the adapter unconditionally.
type Adapter struct {
	Threshold *semver.Version
	Request   RequestFunc
	Response  ResponseFunc
}

// Applies reports whether the adapter should run for the context's client.
func (a *Adapter) Applies(mc *Context) bool {
	if a.Threshold == nil {
		return true
	}
	if mc.ClientVersion == nil {
		return false
	}
	return mc.ClientVersion.LessThan(a.Threshold)
}

// Registry maps action names to their migration adapters.
type Registry struct {
	adapters map[string]*Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]*Adapter)}
}

// Register installs the adapter for an action, replacing any previous one.
func (r *Registry) Register(action string, a *Adapter) {
	r.adapters[action] = a
}

// Lookup returns the adapter for an action, if any.
func (r *Registry) Lookup(action string) (*Adapter, bool) {
	a, ok := r.adapters[action]
	return a, ok
}

// AdaptRequest feeds input through the action's adapter if one exists and
// applies, else through the bare request validator. A validation failure is
// returned as a *ValidationError.
func (r *Registry) AdaptRequest(action string, mc *Context, input json.RawMessage) (json.RawMessage, error) {
	if a, ok := r.adapters[action]; ok && a.Request != nil && a.Applies(mc) {
		return a.Request(mc, input)
	}
	if mc.Validator != nil {
		if err := mc.Validator.ValidateRequest(input); err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}
	}
	return input, nil
}

// AdaptResponse mirrors AdaptRequest for the handler's output.
func (r *Registry) AdaptResponse(action string, mc *Context, input, output json.RawMessage) (json.RawMessage, error) {
	if a, ok := r.adapters[action]; ok && a.Response != nil && a.Applies(mc) {
		return a.Response(mc, input, output)
	}
	if mc.Validator != nil {
		if err := mc.Validator.ValidateResponse(output); err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}
	}
	return output, nil
}
