package dispatch

import (
	"context"
	"encoding/json"

	"github.com/addongate/addongate/internal/addon"
)

// Middleware stages are explicit ordered pipelines of named transform
// units. Registration order is a design contract: within one request,
// transforms run strictly in the order they were registered.

// InitFunc transforms the raw input before any other processing.
type InitFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// RequestFunc transforms the validated input, with the session available.
type RequestFunc func(ctx context.Context, a *addon.Addon, action string, s addon.Session, input json.RawMessage) (json.RawMessage, error)

// ResponseFunc transforms the final output before delivery.
type ResponseFunc func(ctx context.Context, a *addon.Addon, action string, s addon.Session, input, output json.RawMessage) (json.RawMessage, error)

// InitTransform is a named unit in the init stage.
type InitTransform struct {
	Name string
	Fn   InitFunc
}

// RequestTransform is a named unit in the request stage.
type RequestTransform struct {
	Name string
	Fn   RequestFunc
}

// ResponseTransform is a named unit in the response stage.
type ResponseTransform struct {
	Name string
	Fn   ResponseFunc
}

// Pipelines holds the three ordered middleware stages.
type Pipelines struct {
	Init     []InitTransform
	Request  []RequestTransform
	Response []ResponseTransform
}
