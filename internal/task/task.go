// Package task implements the deferred capabilities a handler can invoke:
// fetch, recaptcha, toast, notification.
//
// Fetch and recaptcha may require the external caller to perform work and
// report back. They are not callbacks: a pending task is a durable,
// cache-addressed continuation, because the follow-up call may arrive as an
// unrelated process invocation. The coordinator persists the task record
// under a fresh correlation id, issues an intermediate response telling the
// caller what to do, and resumes purely from the persisted record plus the
// follow-up call's own delivery channel.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/addongate/addongate/internal/cache"
	"github.com/addongate/addongate/internal/events"
)

// ErrPending signals that a capability registered a pending task and already
// delivered the intermediate response for this physical call. The handler
// must propagate it; the dispatcher stops without delivering again.
var ErrPending = errors.New("task pending")

// ErrUnknownTask reports a taskResponse whose correlation id has no
// persisted record (unknown or expired). It is reported, never retried.
var ErrUnknownTask = errors.New("unknown task")

// Deliverer sends exactly one (status, body) response for a request cycle.
type Deliverer interface {
	Deliver(status int, body json.RawMessage) error
}

// KindTaskResponse marks an input payload as a task continuation.
const KindTaskResponse = "taskResponse"

// IsTaskResponse reports whether input resumes a pending task.
func IsTaskResponse(input json.RawMessage) bool {
	return gjson.GetBytes(input, "kind").String() == KindTaskResponse
}

// FetchRequest asks the external caller to perform a remote fetch on the
// server's behalf (e.g. to originate from the caller's own address).
type FetchRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Challenge describes a captcha challenge the caller must solve.
type Challenge struct {
	SiteKey string `json:"siteKey,omitempty"`
}

// Notification is pushed to the caller's notification surface.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// record is the persisted state of a pending task.
type record struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Request json.RawMessage `json:"request"`
	Created time.Time       `json:"created"`
}

// Coordinator binds the four capabilities to one request cycle: its
// test-mode flag, its delivery channel, and its cache facade.
type Coordinator struct {
	testMode bool
	deliver  Deliverer
	cache    *cache.Facade
	hub      *events.Hub
}

// NewCoordinator creates a coordinator for one request.
func NewCoordinator(testMode bool, d Deliverer, c *cache.Facade, hub *events.Hub) *Coordinator {
	return &Coordinator{testMode: testMode, deliver: d, cache: c, hub: hub}
}

// Fetch registers a fetch task. In test mode it returns a stub result
// immediately with no side effects.
func (c *Coordinator) Fetch(ctx context.Context, req FetchRequest) (json.RawMessage, error) {
	if c.testMode {
		return json.RawMessage(`{"status":200,"body":{}}`), nil
	}
	if req.URL == "" {
		return nil, fmt.Errorf("fetch url is empty")
	}
	return nil, c.registerPending(ctx, "fetch", req)
}

// Recaptcha registers a captcha challenge task. In test mode it returns a
// stub token immediately.
func (c *Coordinator) Recaptcha(ctx context.Context, ch Challenge) (json.RawMessage, error) {
	if c.testMode {
		return json.RawMessage(`{"token":"test-token"}`), nil
	}
	return nil, c.registerPending(ctx, "recaptcha", ch)
}

// Toast pushes a transient message to the caller. It always completes
// synchronously; in test mode it is a no-op.
func (c *Coordinator) Toast(ctx context.Context, message string) error {
	if c.testMode {
		return nil
	}
	c.hub.Publish("toast", map[string]string{"message": message})
	return nil
}

// Notify pushes a notification to the caller. It always completes
// synchronously; in test mode it is a no-op.
func (c *Coordinator) Notify(ctx context.Context, n Notification) error {
	if c.testMode {
		return nil
	}
	c.hub.Publish("notification", n)
	return nil
}

// registerPending persists a pending task record and delivers the intermediate
// response instructing the caller to do the work and echo back a
// taskResponse envelope carrying the correlation id.
func (c *Coordinator) registerPending(ctx context.Context, kind string, req any) error {
	rawReq, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode task request: %w", err)
	}

	rec := record{
		ID:      uuid.NewString(),
		Kind:    kind,
		Request: rawReq,
		Created: time.Now().UTC(),
	}
	rawRec, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode task record: %w", err)
	}
	if err := c.cache.Set(ctx, recordKey(rec.ID), rawRec); err != nil {
		return fmt.Errorf("persist task record: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"kind": "task",
		"id":   rec.ID,
		"task": map[string]any{"type": kind, "request": json.RawMessage(rawReq)},
	})
	if err != nil {
		return fmt.Errorf("encode task response: %w", err)
	}
	if err := c.deliver.Deliver(http.StatusAccepted, body); err != nil {
		return fmt.Errorf("deliver task response: %w", err)
	}
	return ErrPending
}

// Resume completes a pending task from a taskResponse input. The final
// outcome is delivered through the current call's delivery channel, not the
// original request's, since that physical call has already ended.
func (c *Coordinator) Resume(ctx context.Context, input json.RawMessage) error {
	id := gjson.GetBytes(input, "id").String()
	if id == "" {
		body, _ := json.Marshal(map[string]string{"error": "taskResponse is missing id"})
		return c.deliver.Deliver(http.StatusBadRequest, body)
	}

	raw, ok, err := c.cache.Get(ctx, recordKey(id))
	if err != nil {
		return fmt.Errorf("load task record: %w", err)
	}
	if !ok {
		body, _ := json.Marshal(map[string]string{"error": ErrUnknownTask.Error()})
		return c.deliver.Deliver(http.StatusNotFound, body)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decode task record: %w", err)
	}

	result := json.RawMessage(`null`)
	if res := gjson.GetBytes(input, "result"); res.Exists() {
		result = json.RawMessage(res.Raw)
	}

	body, err := json.Marshal(map[string]any{
		"id":     rec.ID,
		"kind":   rec.Kind,
		"result": result,
	})
	if err != nil {
		return fmt.Errorf("encode task outcome: %w", err)
	}

	if err := c.deliver.Deliver(http.StatusOK, body); err != nil {
		return err
	}
	// The record is single-use; drop it once the outcome is delivered.
	return c.cache.Delete(ctx, recordKey(id))
}

func recordKey(id string) string {
	return "task/" + id
}
