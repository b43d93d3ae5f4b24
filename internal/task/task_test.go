package task

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/addongate/addongate/internal/cache"
	"github.com/addongate/addongate/internal/events"
)

type deliveryLog struct {
	status     int
	body       json.RawMessage
	deliveries int
}

func (d *deliveryLog) Deliver(status int, body json.RawMessage) error {
	d.status = status
	d.body = append(json.RawMessage(nil), body...)
	d.deliveries++
	return nil
}

func newCoordinator(testMode bool) (*Coordinator, *deliveryLog, *cache.Facade, *events.Hub) {
	d := &deliveryLog{}
	f := cache.New(cache.NewMemoryStore(), "demo", cache.Options{})
	hub := events.NewHub(16)
	return NewCoordinator(testMode, d, f, hub), d, f, hub
}

func TestIsTaskResponse(t *testing.T) {
	assert.True(t, IsTaskResponse(json.RawMessage(`{"kind":"taskResponse","id":"x"}`)))
	assert.False(t, IsTaskResponse(json.RawMessage(`{"kind":"other"}`)))
	assert.False(t, IsTaskResponse(json.RawMessage(`{}`)))
	assert.False(t, IsTaskResponse(nil))
}

func TestFetchTestModeStub(t *testing.T) {
	c, d, _, _ := newCoordinator(true)

	out, err := c.Fetch(context.Background(), FetchRequest{URL: "http://x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":200,"body":{}}`, string(out))
	assert.Zero(t, d.deliveries, "test mode must have no delivery side effects")
}

func TestRecaptchaTestModeStub(t *testing.T) {
	c, d, _, _ := newCoordinator(true)

	out, err := c.Recaptcha(context.Background(), Challenge{SiteKey: "k"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"test-token"}`, string(out))
	assert.Zero(t, d.deliveries)
}

func TestFetchRegistersPendingTask(t *testing.T) {
	ctx := context.Background()
	c, d, f, _ := newCoordinator(false)

	out, err := c.Fetch(ctx, FetchRequest{URL: "http://origin.example", Method: "GET"})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrPending)

	require.Equal(t, 1, d.deliveries)
	assert.Equal(t, http.StatusAccepted, d.status)
	assert.Equal(t, "task", gjson.GetBytes(d.body, "kind").String())
	assert.Equal(t, "fetch", gjson.GetBytes(d.body, "task.type").String())
	assert.Equal(t, "http://origin.example", gjson.GetBytes(d.body, "task.request.url").String())

	id := gjson.GetBytes(d.body, "id").String()
	require.NotEmpty(t, id)

	// The continuation must be durable, not in-process state.
	raw, ok, err := f.Get(ctx, "task/"+id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, gjson.GetBytes(raw, "id").String())
	assert.Equal(t, "fetch", gjson.GetBytes(raw, "kind").String())
}

func TestFetchEmptyURL(t *testing.T) {
	c, d, _, _ := newCoordinator(false)

	_, err := c.Fetch(context.Background(), FetchRequest{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPending)
	assert.Zero(t, d.deliveries)
}

func TestResumeFromAnotherCoordinator(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	f := cache.New(store, "demo", cache.Options{})
	hub := events.NewHub(16)

	first := &deliveryLog{}
	_, err := NewCoordinator(false, first, f, hub).Recaptcha(ctx, Challenge{SiteKey: "k"})
	require.ErrorIs(t, err, ErrPending)
	id := gjson.GetBytes(first.body, "id").String()
	require.NotEmpty(t, id)

	// The follow-up arrives as a fresh call with its own delivery channel.
	second := &deliveryLog{}
	resume := json.RawMessage(`{"kind":"taskResponse","id":"` + id + `","result":{"token":"solved"}}`)
	require.NoError(t, NewCoordinator(false, second, f, hub).Resume(ctx, resume))

	assert.Equal(t, http.StatusOK, second.status)
	assert.Equal(t, id, gjson.GetBytes(second.body, "id").String())
	assert.Equal(t, "recaptcha", gjson.GetBytes(second.body, "kind").String())
	assert.Equal(t, "solved", gjson.GetBytes(second.body, "result.token").String())

	// Single-use: the record is gone.
	_, ok, err := f.Get(ctx, "task/"+id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResumeUnknownID(t *testing.T) {
	c, d, _, _ := newCoordinator(false)

	err := c.Resume(context.Background(), json.RawMessage(`{"kind":"taskResponse","id":"no-such-task"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, d.status)
	assert.JSONEq(t, `{"error":"unknown task"}`, string(d.body))
}

func TestResumeMissingID(t *testing.T) {
	c, d, _, _ := newCoordinator(false)

	err := c.Resume(context.Background(), json.RawMessage(`{"kind":"taskResponse"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, d.status)
}

func TestResumeMissingResultDefaultsToNull(t *testing.T) {
	ctx := context.Background()
	c, d, _, _ := newCoordinator(false)

	_, err := c.Fetch(ctx, FetchRequest{URL: "http://x"})
	require.ErrorIs(t, err, ErrPending)
	id := gjson.GetBytes(d.body, "id").String()

	require.NoError(t, c.Resume(ctx, json.RawMessage(`{"kind":"taskResponse","id":"`+id+`"}`)))
	assert.Equal(t, http.StatusOK, d.status)
	assert.Equal(t, "null", gjson.GetBytes(d.body, "result").Raw)
}

func TestToastPublishesEvent(t *testing.T) {
	c, _, _, hub := newCoordinator(false)

	require.NoError(t, c.Toast(context.Background(), "hello"))

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, "toast", evs[0].Type)
	assert.Equal(t, "hello", gjson.GetBytes(evs[0].Data, "message").String())
}

func TestNotifyPublishesEvent(t *testing.T) {
	c, _, _, hub := newCoordinator(false)

	require.NoError(t, c.Notify(context.Background(), Notification{Title: "New episode", Body: "S02E01"}))

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, "notification", evs[0].Type)
	assert.Equal(t, "New episode", gjson.GetBytes(evs[0].Data, "title").String())
}

func TestToastAndNotifyAreNoOpsInTestMode(t *testing.T) {
	c, _, _, hub := newCoordinator(true)

	require.NoError(t, c.Toast(context.Background(), "hello"))
	require.NoError(t, c.Notify(context.Background(), Notification{Title: "x"}))
	assert.Empty(t, hub.SnapshotSince(0))
}
