package dispatch

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/addongate/addongate/internal/auth"
	"github.com/addongate/addongate/internal/cache"
	"github.com/addongate/addongate/internal/task"
)

// session is the handler context for one request cycle. It implements
// addon.Session.
type session struct {
	user      *auth.Identity
	transport map[string]any
	cache     *cache.Facade
	tasks     *task.Coordinator

	mu     sync.Mutex
	opened bool
	slot   *cache.Slot
}

func newSession(user *auth.Identity, transport map[string]any, c *cache.Facade, t *task.Coordinator) *session {
	return &session{
		user:      user,
		transport: transport,
		cache:     c,
		tasks:     t,
	}
}

func (s *session) User() *auth.Identity      { return s.user }
func (s *session) Transport() map[string]any { return s.transport }
func (s *session) Cache() *cache.Facade      { return s.cache }

// RequestCache opens the request's single inline slot for key. Outcome Hit
// or Failed means a prior resolution short-circuits the computation; Miss
// means this request holds the slot and the pipeline commits the handler's
// result (or failure) into it after invocation.
func (s *session) RequestCache(ctx context.Context, key string, opts ...cache.Options) (*cache.Slot, cache.Outcome, error) {
	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return nil, cache.Outcome{}, ErrRequestCacheReused
	}
	s.opened = true
	s.mu.Unlock()

	facade := s.cache
	if len(opts) > 0 {
		facade = facade.Clone(opts[0])
	}

	slot, out, err := facade.Inline(ctx, key)
	if err != nil {
		return nil, cache.Outcome{}, err
	}

	s.mu.Lock()
	s.slot = slot
	s.mu.Unlock()
	return slot, out, nil
}

// inlineSlot returns the open slot, if this request holds one.
func (s *session) inlineSlot() *cache.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot
}

func (s *session) Fetch(ctx context.Context, req task.FetchRequest) (json.RawMessage, error) {
	return s.tasks.Fetch(ctx, req)
}

func (s *session) Recaptcha(ctx context.Context, ch task.Challenge) (json.RawMessage, error) {
	return s.tasks.Recaptcha(ctx, ch)
}

func (s *session) Toast(ctx context.Context, message string) error {
	return s.tasks.Toast(ctx, message)
}

func (s *session) Notify(ctx context.Context, n task.Notification) error {
	return s.tasks.Notify(ctx, n)
}
