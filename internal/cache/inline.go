package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// State tags the outcome of an inline cache lookup.
type State int

const (
	// Miss means no resolved outcome exists; the caller holds the slot and
	// must resolve it with Set or Fail.
	Miss State = iota
	// Pending means another computation is in flight for the key. Waiters
	// never observe Pending directly; Inline blocks until resolution.
	Pending
	// Hit carries a previously stored value.
	Hit
	// Failed carries a previously stored error.
	Failed
)

// Outcome is the tagged result of an inline lookup or resolution.
type Outcome struct {
	State      State
	Value      json.RawMessage
	ErrMessage string
}

// Err converts a Failed outcome into a replayed error. It returns nil for
// any other state.
func (o Outcome) Err() error {
	if o.State != Failed {
		return nil
	}
	return &ReplayedError{Outcome: o}
}

// ReplayedError is a previously stored failure replayed from the inline
// cache. It is a control signal, not a fresh failure: the dispatcher must
// not log it as a warning or store it again.
type ReplayedError struct {
	Outcome Outcome
}

func (e *ReplayedError) Error() string { return e.Outcome.ErrMessage }

// envelope is the stored form of a resolved inline outcome.
type envelope struct {
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

type flight struct {
	done      chan struct{}
	out       Outcome
	abandoned bool
}

type flightTable struct {
	mu      sync.Mutex
	flights map[string]*flight
}

func newFlightTable() *flightTable {
	return &flightTable{flights: make(map[string]*flight)}
}

// Slot is a single-flight computation slot for one inline key. Exactly one
// caller holds the slot for a key at a time; everyone else observes the
// slot's resolution.
type Slot struct {
	facade *Facade
	full   string
	fl     *flight

	mu       sync.Mutex
	resolved bool
}

// Inline opens a single-flight slot for key. The returned outcome is one of:
//
//   - Miss: the caller is the leader and received a live Slot; it must
//     resolve the slot exactly once via Set or Fail.
//   - Hit / Failed: a resolved outcome already exists (stored, or produced
//     by a concurrent leader this call waited on); Slot is nil and the
//     caller must not re-run the computation's side effects.
func (f *Facade) Inline(ctx context.Context, key string) (*Slot, Outcome, error) {
	full := f.key("inline/" + key)

	for {
		if out, ok, err := f.lookupResolved(ctx, full); err != nil {
			return nil, Outcome{}, err
		} else if ok {
			return nil, out, nil
		}

		f.flights.mu.Lock()
		if fl, ok := f.flights.flights[full]; ok {
			f.flights.mu.Unlock()
			select {
			case <-fl.done:
				if fl.abandoned {
					// The leader retired without resolving; the key is Miss
					// again and this caller contends to lead.
					continue
				}
				return nil, fl.out, nil
			case <-ctx.Done():
				return nil, Outcome{}, ctx.Err()
			}
		}
		fl := &flight{done: make(chan struct{})}
		f.flights.flights[full] = fl
		f.flights.mu.Unlock()

		return &Slot{facade: f, full: full, fl: fl}, Outcome{State: Miss}, nil
	}
}

func (f *Facade) lookupResolved(ctx context.Context, full string) (Outcome, bool, error) {
	raw, ok, err := f.store.Get(ctx, full)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("inline lookup: %w", err)
	}
	if !ok {
		return Outcome{}, false, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Outcome{}, false, fmt.Errorf("decode inline entry: %w", err)
	}
	if env.OK {
		return Outcome{State: Hit, Value: env.Value}, true, nil
	}
	return Outcome{State: Failed, ErrMessage: env.Error}, true, nil
}

// Set resolves the slot with a successful value and persists it.
func (s *Slot) Set(ctx context.Context, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return fmt.Errorf("inline slot already resolved")
	}

	raw, err := json.Marshal(envelope{OK: true, Value: value})
	if err != nil {
		return fmt.Errorf("encode inline entry: %w", err)
	}
	if err := s.facade.store.Set(ctx, s.full, raw, s.facade.opts.TTL); err != nil {
		return fmt.Errorf("store inline entry: %w", err)
	}

	s.release(Outcome{State: Hit, Value: value})
	return nil
}

// Fail records a failure into the slot. The slot may rewrite the failure: if
// the backing store resolved to a success in the meantime (another process
// finished first), that stored outcome wins and is returned instead of the
// raw error.
func (s *Slot) Fail(ctx context.Context, cause error) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return Outcome{}, fmt.Errorf("inline slot already resolved")
	}

	if out, ok, err := s.facade.lookupResolved(ctx, s.full); err == nil && ok && out.State == Hit {
		s.release(out)
		return out, nil
	}

	out := Outcome{State: Failed, ErrMessage: cause.Error()}
	raw, err := json.Marshal(envelope{OK: false, Error: out.ErrMessage})
	if err != nil {
		return Outcome{}, fmt.Errorf("encode inline entry: %w", err)
	}
	if err := s.facade.store.Set(ctx, s.full, raw, s.facade.opts.TTL); err != nil {
		return Outcome{}, fmt.Errorf("store inline entry: %w", err)
	}

	s.release(out)
	return out, nil
}

// Abandon retires the slot without resolving it, when the request ends
// before the computation can produce an outcome. Nothing is persisted; the
// key returns to Miss and waiters contend for a fresh slot. Abandoning a
// resolved slot is a no-op.
func (s *Slot) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return
	}
	s.resolved = true
	s.fl.abandoned = true
	close(s.fl.done)

	s.facade.flights.mu.Lock()
	delete(s.facade.flights.flights, s.full)
	s.facade.flights.mu.Unlock()
}

// release publishes the resolution to waiters and retires the flight.
// Callers must hold s.mu.
func (s *Slot) release(out Outcome) {
	s.resolved = true
	s.fl.out = out
	close(s.fl.done)

	s.facade.flights.mu.Lock()
	delete(s.facade.flights.flights, s.full)
	s.facade.flights.mu.Unlock()
}
