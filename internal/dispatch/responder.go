package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrAlreadyDelivered reports a second delivery attempt on a finalized slot.
// This is a programming error, not a protocol event.
var ErrAlreadyDelivered = errors.New("response already delivered")

// SendFunc writes one (status, body) response to the transport.
type SendFunc func(status int, body json.RawMessage) error

// Responder enforces at-most-one response delivery per request cycle. Each
// request gets a fresh delivery slot under a unique id; a slot, once used,
// is finalized and rejects further deliveries.
type Responder struct {
	nextID atomic.Int64
}

// NewResponder creates a responder.
func NewResponder() *Responder {
	return &Responder{}
}

// NewSlot allocates the delivery slot for one request cycle.
func (r *Responder) NewSlot(send SendFunc) *DeliverySlot {
	return &DeliverySlot{id: r.nextID.Add(1), send: send}
}

// DeliverySlot is a single-use response channel.
type DeliverySlot struct {
	id   int64
	send SendFunc

	mu        sync.Mutex
	delivered bool
}

// ID returns the slot's id.
func (s *DeliverySlot) ID() int64 { return s.id }

// Delivered reports whether the slot has been finalized.
func (s *DeliverySlot) Delivered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

// Deliver sends the response and finalizes the slot.
func (s *DeliverySlot) Deliver(status int, body json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivered {
		return fmt.Errorf("%w: slot %d", ErrAlreadyDelivered, s.id)
	}
	s.delivered = true
	if s.send == nil {
		return fmt.Errorf("slot %d has no send function", s.id)
	}
	return s.send(status, body)
}
