// Package api is the surface the UI layer talks to: render submission,
// cancellation, and pushed progress events. Event delivery is guarded so
// nothing is ever sent to a torn-down receiver.
package api

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"albumvideo/internal/orchestrator"
	"albumvideo/internal/services"
)

// Service fronts the orchestrator for UI consumers.
type Service struct {
	orch *orchestrator.Orchestrator

	mu          sync.Mutex
	subscribers map[int]*Subscription
	nextID      int
}

// NewService wires a service over the orchestrator and installs itself as
// the orchestrator's event sink.
func NewService(orch *orchestrator.Orchestrator) *Service {
	s := &Service{
		orch:        orch,
		subscribers: make(map[int]*Subscription),
	}
	orch.SetEventSink(s.broadcast)
	return s
}

// Submit runs a render to a terminal state and returns either a success
// result with the report location or a structured failure. Progress
// arrives on subscriptions, never by polling. Each submission carries a
// correlation identifier so its log lines can be tied back to the call.
func (s *Service) Submit(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	return s.orch.Render(ctx, req)
}

// Cancel acknowledges a cancellation request against the current job.
// Returns false when no job is active.
func (s *Service) Cancel() bool {
	return s.orch.Cancel()
}

// Subscription is one event receiver. Close it when done; a closed
// subscription is removed from delivery before its channel closes.
type Subscription struct {
	id     int
	svc    *Service
	ch     chan orchestrator.Event
	closed bool
}

// Events is the receiver channel. Closed by Close.
func (sub *Subscription) Events() <-chan orchestrator.Event {
	return sub.ch
}

// Close tears the subscription down. Safe to call more than once; no
// event is delivered after it returns.
func (sub *Subscription) Close() {
	sub.svc.mu.Lock()
	defer sub.svc.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	delete(sub.svc.subscribers, sub.id)
	close(sub.ch)
}

// Subscribe registers an event receiver with the given channel buffer.
// A slow receiver drops events rather than stalling the render.
func (s *Service) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 32
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &Subscription{
		id:  s.nextID,
		svc: s,
		ch:  make(chan orchestrator.Event, buffer),
	}
	s.nextID++
	s.subscribers[sub.id] = sub
	return sub
}

// broadcast fans an event out under the subscriber lock, so delivery and
// teardown cannot interleave on the same channel.
func (s *Service) broadcast(event orchestrator.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		select {
		case sub.ch <- event:
		default:
		}
	}
}
