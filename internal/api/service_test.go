package api

import (
	"testing"
	"time"

	"albumvideo/internal/engine"
	"albumvideo/internal/orchestrator"
)

func newTestService() *Service {
	return NewService(orchestrator.New(nil, nil, nil, nil, nil, nil, nil))
}

func TestSubscribeReceivesBroadcast(t *testing.T) {
	svc := newTestService()
	sub := svc.Subscribe(4)
	defer sub.Close()

	event := orchestrator.Event{JobID: "job-1", Phase: engine.StateEncoding, Percent: 42}
	svc.broadcast(event)

	select {
	case got := <-sub.Events():
		if got != event {
			t.Fatalf("got %+v, want %+v", got, event)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestClosedSubscriptionReceivesNothing(t *testing.T) {
	svc := newTestService()
	sub := svc.Subscribe(4)
	sub.Close()

	// Must not panic on a closed channel.
	svc.broadcast(orchestrator.Event{JobID: "job-1"})

	if _, open := <-sub.Events(); open {
		t.Fatal("closed subscription delivered an event")
	}

	// Close is idempotent.
	sub.Close()
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	svc := newTestService()
	sub := svc.Subscribe(1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			svc.broadcast(orchestrator.Event{Percent: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	svc := newTestService()
	first := svc.Subscribe(4)
	second := svc.Subscribe(4)
	defer first.Close()
	defer second.Close()

	svc.broadcast(orchestrator.Event{JobID: "fanout"})
	for _, sub := range []*Subscription{first, second} {
		select {
		case got := <-sub.Events():
			if got.JobID != "fanout" {
				t.Fatalf("got %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the event")
		}
	}
}
