package events

import (
	"errors"
	"testing"
	"time"
)

func TestBusTopicDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	unitCh := bus.Subscribe(TopicUnit, 4)
	runCh := bus.Subscribe(TopicRun, 4)

	bus.Publish(TopicUnit, UnitStartedEvent{ID: "sprint-1", Name: "Sprint 1", Timestamp: time.Now()})

	select {
	case ev := <-unitCh:
		if ev.EventType() != EventTypeUnitStarted {
			t.Errorf("event type = %q, want %q", ev.EventType(), EventTypeUnitStarted)
		}
		if ev.Subject() != "sprint-1" {
			t.Errorf("subject = %q, want sprint-1", ev.Subject())
		}
	default:
		t.Fatal("expected event on unit topic")
	}

	select {
	case ev := <-runCh:
		t.Fatalf("run topic should not receive unit events, got %v", ev)
	default:
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.SubscribeAll(8)

	bus.Publish(TopicUnit, UnitFailedEvent{ID: "a", Err: errors.New("boom")})
	bus.Publish(TopicRun, RunStalledEvent{RunID: "r1", Stuck: []string{"c"}})
	bus.Notify("done", LevelSuccess)

	got := 0
	for i := 0; i < 3; i++ {
		select {
		case <-all:
			got++
		default:
		}
	}
	if got != 3 {
		t.Errorf("SubscribeAll received %d events, want 3", got)
	}
}

func TestBusNonBlockingPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// Buffer of 1; second publish must be dropped, not block.
	ch := bus.Subscribe(TopicNotify, 1)

	done := make(chan struct{})
	go func() {
		bus.Notify("first", LevelInfo)
		bus.Notify("second", LevelInfo)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on full subscriber channel")
	}

	if len(ch) != 1 {
		t.Errorf("channel length = %d, want 1 (overflow dropped)", len(ch))
	}
}

func TestBusCloseIdempotent(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicUnit, 1)

	bus.Close()
	bus.Close() // Must not panic

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}

	// Publishing after close is a no-op.
	bus.Publish(TopicUnit, UnitStartedEvent{ID: "x"})

	// Subscribing after close returns a closed channel.
	late := bus.Subscribe(TopicUnit, 1)
	if _, ok := <-late; ok {
		t.Error("late subscriber channel should be closed")
	}
}
