package events

import (
	"testing"
	"time"

	"github.com/linkmesh/linkmesh/internal/models"
)

func TestSubscribeFiltersByType(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	statusCh := bus.Subscribe(EventStatus)
	logCh := bus.Subscribe(EventLog)

	bus.PublishStatus("j1", models.JobDescriptor{ID: "j1", Status: models.StatusRunning, Progress: 10})
	bus.PublishLog("j1", "Loading files...")

	ev := <-statusCh
	status, ok := ev.(*StatusEvent)
	if !ok {
		t.Fatalf("got %T, want *StatusEvent", ev)
	}
	if status.Descriptor.Progress != 10 {
		t.Fatalf("descriptor = %+v", status.Descriptor)
	}

	ev = <-logCh
	logEv, ok := ev.(*LogEvent)
	if !ok {
		t.Fatalf("got %T, want *LogEvent", ev)
	}
	if logEv.Message != "Loading files..." {
		t.Fatalf("message = %q", logEv.Message)
	}

	// The status subscriber never sees the log event.
	select {
	case ev := <-statusCh:
		t.Fatalf("unexpected event %T on status channel", ev)
	default:
	}
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	all := bus.SubscribeAll()
	bus.PublishStateChange("r1", "configuring", "submitting", "")
	bus.PublishComplete("j1", false, "results/r1.xlsx")

	first := <-all
	if first.Type() != EventStateChange {
		t.Fatalf("first event = %s", first.Type())
	}
	second := <-all
	if second.Type() != EventComplete {
		t.Fatalf("second event = %s", second.Type())
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	bus.Subscribe(EventLog) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.PublishLog("j1", "flood")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if bus.DroppedEvents() == 0 {
		t.Fatal("expected dropped events to be counted")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	ch := bus.Subscribe(EventError)
	bus.Unsubscribe(EventError, ch)
	bus.PublishError("j1", "boom", nil)

	select {
	case ev := <-ch:
		t.Fatalf("received %T after unsubscribe", ev)
	default:
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	bus := NewBus(8)
	ch := bus.Subscribe(EventStatus)
	bus.Close()

	if _, ok := <-ch; ok {
		t.Fatal("channel not closed")
	}
	// Publishing after close is a no-op, not a panic.
	bus.PublishLog("j1", "late")
	bus.Close()
}
