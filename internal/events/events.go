// Package events provides the event bus observers use to follow a run.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/linkmesh/linkmesh/internal/models"
)

// EventType defines the types of events that can be emitted.
type EventType string

const (
	EventStatus      EventType = "status"       // canonical JobDescriptor changed
	EventLog         EventType = "log"          // status log entry appended
	EventStateChange EventType = "state_change" // workflow phase transition
	EventError       EventType = "error"        // user-visible error
	EventComplete    EventType = "complete"     // run reached a terminal phase
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 256

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// StatusEvent carries the new canonical descriptor after an accepted update.
type StatusEvent struct {
	BaseEvent
	JobID      string
	Descriptor models.JobDescriptor
}

// LogEvent carries one appended status-log message.
type LogEvent struct {
	BaseEvent
	JobID   string
	Message string
}

// StateChangeEvent reports a workflow phase transition.
type StateChangeEvent struct {
	BaseEvent
	RunID    string
	OldPhase string
	NewPhase string
	JobID    string
}

// ErrorEvent reports a user-visible error (submission or terminal job failure).
type ErrorEvent struct {
	BaseEvent
	JobID   string
	Message string
	Err     error
}

// CompleteEvent reports the end of a run.
type CompleteEvent struct {
	BaseEvent
	JobID           string
	Failed          bool
	ResultReference string
}

// Bus manages event subscriptions and publishing.
type Bus struct {
	subscribers map[EventType][]chan Event
	all         []chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBuffer
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type.
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events.
func (b *Bus) SubscribeAll() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.all = append(b.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking; events to full
// subscriber buffers are dropped and counted.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishStatus publishes a canonical-status update.
func (b *Bus) PublishStatus(jobID string, desc models.JobDescriptor) {
	b.Publish(&StatusEvent{
		BaseEvent:  BaseEvent{EventType: EventStatus, Time: time.Now()},
		JobID:      jobID,
		Descriptor: desc,
	})
}

// PublishLog publishes an appended status-log entry.
func (b *Bus) PublishLog(jobID, message string) {
	b.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		JobID:     jobID,
		Message:   message,
	})
}

// PublishStateChange publishes a workflow phase transition.
func (b *Bus) PublishStateChange(runID, oldPhase, newPhase, jobID string) {
	b.Publish(&StateChangeEvent{
		BaseEvent: BaseEvent{EventType: EventStateChange, Time: time.Now()},
		RunID:     runID,
		OldPhase:  oldPhase,
		NewPhase:  newPhase,
		JobID:     jobID,
	})
}

// PublishError publishes a user-visible error.
func (b *Bus) PublishError(jobID, message string, err error) {
	b.Publish(&ErrorEvent{
		BaseEvent: BaseEvent{EventType: EventError, Time: time.Now()},
		JobID:     jobID,
		Message:   message,
		Err:       err,
	})
}

// PublishComplete publishes the end of a run.
func (b *Bus) PublishComplete(jobID string, failed bool, resultRef string) {
	b.Publish(&CompleteEvent{
		BaseEvent:       BaseEvent{EventType: EventComplete, Time: time.Now()},
		JobID:           jobID,
		Failed:          failed,
		ResultReference: resultRef,
	})
}

// Unsubscribe removes a subscription from a specific event type.
func (b *Bus) Unsubscribe(eventType EventType, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	subscribers := b.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			b.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription from every event type and the
// all-events list.
func (b *Bus) UnsubscribeAll(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for eventType, subscribers := range b.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				b.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}
	for i, subCh := range b.all {
		if subCh == ch {
			b.all[i] = b.all[len(b.all)-1]
			b.all = b.all[:len(b.all)-1]
			break
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
}

// DroppedEvents returns the number of events dropped due to full buffers.
func (b *Bus) DroppedEvents() int64 {
	return b.dropped.Load()
}
