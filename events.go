package sealink

import "sync"

// Event types delivered to the host.
const (
	EventMessageSent          = "message:sent"
	EventMessageReceived      = "message:received"
	EventGroupMessageSent     = "group:message:sent"
	EventGroupMessageReceived = "group:message:received"
	EventContactDiscovered    = "contact:discovered"
	EventRequestReceived      = "contact:request:received"
	EventRequestAccepted      = "contact:request:accepted"
	EventRequestDeclined      = "contact:request:declined"
	EventContactPresence      = "contact:presence"
)

// Event is one outbound notification toward the host/UI.
type Event struct {
	Type string
	Data interface{}
}

// eventQueue is a bounded outbound queue. When the host stops draining it,
// the oldest event is dropped so the receive pipeline never blocks on the
// UI. That drop policy is the backpressure contract.
type eventQueue struct {
	mu sync.Mutex
	ch chan Event
}

func newEventQueue(size int) *eventQueue {
	if size <= 0 {
		size = 128
	}
	return &eventQueue{ch: make(chan Event, size)}
}

func (q *eventQueue) emit(eventType string, data interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	event := Event{Type: eventType, Data: data}
	select {
	case q.ch <- event:
		return
	default:
	}
	select {
	case dropped := <-q.ch:
		log.Warning("Event queue full, dropped " + dropped.Type)
	default:
	}
	select {
	case q.ch <- event:
	default:
	}
}

func (q *eventQueue) channel() <-chan Event {
	return q.ch
}
