package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type EventCode uint16

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT EventCode = 0x01

	// A user-facing status message changed.
	/* Context usage:
	 * Data = Status
	 */
	EVENT_CODE_STATUS EventCode = 0x02

	// An anchor was attached for a target.
	/* Context usage:
	 * Data = tracking.AnchorEvent
	 */
	EVENT_CODE_ANCHOR_CREATED EventCode = 0x03

	// An anchor was detached because its target stopped tracking.
	/* Context usage:
	 * Data = tracking.AnchorEvent
	 */
	EVENT_CODE_ANCHOR_RELEASED EventCode = 0x04

	// Anchor creation failed; the target stays idle.
	/* Context usage:
	 * Data = tracking.AnchorEvent
	 */
	EVENT_CODE_ANCHOR_FAILED EventCode = 0x05

	// A scan was accepted and the image database is being built.
	EVENT_CODE_SCAN_STARTED EventCode = 0x06

	// The session was reconfigured with a new image database.
	EVENT_CODE_DATABASE_READY EventCode = 0x07

	// The shared renderable finished building (successfully or not).
	EVENT_CODE_RENDERABLE_READY EventCode = 0x08

	// Host lifecycle.
	EVENT_CODE_SESSION_PAUSED  EventCode = 0x09
	EVENT_CODE_SESSION_RESUMED EventCode = 0x0A

	// A scan ended without a usable image database.
	/* Context usage:
	 * Data = error
	 */
	EVENT_CODE_SCAN_FAILED EventCode = 0x0B

	MAX_EVENT_CODE EventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

type EventContext struct {
	Type EventCode
	Data interface{}
}

// Should return true if handled.
type FnOnEvent func(ctx EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventSystem dispatches events synchronously on the caller's goroutine.
type EventSystem struct {
	mu         sync.RWMutex
	registered map[EventCode][]*registeredEvent
}

func NewEventSystem() *EventSystem {
	return &EventSystem{
		registered: make(map[EventCode][]*registeredEvent),
	}
}

func (es *EventSystem) Shutdown() error {
	es.mu.Lock()
	defer es.mu.Unlock()
	// Free the events arrays. And objects pointed to should be destroyed on their own.
	es.registered = make(map[EventCode][]*registeredEvent)
	return nil
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listeners will not be registered again and will cause this to return false.
 */
func (es *EventSystem) Register(code EventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	for _, e := range es.registered[code] {
		if listener != nil && e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	es.registered[code] = append(es.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns false.
 */
func (es *EventSystem) Unregister(code EventCode, listener interface{}) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	events := es.registered[code]
	for i, e := range events {
		if e.listener == listener {
			es.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	// Not found.
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 */
func (es *EventSystem) Fire(ctx EventContext) bool {
	if es == nil {
		return false
	}
	es.mu.RLock()
	events := append([]*registeredEvent(nil), es.registered[ctx.Type]...)
	es.mu.RUnlock()

	for _, e := range events {
		if e.callback(ctx) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
