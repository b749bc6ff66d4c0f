package events

import (
	"sync"

	"github.com/medstra/streaming-avatar/internal/logging"
)

// Handler receives one event. Handlers run synchronously on the goroutine
// that emits; keep them short and hand long work to another goroutine.
type Handler func(Event)

// Subscription identifies one registered handler for removal.
type Subscription struct {
	eventType Type
	id        uint64
}

// Bridge is the typed publish/subscribe facade over both event sources.
// Events are delivered synchronously to listeners in registration order
// and are not queued: an event emitted with zero listeners is lost.
type Bridge struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Type][]registration
}

type registration struct {
	id uint64
	fn Handler
}

func NewBridge() *Bridge {
	return &Bridge{handlers: make(map[Type][]registration)}
}

// On registers a handler for one event type and returns the subscription
// used to remove it.
func (b *Bridge) On(t Type, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[t] = append(b.handlers[t], registration{id: b.nextID, fn: h})
	return Subscription{eventType: t, id: b.nextID}
}

// Off removes a previously registered handler. Removing an already-removed
// subscription is a no-op.
func (b *Bridge) Off(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[s.eventType]
	for i, r := range regs {
		if r.id == s.id {
			b.handlers[s.eventType] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Emit delivers ev to every handler registered for its type, in
// registration order, on the calling goroutine.
func (b *Bridge) Emit(ev Event) {
	b.mu.Lock()
	regs := b.handlers[ev.EventType()]
	fns := make([]Handler, len(regs))
	for i, r := range regs {
		fns[i] = r.fn
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// EmitRoomData parses a data-channel payload and emits the resulting
// event. Malformed payloads are logged and dropped; the bridge never
// surfaces them as errors.
func (b *Bridge) EmitRoomData(raw []byte) {
	ev, err := ParseRoomData(raw)
	if err != nil {
		logging.Debugw("dropping unparseable room data message", "err", err, "bytes", len(raw))
		return
	}
	b.Emit(ev)
}

// EmitSideChannel parses a side-channel control payload and emits the
// resulting event, dropping malformed input the same way.
func (b *Bridge) EmitSideChannel(raw []byte) {
	ev, err := ParseSideChannel(raw)
	if err != nil {
		logging.Debugw("dropping unparseable side-channel message", "err", err, "bytes", len(raw))
		return
	}
	b.Emit(ev)
}
