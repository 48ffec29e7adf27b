package bridge

import (
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// EventEmitter is the in-process side of the event channel. Listeners for
// the same event run in registration order.
type EventEmitter struct {
	listeners *xsync.Map[uint64, *listener]
	nextID    atomic.Uint64
	logger    *slog.Logger
}

type listener struct {
	id      uint64
	event   string
	fn      Listener
	emitter *EventEmitter
}

func (l *listener) Remove() {
	l.emitter.listeners.Delete(l.id)
}

func NewEventEmitter(logger *slog.Logger) *EventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventEmitter{
		listeners: xsync.NewMap[uint64, *listener](),
		logger:    logger,
	}
}

func (e *EventEmitter) AddListener(event string, fn Listener) Subscription {
	l := &listener{
		id:      e.nextID.Add(1),
		event:   event,
		fn:      fn,
		emitter: e,
	}
	e.listeners.Store(l.id, l)
	return l
}

func (e *EventEmitter) ListenerCount(event string) int {
	return len(e.matching(event))
}

// Emit invokes every listener of event and returns how many ran. A panicking
// listener is logged and does not stop the others.
func (e *EventEmitter) Emit(event string, payload map[string]any) int {
	matched := e.matching(event)
	if len(matched) == 0 {
		e.logger.Debug("No listener for native event", "event", event)
		return 0
	}

	for _, l := range matched {
		e.invoke(l, payload)
	}
	return len(matched)
}

func (e *EventEmitter) invoke(l *listener, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Event listener panicked", "event", l.event, "panic", r)
		}
	}()
	l.fn(payload)
}

func (e *EventEmitter) matching(event string) []*listener {
	var matched []*listener
	e.listeners.Range(func(_ uint64, l *listener) bool {
		if l.event == event {
			matched = append(matched, l)
		}
		return true
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })
	return matched
}
