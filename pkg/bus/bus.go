// Package bus is a typed publish/subscribe dispatcher with a bounded event
// history. It carries no domain knowledge: payloads are opaque, with optional
// ticker/order references derived for logging.
package bus

import (
	"fmt"
	"sync"
	"time"

	"order_core/pkg/logger"
)

type Type string

// TickerRef is implemented by payloads that relate to one ticker.
type TickerRef interface {
	TickerRef() string
}

// OrderRef is implemented by payloads that relate to one order.
type OrderRef interface {
	OrderRef() string
}

// Event is immutable once published.
type Event struct {
	Type    Type
	Data    any
	Ticker  string
	OrderID string
	At      time.Time
}

// Handler failures are caught and logged; they never reach the publisher and
// never prevent sibling handlers from running.
type Handler func(Event) error

type SubID uint64

type subscription struct {
	id    SubID
	fn    Handler
	async bool
}

const DefaultHistorySize = 1000

type Bus struct {
	mu     sync.RWMutex
	nextID SubID
	subs   map[Type][]subscription

	histMu  sync.Mutex
	history []Event // ring
	head    int
	count   int
}

func New(historySize int) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Bus{
		subs:    make(map[Type][]subscription),
		history: make([]Event, historySize),
	}
}

// Subscribe registers a handler for one event type. Synchronous handlers run
// inline on the publisher's call path in subscription order; asynchronous
// ones run concurrently on PublishAsync.
func (b *Bus) Subscribe(t Type, fn Handler, async bool) SubID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn, async: async})
	return id
}

func (b *Bus) Unsubscribe(t Type, id SubID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[t]
	for i, s := range list {
		if s.id == id {
			b.subs[t] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish records the event and runs all synchronous handlers inline, in
// subscription order. Asynchronous subscribers are skipped.
func (b *Bus) Publish(t Type, data any) Event {
	ev := b.record(t, data)
	syncSubs, _ := b.snapshot(t)
	for _, s := range syncSubs {
		b.invoke(s, ev)
	}
	return ev
}

// PublishAsync runs synchronous handlers to completion first, then fans out
// asynchronous handlers concurrently and waits for every one to finish or
// fail independently. No handler's failure cancels a sibling.
func (b *Bus) PublishAsync(t Type, data any) Event {
	ev := b.record(t, data)
	syncSubs, asyncSubs := b.snapshot(t)
	for _, s := range syncSubs {
		b.invoke(s, ev)
	}

	var wg sync.WaitGroup
	for _, s := range asyncSubs {
		wg.Add(1)
		go func(s subscription) {
			defer wg.Done()
			b.invoke(s, ev)
		}(s)
	}
	wg.Wait()
	return ev
}

func (b *Bus) snapshot(t Type) (syncSubs, asyncSubs []subscription) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs[t] {
		if s.async {
			asyncSubs = append(asyncSubs, s)
		} else {
			syncSubs = append(syncSubs, s)
		}
	}
	return syncSubs, asyncSubs
}

func (b *Bus) invoke(s subscription, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("event handler panic on %s: %v", ev.Type, p)
		}
	}()
	if err := s.fn(ev); err != nil {
		logger.Error("event handler error on %s (ticker=%s order=%s): %v",
			ev.Type, ev.Ticker, ev.OrderID, err)
	}
}

func (b *Bus) record(t Type, data any) Event {
	ev := Event{Type: t, Data: data, At: time.Now()}
	if r, ok := data.(TickerRef); ok {
		ev.Ticker = r.TickerRef()
	}
	if r, ok := data.(OrderRef); ok {
		ev.OrderID = r.OrderRef()
	}

	b.histMu.Lock()
	b.history[b.head] = ev
	b.head = (b.head + 1) % len(b.history)
	if b.count < len(b.history) {
		b.count++
	}
	b.histMu.Unlock()
	return ev
}

// History returns up to limit most recent events, oldest first. limit <= 0
// means everything retained.
func (b *Bus) History(limit int) []Event {
	return b.filter(limit, func(Event) bool { return true })
}

// HistoryByType returns up to limit most recent events of one type, oldest
// first.
func (b *Bus) HistoryByType(t Type, limit int) []Event {
	return b.filter(limit, func(ev Event) bool { return ev.Type == t })
}

// HistoryByDay reconstructs the events of one calendar day from the retained
// window. Reconstruction is bounded by the ring size.
func (b *Bus) HistoryByDay(day time.Time) []Event {
	y, m, d := day.Date()
	return b.filter(0, func(ev Event) bool {
		ey, em, ed := ev.At.Date()
		return ey == y && em == m && ed == d
	})
}

func (b *Bus) filter(limit int, keep func(Event) bool) []Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	out := make([]Event, 0, b.count)
	start := b.head - b.count
	for i := 0; i < b.count; i++ {
		idx := (start + i + len(b.history)) % len(b.history)
		if keep(b.history[idx]) {
			out = append(out, b.history[idx])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (b *Bus) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fmt.Sprintf("bus{types=%d}", len(b.subs))
}
