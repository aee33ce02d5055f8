package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/warden/internal/classify"
)

// DefaultLogCapacity bounds the replay buffer for late subscribers.
const DefaultLogCapacity = 1000

// Subscription delivery buffer. Sized to hold a full snapshot replay plus
// headroom for live events; a subscriber that falls further behind than this
// is dropped rather than allowed to block publishers.
const subscriptionBuffer = DefaultLogCapacity + 256

// Subscription is one observer's ordered event stream. Events arrive on C in
// the order they were published. C is closed when the subscriber is dropped
// for lagging or when the broadcaster shuts down.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	cancel func()
	once   sync.Once
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() { s.once.Do(s.cancel) }

// Broadcaster is the process-wide fan-out hub. It keeps the latest status and
// stats plus a bounded log ring, replays that snapshot to every new
// subscriber, and then streams incremental events in publish order.
//
// Publishing follows an append-then-publish pattern: the snapshot fields are
// updated first, then the event is fanned out, all under one short critical
// section so per-subscriber ordering matches publish order.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	logs   *logRing
	status StatusEvent
	stats  StatsEvent
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		logs:   newLogRing(DefaultLogCapacity),
		status: StatusEvent{Status: StatusStopped},
	}
}

// Subscribe registers an observer. The current snapshot (status, stats, full
// log buffer) is queued onto the subscription before any later event, so a
// late joiner sees a consistent picture with no gap.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch}
	sub.cancel = func() { b.unsubscribe(sub) }

	ch <- Event{Type: EventStatus, Data: b.status}
	ch <- Event{Type: EventStats, Data: b.stats}
	for _, le := range b.logs.last(0) {
		ch <- Event{Type: EventLog, Data: le}
	}
	if !b.closed {
		b.subs[sub] = struct{}{}
	} else {
		close(ch)
	}
	return sub
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// PublishStatus records and fans out a status event.
func (b *Broadcaster) PublishStatus(ev StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = ev
	b.fanOut(Event{Type: EventStatus, Data: ev})
}

// PublishStats records and fans out a stats event.
func (b *Broadcaster) PublishStats(ev StatsEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = ev
	b.fanOut(Event{Type: EventStats, Data: ev})
}

// PublishLog appends a log event to the ring and fans it out.
func (b *Broadcaster) PublishLog(ev LogEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs.add(ev)
	b.fanOut(Event{Type: EventLog, Data: ev})
}

// Log is a convenience for engine-generated entries.
func (b *Broadcaster) Log(level classify.Severity, source, message string) {
	b.PublishLog(LogEvent{
		Timestamp: time.Now(),
		Level:     level.String(),
		Source:    source,
		Message:   message,
	})
}

// WatcherLog records an info-level watcher-sourced entry.
func (b *Broadcaster) WatcherLog(message string) {
	b.Log(classify.SeverityInfo, SourceWatcher, message)
}

func (b *Broadcaster) fanOut(ev Event) {
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Lagging subscriber: drop it instead of blocking the hub.
			delete(b.subs, sub)
			close(sub.ch)
			slog.Warn("dropped lagging event subscriber")
		}
	}
}

// Status returns the latest status snapshot.
func (b *Broadcaster) Status() StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Stats returns the latest stats snapshot.
func (b *Broadcaster) Stats() StatsEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Logs returns the most recent limit entries in chronological order.
// limit <= 0 returns the full buffer.
func (b *Broadcaster) Logs(limit int) []LogEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logs.last(limit)
}

// Snapshot returns status, stats and the full log buffer in one consistent
// read.
func (b *Broadcaster) Snapshot() (StatusEvent, StatsEvent, []LogEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, b.stats, b.logs.last(0)
}

// Close drops all subscribers. Further publishes are silently discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
