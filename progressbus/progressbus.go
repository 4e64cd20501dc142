// Package progressbus fans in the two sources of run progress — an
// in-process queue for manual runs and the durable event log written by
// worker/scheduler processes — into one ordered stream per session.
//
// Grounded on original_source/app.py's stream_progress generator (mem-queue
// then db-rows, keepalive, idle cap, done-terminates-stream) and
// pepperpark-gomap/internal/syncer's non-blocking bounded-channel emit
// idiom, adapted here to a capacity-bounded per-session LRU instead of an
// unbounded channel so a slow consumer cannot grow memory without limit.
package progressbus

import (
	"context"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cleanr/inboxengine/internal/eventlog"
	"github.com/cleanr/inboxengine/internal/logger"
)

const (
	defaultQueueCapacity = 500
	durableScanBatch     = 200
	pollInterval         = 150 * time.Millisecond
)

// keepAliveInterval and idleCap are vars, not consts, so tests can shrink
// them instead of waiting out real 5s/3600s windows.
var (
	keepAliveInterval = 5 * time.Second
	idleCap           = 3600 * time.Second
)

// Frame is one unit handed to a stream consumer: either a real event or a
// keepalive ping. ID is set only when the event came from the durable log,
// since that is the only side a client can resume from.
type Frame struct {
	Event     string
	Data      any
	ID        *uint64
	Keepalive bool
}

type memEvent struct {
	seq   uint64
	event string
	data  any
}

// memQueue is one manual run's in-process event backlog, bounded to
// capacity entries; once full, the oldest entry is evicted on the next
// Emit. Safe for concurrent use.
type memQueue struct {
	mu      sync.Mutex
	cache   *lru.Cache[uint64, memEvent]
	nextSeq uint64
}

func newMemQueue(capacity int) *memQueue {
	c, _ := lru.New[uint64, memEvent](capacity)
	return &memQueue{cache: c}
}

func (q *memQueue) emit(event string, data any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextSeq++
	q.cache.Add(q.nextSeq, memEvent{seq: q.nextSeq, event: event, data: data})
}

// since returns every queued event with seq > after, oldest first. Peek is
// used deliberately instead of Get so reading the backlog never perturbs
// the cache's eviction order.
func (q *memQueue) since(after uint64) []memEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := q.cache.Keys()
	out := make([]memEvent, 0, len(keys))
	for _, k := range keys {
		if k <= after {
			continue
		}
		if v, ok := q.cache.Peek(k); ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Bus is the fan-in hub: Emit feeds the in-process side (manual runs in
// the same process), Stream reads both sides for a session.
type Bus struct {
	mu       sync.Mutex
	sessions map[string]*memQueue
	capacity int

	events *eventlog.Log
	log    logger.Logger
}

func New(events *eventlog.Log, log logger.Logger) *Bus {
	return &Bus{
		sessions: make(map[string]*memQueue),
		capacity: defaultQueueCapacity,
		events:   events,
		log:      log,
	}
}

// Emit publishes an event to a session's in-process queue. Called by code
// running a manual cleanup in the same process as the API server; worker
// processes spawned by the orchestrator or scheduler have no access to
// this Bus and rely solely on the durable log.
func (b *Bus) Emit(sessionID, event string, data any) {
	b.queueFor(sessionID).emit(event, data)
}

func (b *Bus) queueFor(sessionID string) *memQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.sessions[sessionID]
	if !ok {
		q = newMemQueue(b.capacity)
		b.sessions[sessionID] = q
	}
	return q
}

// Stream merges the in-memory and durable sources for one session onto a
// single channel, preserving each source's own order, until either source
// yields a "done" event, the context is cancelled, or the idle cap (3600s)
// elapses. lastSeenID resumes the durable side only; in-memory replay
// always starts from the beginning of that run's backlog.
func (b *Bus) Stream(ctx context.Context, sessionID string, lastSeenID uint64) <-chan Frame {
	out := make(chan Frame)
	go b.run(ctx, sessionID, lastSeenID, out)
	return out
}

func (b *Bus) run(ctx context.Context, sessionID string, lastSeenID uint64, out chan<- Frame) {
	defer close(out)

	var memSent uint64
	dbLastID := lastSeenID
	deadline := time.Now().Add(idleCap)
	lastPing := time.Now()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	send := func(f Frame) bool {
		select {
		case out <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if time.Now().After(deadline) {
			return
		}

		b.mu.Lock()
		q, hasMem := b.sessions[sessionID]
		b.mu.Unlock()
		if hasMem {
			for _, e := range q.since(memSent) {
				memSent = e.seq
				if !send(Frame{Event: e.event, Data: e.data}) {
					return
				}
				if e.event == "done" {
					return
				}
			}
		}

		rows, err := b.events.Scan(sessionID, dbLastID, durableScanBatch)
		if err != nil {
			b.log.Warn("progressbus: durable scan failed")
		} else {
			for _, row := range rows {
				dbLastID = row.ID
				id := row.ID
				if !send(Frame{Event: row.Event, Data: row.Data, ID: &id}) {
					return
				}
				if row.Event == "done" {
					return
				}
			}
		}

		if time.Since(lastPing) >= keepAliveInterval {
			if !send(Frame{Keepalive: true}) {
				return
			}
			lastPing = time.Now()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
