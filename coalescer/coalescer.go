// Package coalescer implements the optional account-update coalescer that
// sits in front of the accounts fan-out queue.
//
// The coalescer is a message-driven single-goroutine actor: a single
// goroutine owns a pubkey->entry map and selects between an insert channel
// and a flush ticker, so no lock is needed. This differs from the
// mutex-guarded map the original proxy used; the actor form follows this
// codebase's preference for goroutine-owned state over shared locks.
package coalescer

import (
	"context"
	"time"

	"github.com/ample-labs/geyser-gateway/metrics"
	"github.com/ample-labs/geyser-gateway/types"
)

// MinFlusherTickDivisor bounds the flusher tick at window/MinFlusherTickDivisor,
// per the guarantee that a coalesced update is delayed by at most
// window + flusherTick.
const MinFlusherTickDivisor = 4

// entry is one pending, not-yet-flushed account update.
type entry struct {
	envelope           *types.EventEnvelope
	firstInsertInstant time.Time
}

// Coalescer merges account updates for the same pubkey within a time
// window, emitting the highest-(slot, write_version) update seen once the
// window elapses. Flushes follow the order in which pubkeys were first
// inserted. A pending update is never replaced by one with lower progress;
// once a pubkey's entry is flushed it is forgotten, so a later update with
// lower progress than the one already emitted starts a new entry and is
// emitted as well.
type Coalescer struct {
	window  time.Duration
	tick    time.Duration
	out     chan<- *types.EventEnvelope
	insert  chan *types.EventEnvelope
	flushed chan struct{}
	metrics *metrics.Collector
}

// New returns a Coalescer that emits flushed envelopes onto out. The
// flusher tick is window/MinFlusherTickDivisor, with a 1ms floor to avoid a
// busy-spinning ticker for very small windows.
func New(window time.Duration, out chan<- *types.EventEnvelope, m *metrics.Collector) *Coalescer {
	tick := window / MinFlusherTickDivisor
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	return &Coalescer{
		window:  window,
		tick:    tick,
		out:     out,
		insert:  make(chan *types.EventEnvelope, 1024),
		flushed: make(chan struct{}),
		metrics: m,
	}
}

// Insert submits env for coalescing. Never blocks for long: the insert
// channel is large enough to absorb bursts between ticks, and the actor
// goroutine drains it continuously while running.
func (c *Coalescer) Insert(env *types.EventEnvelope) {
	c.insert <- env
}

// Run owns the coalescer's pending-entry map and runs until ctx is
// cancelled, flushing every remaining entry synchronously before
// returning. Run must be called from exactly one goroutine.
func (c *Coalescer) Run(ctx context.Context) {
	pending := make(map[[32]byte]*entry)
	order := make([][32]byte, 0, 1024)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	defer close(c.flushed)

	for {
		select {
		case env := <-c.insert:
			c.insertLocked(pending, &order, env)
		case now := <-ticker.C:
			order = c.flushDue(pending, order, now)
		case <-ctx.Done():
			c.flushAll(pending, order)
			return
		}
	}
}

func (c *Coalescer) insertLocked(pending map[[32]byte]*entry, order *[][32]byte, env *types.EventEnvelope) {
	key := env.AccountPubkey
	existing, ok := pending[key]
	if !ok {
		pending[key] = &entry{envelope: env, firstInsertInstant: time.Now()}
		*order = append(*order, key)
		return
	}
	if env.Progress().Less(existing.envelope.Progress()) {
		// Stale relative to what's already pending; never regress.
		return
	}
	existing.envelope = env
	c.metrics.IncCoalesceMerge()
}

// flushDue emits every entry whose window has elapsed as of now, preserving
// the relative insertion order of first-touched pubkeys, and returns the
// remaining insertion order for entries still pending.
func (c *Coalescer) flushDue(pending map[[32]byte]*entry, order [][32]byte, now time.Time) [][32]byte {
	remaining := order[:0]
	for _, key := range order {
		e, ok := pending[key]
		if !ok {
			continue
		}
		if now.Sub(e.firstInsertInstant) >= c.window {
			c.out <- e.envelope
			c.metrics.IncCoalesceFlush()
			delete(pending, key)
			continue
		}
		remaining = append(remaining, key)
	}
	return remaining
}

// flushAll emits every remaining pending entry synchronously, in insertion
// order, for use at shutdown before the connection drains.
func (c *Coalescer) flushAll(pending map[[32]byte]*entry, order [][32]byte) {
	for _, key := range order {
		e, ok := pending[key]
		if !ok {
			continue
		}
		c.out <- e.envelope
		c.metrics.IncCoalesceFlush()
		delete(pending, key)
	}
}

// Done returns a channel closed once Run has returned and flushed every
// pending entry.
func (c *Coalescer) Done() <-chan struct{} {
	return c.flushed
}
