// Package ingress implements the producer-side entry points the host
// validator calls into on its own threads. Every exported method is
// synchronous, non-blocking, and never fails upward: it assigns a sequence
// number, builds an envelope, and hands it to a fan-out queue or the
// account coalescer, all without suspension points beyond an atomic
// increment and a buffered channel send.
//
// OnLoad assembles the rest of the pipeline: TLS identity, fan-out queues,
// the optional coalescer, and the transport server, in that order; the QUIC
// listener is bound last, since binding it takes the loaded TLS config. This is the Go-level equivalent of the real
// Geyser plugin's on_load hook; exposing the cgo constructor symbol the
// host loader actually calls is that loader's job, not this package's.
package ingress

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ample-labs/geyser-gateway/coalescer"
	"github.com/ample-labs/geyser-gateway/fanout"
	"github.com/ample-labs/geyser-gateway/log"
	"github.com/ample-labs/geyser-gateway/metrics"
	"github.com/ample-labs/geyser-gateway/plugin"
	"github.com/ample-labs/geyser-gateway/transport"
	"github.com/ample-labs/geyser-gateway/types"
)

// Adapter is the producer ingress adapter: the boundary between the
// validator's Geyser callback threads and this gateway's goroutines. It
// implements plugin.ProducerCallbacks; the host loader invokes it directly.
type Adapter struct {
	queues     *fanout.Set
	coalescer  *coalescer.Coalescer // nil if coalescing is disabled
	seq        [5]atomic.Uint64
	startupped atomic.Bool
	metrics    *metrics.Collector
	logger     *log.Logger
	configPath string

	srv    *transport.Server
	cancel context.CancelFunc
}

var _ plugin.ProducerCallbacks = (*Adapter)(nil)

// New returns an Adapter routing into queues, optionally through co
// for account updates. Pass a nil co to route accounts directly into the
// accounts queue. Use this constructor directly in tests that want to drive
// the adapter against fakes; production code should prefer NewPlugin plus
// OnLoad, which also stands up the transport server and coalescer.
func New(queues *fanout.Set, co *coalescer.Coalescer, m *metrics.Collector) *Adapter {
	return &Adapter{queues: queues, coalescer: co, metrics: m}
}

// NewPlugin returns an Adapter with no pipeline wired yet, mirroring how the
// host loader actually drives a Geyser plugin: it constructs the callback
// object first, then calls OnLoad(configPath) on it to finish setup.
func NewPlugin(m *metrics.Collector, logger *log.Logger) *Adapter {
	return &Adapter{metrics: m, logger: logger}
}

// OnLoad reads and validates the producer config at configPath, then
// assembles the pipeline in this order: TLS identity load,
// fan-out queues, the optional account coalescer, and the transport server,
// which begins accepting connections before OnLoad returns.
func (a *Adapter) OnLoad(configPath string) error {
	a.configPath = configPath

	cfg, gerr := types.LoadProducerConfig(configPath)
	if gerr != nil {
		return gerr
	}
	tlsCfg, gerr := transport.ServerTLSConfig(cfg.TransportOpts.CertPath, cfg.TransportOpts.KeyPath)
	if gerr != nil {
		return gerr
	}
	compression, gerr := cfg.TransportCfg.Compression()
	if gerr != nil {
		return gerr
	}

	logger := a.logger
	if logger == nil {
		logger = log.NewLogger(log.SessionContext{})
	}

	queues := fanout.NewSet(a.metrics)
	a.queues = queues

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if cfg.UseCoalescer {
		out := make(chan *types.EventEnvelope, fanout.DefaultCapacity(types.EventKindAccount))
		co := coalescer.New(time.Duration(cfg.CoalescerUs)*time.Microsecond, out, a.metrics)
		a.coalescer = co
		go co.Run(ctx)
		go forwardCoalesced(queues, co, out)
	}

	srv, gerr := transport.Start(transport.ServerConfig{
		BindAddr:    cfg.BindAddr,
		TLS:         tlsCfg,
		ProducerID:  uuid.New(),
		Compression: compression,
	}, queues, a.metrics, logger)
	if gerr != nil {
		cancel()
		return gerr
	}
	a.srv = srv
	go srv.Serve(ctx)

	return nil
}

// forwardCoalesced relays the coalescer's emitted envelopes into the
// accounts queue until co.Done() closes, then drains whatever it already
// flushed synchronously on shutdown before returning.
func forwardCoalesced(queues *fanout.Set, co *coalescer.Coalescer, out <-chan *types.EventEnvelope) {
	for {
		select {
		case env := <-out:
			queues.For(types.EventKindAccount).Push(env)
		case <-co.Done():
			for {
				select {
				case env := <-out:
					queues.For(types.EventKindAccount).Push(env)
				default:
					return
				}
			}
		}
	}
}

// OnUnload cancels the pipeline's context, which makes the coalescer flush
// its pending entries and stops every connection's data streams (envelopes
// still queued are not sent), then closes the transport server, reversing
// the startup order.
func (a *Adapter) OnUnload() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.srv != nil {
		a.srv.Close()
	}
}

// WantsAccounts, WantsTransactions, WantsEntries, WantsBlocks, and
// WantsSlotStatus always report true: this gateway relays every kind it
// receives rather than subscribing selectively.
func (a *Adapter) WantsAccounts() bool     { return true }
func (a *Adapter) WantsTransactions() bool { return true }
func (a *Adapter) WantsEntries() bool      { return true }
func (a *Adapter) WantsBlocks() bool       { return true }
func (a *Adapter) WantsSlotStatus() bool   { return true }

// NotifyEndOfStartup marks the end-of-startup snapshot phase. Account
// notifications received before this call are discarded; the gateway
// intentionally does not stream the validator's initial account snapshot.
func (a *Adapter) NotifyEndOfStartup() error {
	a.startupped.Store(true)
	return nil
}

func (a *Adapter) nextSeq(kind types.EventKind) uint64 {
	return a.seq[kind].Add(1)
}

// UpdateAccount submits an account update. Payload is the host-plugin-defined
// account blob; pubkey and writeVersion are extracted by the caller (the
// host ABI shim) since only it knows the payload's internal layout.
func (a *Adapter) UpdateAccount(slot uint64, pubkey [32]byte, writeVersion uint64, payload []byte) error {
	if !a.startupped.Load() {
		return nil
	}
	env := &types.EventEnvelope{
		Kind:                types.EventKindAccount,
		Slot:                slot,
		MonotonicSeq:        a.nextSeq(types.EventKindAccount),
		AccountPubkey:       pubkey,
		AccountWriteVersion: writeVersion,
		Payload:             payload,
	}
	if a.coalescer != nil {
		a.coalescer.Insert(env)
		return nil
	}
	a.queues.For(types.EventKindAccount).Push(env)
	return nil
}

// NotifyTransaction submits a transaction notification.
func (a *Adapter) NotifyTransaction(slot uint64, payload []byte) error {
	a.queues.For(types.EventKindTransaction).Push(&types.EventEnvelope{
		Kind:         types.EventKindTransaction,
		Slot:         slot,
		MonotonicSeq: a.nextSeq(types.EventKindTransaction),
		Payload:      payload,
	})
	return nil
}

// NotifyEntry submits an entry notification.
func (a *Adapter) NotifyEntry(slot uint64, payload []byte) error {
	a.queues.For(types.EventKindEntry).Push(&types.EventEnvelope{
		Kind:         types.EventKindEntry,
		Slot:         slot,
		MonotonicSeq: a.nextSeq(types.EventKindEntry),
		Payload:      payload,
	})
	return nil
}

// NotifyBlockMetadata submits a block metadata notification.
func (a *Adapter) NotifyBlockMetadata(slot uint64, payload []byte) error {
	a.queues.For(types.EventKindBlock).Push(&types.EventEnvelope{
		Kind:         types.EventKindBlock,
		Slot:         slot,
		MonotonicSeq: a.nextSeq(types.EventKindBlock),
		Payload:      payload,
	})
	return nil
}

// UpdateSlotStatus submits a slot status update.
func (a *Adapter) UpdateSlotStatus(slot uint64, payload []byte) error {
	a.queues.For(types.EventKindSlotStatus).Push(&types.EventEnvelope{
		Kind:         types.EventKindSlotStatus,
		Slot:         slot,
		MonotonicSeq: a.nextSeq(types.EventKindSlotStatus),
		Payload:      payload,
	})
	return nil
}
