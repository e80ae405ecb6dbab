// Package sink implements the consumer-side dispatch sink: one goroutine
// per event kind draining decoded envelopes and forwarding them, in order,
// to the local plugin host.
package sink

import (
	"context"
	"fmt"

	"github.com/ample-labs/geyser-gateway/log"
	"github.com/ample-labs/geyser-gateway/plugin"
	"github.com/ample-labs/geyser-gateway/types"
)

// Dispatcher owns the handle to the local plugin host and forwards decoded
// envelopes to it, one goroutine per kind, preserving arrival order within
// that kind.
type Dispatcher struct {
	host   plugin.ConsumerHost
	logger *log.Logger
}

// New returns a Dispatcher forwarding to host.
func New(host plugin.ConsumerHost, logger *log.Logger) *Dispatcher {
	return &Dispatcher{host: host, logger: logger}
}

// Run drains in, invoking the host's On<Kind> method for each envelope in
// order, until in is closed or ctx is cancelled. A panic inside the host
// callback is recovered, logged, and counted rather than propagated: a
// plugin bug must not crash the gateway.
func (d *Dispatcher) Run(ctx context.Context, kind types.EventKind, in <-chan *types.EventEnvelope, onError func(types.EventKind)) {
	handler := plugin.DispatchFor(d.host, kind)
	if handler == nil {
		return
	}
	for {
		select {
		case env, ok := <-in:
			if !ok {
				return
			}
			d.dispatchOne(ctx, kind, handler, env, onError)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, kind types.EventKind, handler func(context.Context, *types.EventEnvelope) error, env *types.EventEnvelope, onError func(types.EventKind)) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("plugin host panicked", map[string]any{
				"kind":  kind.String(),
				"panic": fmt.Sprint(r),
			})
			if onError != nil {
				onError(kind)
			}
		}
	}()

	if err := handler(ctx, env); err != nil {
		d.logger.Warn("plugin host returned error", map[string]any{
			"kind": kind.String(),
			"err":  err.Error(),
		})
		if onError != nil {
			onError(kind)
		}
	}
}
