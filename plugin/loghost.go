package plugin

import (
	"context"

	"github.com/ample-labs/geyser-gateway/log"
	"github.com/ample-labs/geyser-gateway/types"
)

// LogHost is the gateway's built-in ConsumerHost: it logs every decoded
// envelope and forwards nothing further. Dynamically loading the
// validator-configured plugins named by --geyser-plugin-config is the
// embedding process's job (§1); LogHost stands in for that until one is
// wired in, and is useful on its own for observing the feed.
type LogHost struct {
	logger *log.Logger
}

// NewLogHost returns a ConsumerHost that logs each decoded record at debug
// level.
func NewLogHost(logger *log.Logger) *LogHost {
	return &LogHost{logger: logger}
}

func (h *LogHost) log(kind types.EventKind, record *types.EventEnvelope) error {
	h.logger.Debug("record", map[string]any{
		"kind": kind.String(),
		"slot": record.Slot,
		"seq":  record.MonotonicSeq,
	})
	return nil
}

func (h *LogHost) OnAccount(_ context.Context, record *types.EventEnvelope) error {
	return h.log(types.EventKindAccount, record)
}

func (h *LogHost) OnTransaction(_ context.Context, record *types.EventEnvelope) error {
	return h.log(types.EventKindTransaction, record)
}

func (h *LogHost) OnEntry(_ context.Context, record *types.EventEnvelope) error {
	return h.log(types.EventKindEntry, record)
}

func (h *LogHost) OnBlock(_ context.Context, record *types.EventEnvelope) error {
	return h.log(types.EventKindBlock, record)
}

func (h *LogHost) OnSlotStatus(_ context.Context, record *types.EventEnvelope) error {
	return h.log(types.EventKindSlotStatus, record)
}
