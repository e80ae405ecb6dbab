// Package plugin defines the narrow Go interfaces standing in for the
// validator's real Geyser plugin ABI. Neither interface does any dynamic
// loading; wiring a real .so/.dll plugin loader to either is the embedding
// process's job.
package plugin

import (
	"context"

	"github.com/ample-labs/geyser-gateway/types"
)

// ProducerCallbacks is the shape the ingress adapter is driven by. It
// mirrors the Geyser plugin trait's lifecycle and notification methods
// named in the host ABI (`on_load`, `on_unload`, `update_account`,
// `notify_end_of_startup`, `update_slot_status`, `notify_transaction`,
// `notify_entry`, `notify_block_metadata`), with the opaque payload already
// reduced to bytes by the caller. Every notification method returns an
// error only to match the host ABI's shape; `ingress.Adapter`'s own
// implementation never fails upward (§4.6) and always returns nil.
type ProducerCallbacks interface {
	// OnLoad is called once when the plugin is loaded, with the path to its
	// JSON config file.
	OnLoad(configPath string) error

	// OnUnload is called once as the plugin is being unloaded.
	OnUnload()

	// WantsAccounts, WantsTransactions, WantsEntries, WantsBlocks, and
	// WantsSlotStatus are introspection flags the host consults before
	// sending a notification kind, mirroring the real ABI's
	// account_data_notifications_enabled-style capability flags.
	WantsAccounts() bool
	WantsTransactions() bool
	WantsEntries() bool
	WantsBlocks() bool
	WantsSlotStatus() bool

	// UpdateAccount is called for every account write the host observes.
	UpdateAccount(slot uint64, pubkey [32]byte, writeVersion uint64, payload []byte) error

	// NotifyEndOfStartup marks the end of the host's initial account
	// snapshot replay.
	NotifyEndOfStartup() error

	// UpdateSlotStatus is called on every slot status transition the host
	// observes.
	UpdateSlotStatus(slot uint64, payload []byte) error

	// NotifyTransaction is called for every confirmed transaction.
	NotifyTransaction(slot uint64, payload []byte) error

	// NotifyEntry is called for every ledger entry.
	NotifyEntry(slot uint64, payload []byte) error

	// NotifyBlockMetadata is called for every finalized block's metadata.
	NotifyBlockMetadata(slot uint64, payload []byte) error
}

// ConsumerHost is the shape the dispatch sink forwards decoded events to:
// one On<Kind> method per event kind, matching the opaque-payload shape the
// wire format carries. Errors are logged and counted by the dispatcher, not
// propagated to the caller; a panic inside an On<Kind> call is recovered by
// the dispatcher and treated the same way.
type ConsumerHost interface {
	OnAccount(ctx context.Context, record *types.EventEnvelope) error
	OnTransaction(ctx context.Context, record *types.EventEnvelope) error
	OnEntry(ctx context.Context, record *types.EventEnvelope) error
	OnBlock(ctx context.Context, record *types.EventEnvelope) error
	OnSlotStatus(ctx context.Context, record *types.EventEnvelope) error
}

// DispatchFor returns the ConsumerHost method that handles envelopes of
// kind, so the dispatch sink can build its per-kind jump table once at
// startup instead of switching on kind for every envelope.
func DispatchFor(host ConsumerHost, kind types.EventKind) func(context.Context, *types.EventEnvelope) error {
	switch kind {
	case types.EventKindAccount:
		return host.OnAccount
	case types.EventKindTransaction:
		return host.OnTransaction
	case types.EventKindEntry:
		return host.OnEntry
	case types.EventKindBlock:
		return host.OnBlock
	case types.EventKindSlotStatus:
		return host.OnSlotStatus
	default:
		return nil
	}
}
