package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/ample-labs/geyser-gateway/coalescer"
	"github.com/ample-labs/geyser-gateway/fanout"
	"github.com/ample-labs/geyser-gateway/metrics"
	"github.com/ample-labs/geyser-gateway/plugin"
	"github.com/ample-labs/geyser-gateway/types"
)

// TestAdapter_SatisfiesProducerCallbacks exercises the Adapter strictly
// through the plugin.ProducerCallbacks interface, the shape the host loader
// actually drives it with. It uses the low-level New constructor rather than
// OnLoad's real config-driven assembly, which is covered end to end by
// TestAdapter_OnLoad_AssemblesPipeline in pipeline_test.go.
func TestAdapter_SatisfiesProducerCallbacks(t *testing.T) {
	m := metrics.NewCollector()
	queues := fanout.NewSet(m)
	var cb plugin.ProducerCallbacks = New(queues, nil, m)

	if !cb.WantsAccounts() || !cb.WantsTransactions() || !cb.WantsEntries() || !cb.WantsBlocks() || !cb.WantsSlotStatus() {
		t.Fatal("expected all Wants* flags to be true")
	}
	if err := cb.NotifyEndOfStartup(); err != nil {
		t.Fatalf("NotifyEndOfStartup: %v", err)
	}
	if err := cb.UpdateAccount(1, [32]byte{1}, 1, []byte("x")); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if err := cb.NotifyTransaction(1, []byte("y")); err != nil {
		t.Fatalf("NotifyTransaction: %v", err)
	}
	if err := cb.NotifyEntry(1, []byte("z")); err != nil {
		t.Fatalf("NotifyEntry: %v", err)
	}
	if err := cb.NotifyBlockMetadata(1, []byte("w")); err != nil {
		t.Fatalf("NotifyBlockMetadata: %v", err)
	}
	if err := cb.UpdateSlotStatus(1, []byte("v")); err != nil {
		t.Fatalf("UpdateSlotStatus: %v", err)
	}
	cb.OnUnload()

	if got := queues.For(types.EventKindAccount).Len(); got != 1 {
		t.Errorf("accounts queue len = %d, want 1", got)
	}
	if got := queues.For(types.EventKindTransaction).Len(); got != 1 {
		t.Errorf("transactions queue len = %d, want 1", got)
	}
}

func TestAdapter_DiscardsAccountsBeforeEndOfStartup(t *testing.T) {
	m := metrics.NewCollector()
	queues := fanout.NewSet(m)
	a := New(queues, nil, m)

	a.UpdateAccount(1, [32]byte{1}, 1, []byte("x"))
	if got := queues.For(types.EventKindAccount).Len(); got != 0 {
		t.Fatalf("queue len = %d, want 0 before NotifyEndOfStartup", got)
	}

	a.NotifyEndOfStartup()
	a.UpdateAccount(2, [32]byte{1}, 2, []byte("y"))
	if got := queues.For(types.EventKindAccount).Len(); got != 1 {
		t.Fatalf("queue len = %d, want 1 after NotifyEndOfStartup", got)
	}
}

func TestAdapter_MonotonicSeqPerKind(t *testing.T) {
	m := metrics.NewCollector()
	queues := fanout.NewSet(m)
	a := New(queues, nil, m)
	a.NotifyEndOfStartup()

	a.NotifyTransaction(1, []byte("a"))
	a.NotifyTransaction(1, []byte("b"))
	a.NotifyEntry(1, []byte("c"))

	done := make(chan struct{})
	tx1, _ := queues.For(types.EventKindTransaction).Pop(done)
	tx2, _ := queues.For(types.EventKindTransaction).Pop(done)
	entry1, _ := queues.For(types.EventKindEntry).Pop(done)

	if tx1.MonotonicSeq != 1 || tx2.MonotonicSeq != 2 {
		t.Errorf("transaction seqs = (%d, %d), want (1, 2)", tx1.MonotonicSeq, tx2.MonotonicSeq)
	}
	if entry1.MonotonicSeq != 1 {
		t.Errorf("entry seq = %d, want 1 (independent counter per kind)", entry1.MonotonicSeq)
	}
}

func TestAdapter_RoutesAccountsThroughCoalescerWhenPresent(t *testing.T) {
	m := metrics.NewCollector()
	queues := fanout.NewSet(m)
	out := make(chan *types.EventEnvelope, 4)
	co := coalescer.New(10*time.Millisecond, out, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go co.Run(ctx)

	a := New(queues, co, m)
	a.NotifyEndOfStartup()
	a.UpdateAccount(1, [32]byte{9}, 1, []byte("z"))

	select {
	case env := <-out:
		if env.Slot != 1 {
			t.Errorf("coalesced envelope slot = %d, want 1", env.Slot)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for coalesced flush")
	}

	if got := queues.For(types.EventKindAccount).Len(); got != 0 {
		t.Errorf("accounts queue len = %d, want 0 (coalescer should intercept)", got)
	}
}

func TestAdapter_RoutesDirectlyWhenNoCoalescer(t *testing.T) {
	m := metrics.NewCollector()
	queues := fanout.NewSet(m)
	a := New(queues, nil, m)
	a.NotifyEndOfStartup()

	a.UpdateAccount(1, [32]byte{9}, 1, []byte("z"))
	if got := queues.For(types.EventKindAccount).Len(); got != 1 {
		t.Errorf("accounts queue len = %d, want 1", got)
	}
}
