package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/whizbang-go/ids"
	"github.com/krew-solutions/whizbang-go/session"
	"github.com/krew-solutions/whizbang-go/utils/testutils"
)

func setupCoordinator(t *testing.T) *Coordinator {
	pool, err := testutils.NewPgSessionPool()
	require.NoError(t, err)

	c := NewCoordinator(pool).WithTablePrefix("wh_coord_test")
	ctx := context.Background()
	require.NoError(t, c.Setup(ctx))
	dropCoordinatorTables(t, c, pool)
	require.NoError(t, c.Setup(ctx))
	return c
}

func dropCoordinatorTables(t *testing.T, c *Coordinator, pool session.SessionPool) {
	ctx := context.Background()
	_ = pool.Session(ctx, func(s session.Session) error {
		dbSession := s.(session.DbSession)
		for _, table := range []string{
			c.tables.serviceInstance, c.tables.partitionAssignment, c.tables.outbox,
			c.tables.inbox, c.tables.dedup, c.tables.eventStore, c.tables.receptorLog,
			c.tables.perspectiveCheckpoint, c.tables.activeStream,
		} {
			_, _ = dbSession.Connection().Exec("DROP TABLE IF EXISTS " + table + " CASCADE")
		}
		return nil
	})
}

func newTestIdentity() Identity {
	return Identity{
		InstanceId:  ids.NewInstanceId(),
		ServiceName: "coordinator-test",
		HostName:    "test-host",
		ProcessId:   1,
	}
}

// A single ProcessWorkBatch call that submits a new outbox message must
// return it in the next batch, newly stored and owned by the calling
// instance — spec.md §4.3 steps 9, 11, 14.
func TestProcessWorkBatch_NewOutboxMessageIsReturned(t *testing.T) {
	c := setupCoordinator(t)
	ctx := context.Background()
	identity := newTestIdentity()
	cfg := DefaultConfig()

	msgID := ids.NewMessageId()
	batch, err := c.ProcessWorkBatch(ctx, identity, Completions{}, Failures{}, NewMessages{
		Outbox: []NewOutboxMessage{{
			MessageId:   msgID,
			Destination: "email",
			MessageType: "Welcome",
			Payload:     []byte(`{"to":"a@b.com"}`),
		}},
	}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	require.Len(t, batch.OutboxWork, 1)

	item := batch.OutboxWork[0]
	assert.Equal(t, msgID.String(), item.MessageId.String())
	assert.Equal(t, "email", item.Destination)
	assert.True(t, item.BatchFlags&BatchFlagNewlyStored != 0)
	assert.Equal(t, 1, batch.Stats.LiveInstances)
	assert.Equal(t, 0, batch.Stats.ThisInstanceRank)
}

// Completing an outbox message sets StatusPublished and it must not be
// returned again on the next call (spec.md §4.2 step 5/terminal deletion).
func TestProcessWorkBatch_OutboxCompletionRemovesRowFromFutureBatches(t *testing.T) {
	c := setupCoordinator(t)
	ctx := context.Background()
	identity := newTestIdentity()
	cfg := DefaultConfig()

	msgID := ids.NewMessageId()
	_, err := c.ProcessWorkBatch(ctx, identity, Completions{}, Failures{}, NewMessages{
		Outbox: []NewOutboxMessage{{MessageId: msgID, Destination: "email", MessageType: "Welcome", Payload: []byte("x")}},
	}, LeaseRenewals{}, cfg)
	require.NoError(t, err)

	_, err = c.ProcessWorkBatch(ctx, identity, Completions{
		Outbox: []Completion{{MessageId: msgID, Status: StatusPublished}},
	}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)

	batch, err := c.ProcessWorkBatch(ctx, identity, Completions{}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	for _, item := range batch.OutboxWork {
		assert.NotEqual(t, msgID.String(), item.MessageId.String())
	}
}

// Inbox ingestion is idempotent: submitting the same MessageId twice must
// not produce two rows or two returned work items (spec.md §4.3 step 10
// "exactly-once ingestion via dedup table").
func TestProcessWorkBatch_InboxIngestionIsIdempotent(t *testing.T) {
	c := setupCoordinator(t)
	ctx := context.Background()
	identity := newTestIdentity()
	cfg := DefaultConfig()

	msgID := ids.NewMessageId()
	newMsg := NewInboxMessage{MessageId: msgID, HandlerName: "demo.echo", MessageType: "Ping", Payload: []byte("x")}

	batch1, err := c.ProcessWorkBatch(ctx, identity, Completions{}, Failures{}, NewMessages{
		Inbox: []NewInboxMessage{newMsg},
	}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	require.Len(t, batch1.InboxWork, 1)

	// Submit the identical message again, as a retrying producer would.
	batch2, err := c.ProcessWorkBatch(ctx, identity, Completions{}, Failures{}, NewMessages{
		Inbox: []NewInboxMessage{newMsg},
	}, LeaseRenewals{}, cfg)
	require.NoError(t, err)

	count := 0
	for _, item := range batch2.InboxWork {
		if item.MessageId.String() == msgID.String() {
			count++
		}
	}
	assert.LessOrEqual(t, count, 1, "duplicate ingestion must not produce a second claimed row")
}

// Once an inbox row's StatusEventStored bit is set via completion, it must
// not be returned again — StatusHandlerInvoked alone must never be
// sufficient to retire a row (spec.md §4.2, the terminal-bit fix).
func TestProcessWorkBatch_InboxTerminalBitIsEventStoredNotHandlerInvoked(t *testing.T) {
	c := setupCoordinator(t)
	ctx := context.Background()
	identity := newTestIdentity()
	cfg := DefaultConfig()

	msgID := ids.NewMessageId()
	_, err := c.ProcessWorkBatch(ctx, identity, Completions{}, Failures{}, NewMessages{
		Inbox: []NewInboxMessage{{MessageId: msgID, HandlerName: "demo.echo", MessageType: "Ping", Payload: []byte("x")}},
	}, LeaseRenewals{}, cfg)
	require.NoError(t, err)

	// Report only the informational bit — row must come back on the next
	// call (the reporting call itself never reclaims rows it settles).
	_, err = c.ProcessWorkBatch(ctx, identity, Completions{
		Inbox: []Completion{{MessageId: msgID, Status: StatusHandlerInvoked}},
	}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	batchAfterHandlerOnly, err := c.ProcessWorkBatch(ctx, identity, Completions{}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	stillPresent := false
	for _, item := range batchAfterHandlerOnly.InboxWork {
		if item.MessageId.String() == msgID.String() {
			stillPresent = true
		}
	}
	assert.True(t, stillPresent, "StatusHandlerInvoked alone must not retire an inbox row")

	// Now report the real terminal bit — row must retire.
	_, err = c.ProcessWorkBatch(ctx, identity, Completions{
		Inbox: []Completion{{MessageId: msgID, Status: StatusEventStored}},
	}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)

	batchAfterStored, err := c.ProcessWorkBatch(ctx, identity, Completions{}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	for _, item := range batchAfterStored.InboxWork {
		assert.NotEqual(t, msgID.String(), item.MessageId.String())
	}
}

// DebugMode retains terminal rows instead of deleting them, and tags them
// with BatchFlagDebugMode.
func TestProcessWorkBatch_DebugModeRetainsCompletedRows(t *testing.T) {
	c := setupCoordinator(t)
	ctx := context.Background()
	identity := newTestIdentity()
	cfg := DefaultConfig()
	cfg.Flags |= FlagDebugMode

	msgID := ids.NewMessageId()
	batch, err := c.ProcessWorkBatch(ctx, identity, Completions{}, Failures{}, NewMessages{
		Outbox: []NewOutboxMessage{{MessageId: msgID, Destination: "email", MessageType: "Welcome", Payload: []byte("x")}},
	}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	require.Len(t, batch.OutboxWork, 1)
	assert.True(t, batch.OutboxWork[0].BatchFlags&BatchFlagDebugMode != 0)

	_, err = c.ProcessWorkBatch(ctx, identity, Completions{
		Outbox: []Completion{{MessageId: msgID, Status: StatusPublished}},
	}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)

	cfg.DebugRetention = time.Hour
	outboxDeleted, _, err := c.CollectDebugRows(ctx, cfg)
	require.NoError(t, err)
	assert.Zero(t, outboxDeleted, "a row younger than the retention window must not be collected yet")

	cfg.DebugRetention = 0
	outboxDeleted, _, err = c.CollectDebugRows(ctx, cfg)
	require.NoError(t, err)
	assert.Zero(t, outboxDeleted, "DebugRetention <= 0 must be a no-op")

	// The completed row was retained, so once the window has passed the
	// sweep finds and deletes it.
	cfg.DebugRetention = time.Hour
	later := time.Now().Add(2 * time.Hour)
	c.now = func() time.Time { return later }
	outboxDeleted, _, err = c.CollectDebugRows(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), outboxDeleted, "the completed DebugMode row must still exist to be collected")
}

// A second instance joining causes partitions to be fairly shared: live
// instance count and fair share both reflect the new membership on the
// very next call from either instance (spec.md §4.1 fair-share rebalance).
func TestProcessWorkBatch_FairShareReflectsLiveInstanceCount(t *testing.T) {
	c := setupCoordinator(t)
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.PartitionCount = 10

	identityA := newTestIdentity()
	identityB := newTestIdentity()

	batchA, err := c.ProcessWorkBatch(ctx, identityA, Completions{}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, batchA.Stats.LiveInstances)
	assert.Equal(t, 10, batchA.Stats.FairShare)

	batchB, err := c.ProcessWorkBatch(ctx, identityB, Completions{}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, batchB.Stats.LiveInstances)
	assert.Equal(t, 5, batchB.Stats.FairShare)

	batchA2, err := c.ProcessWorkBatch(ctx, identityA, Completions{}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, batchA2.Stats.LiveInstances)
	assert.Equal(t, 5, batchA2.Stats.FairShare)
}

// An instance that stops heartbeating drops out of the live set once
// staleThreshold elapses, freeing its partitions for reclaim by others
// (spec.md §4.1 "stale reap").
func TestProcessWorkBatch_StaleInstanceIsReaped(t *testing.T) {
	c := setupCoordinator(t)
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.StaleThresholdSeconds = 1

	identityA := newTestIdentity()
	identityB := newTestIdentity()

	_, err := c.ProcessWorkBatch(ctx, identityA, Completions{}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)

	frozen := time.Now().Add(5 * time.Second)
	c.now = func() time.Time { return frozen }

	batch, err := c.ProcessWorkBatch(ctx, identityB, Completions{}, Failures{}, NewMessages{}, LeaseRenewals{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Stats.LiveInstances, "stale identityA must have been reaped")
}
