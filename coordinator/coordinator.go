// Package coordinator implements the Work Coordinator procedure of
// spec.md §4.3 — the single atomic transaction that heartbeats instances,
// assigns partitions, accepts completions/failures/new messages, reclaims
// expired leases, appends to the event store, and returns the next batch
// of work. Every exported method runs inside exactly one database
// transaction per call; there is no partial-effect path.
package coordinator

import (
	"time"

	"github.com/krew-solutions/whizbang-go/session"
)

// Coordinator is the host-side handle to the Work Coordinator procedure. It
// holds no per-call state — every field here is fixed at construction and
// shared across concurrent ProcessWorkBatch calls from many goroutines and
// many processes, exactly as the teacher's PgOutbox/PgInbox share one
// *pgxpool.Pool across workers.
type Coordinator struct {
	sessionPool session.SessionPool
	tables      tableNames
	now         func() time.Time
}

// NewCoordinator builds a Coordinator against the default "wh_"-prefixed
// table names (spec.md §6).
func NewCoordinator(sessionPool session.SessionPool) *Coordinator {
	return &Coordinator{
		sessionPool: sessionPool,
		tables:      defaultTableNames(),
		now:         time.Now,
	}
}

// WithTablePrefix overrides every table name's prefix, e.g. for running an
// isolated schema per test alongside the production one.
func (c *Coordinator) WithTablePrefix(prefix string) *Coordinator {
	clone := *c
	clone.tables = defaultTableNames()
	clone.tables.serviceInstance = prefix + "_service_instance"
	clone.tables.partitionAssignment = prefix + "_partition_assignment"
	clone.tables.outbox = prefix + "_outbox"
	clone.tables.inbox = prefix + "_inbox"
	clone.tables.dedup = prefix + "_dedup"
	clone.tables.eventStore = prefix + "_event_store"
	clone.tables.eventSequence = prefix + "_event_sequence"
	clone.tables.receptorLog = prefix + "_receptor_log"
	clone.tables.perspectiveCheckpoint = prefix + "_perspective_checkpoint"
	clone.tables.activeStream = prefix + "_active_stream"
	return &clone
}
