package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/krew-solutions/whizbang-go/option"
	"github.com/krew-solutions/whizbang-go/session"
)

// ProcessWorkBatch runs the full Work Coordinator procedure (spec.md §4.3)
// in a single serializable transaction: heartbeat and reap, partition
// rebalancing, completions, failures, idempotent ingestion, lease
// reclamation, event append, and the next ordered batch of work. A single
// round trip covers every concern — there is no separate heartbeat RPC,
// no separate claim RPC.
func (c *Coordinator) ProcessWorkBatch(
	ctx context.Context,
	identity Identity,
	completions Completions,
	failures Failures,
	newMessages NewMessages,
	renewals LeaseRenewals,
	cfg Config,
) (*WorkBatch, error) {
	var batch *WorkBatch

	err := c.sessionPool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(txSession session.Session) error {
			db := txSession.(session.DbSession)
			now := c.now()

			st := &procedureState{
				db: db, tables: c.tables, cfg: cfg, now: now, identity: identity,
				touchedPartitions: make(map[int]bool),
			}

			if _, err := db.Connection().Exec("SET TRANSACTION ISOLATION LEVEL SERIALIZABLE"); err != nil {
				return fmt.Errorf("coordinator: set isolation: %w", err)
			}

			if err := st.registerHeartbeat(); err != nil {
				return fmt.Errorf("coordinator: heartbeat: %w", err)
			}
			if err := st.reapStaleInstances(); err != nil {
				return fmt.Errorf("coordinator: reap: %w", err)
			}
			if err := st.loadLiveInstances(); err != nil {
				return fmt.Errorf("coordinator: load instances: %w", err)
			}
			st.computeFairShare()
			if err := st.refreshOwnedPartitions(); err != nil {
				return fmt.Errorf("coordinator: refresh partitions: %w", err)
			}

			if err := st.applyOutboxCompletions(completions.Outbox); err != nil {
				return fmt.Errorf("coordinator: outbox completions: %w", err)
			}
			if err := st.applyInboxCompletions(completions.Inbox); err != nil {
				return fmt.Errorf("coordinator: inbox completions: %w", err)
			}
			if err := st.applyOutboxFailures(failures.Outbox); err != nil {
				return fmt.Errorf("coordinator: outbox failures: %w", err)
			}
			if err := st.applyInboxFailures(failures.Inbox); err != nil {
				return fmt.Errorf("coordinator: inbox failures: %w", err)
			}
			if err := st.applyReceptorOutcomes(append(append([]ReceptorOutcome{}, completions.Receptor...), failures.Receptor...)); err != nil {
				return fmt.Errorf("coordinator: receptor outcomes: %w", err)
			}
			if err := st.applyPerspectiveOutcomes(append(append([]PerspectiveOutcome{}, completions.Perspective...), failures.Perspective...)); err != nil {
				return fmt.Errorf("coordinator: perspective outcomes: %w", err)
			}

			if err := st.renewLeases(renewals); err != nil {
				return fmt.Errorf("coordinator: lease renewal: %w", err)
			}

			if err := st.storeNewOutbox(newMessages.Outbox); err != nil {
				return fmt.Errorf("coordinator: store outbox: %w", err)
			}
			if err := st.storeNewInbox(newMessages.Inbox); err != nil {
				return fmt.Errorf("coordinator: store inbox: %w", err)
			}

			if err := st.acquirePartitionsForNewWork(); err != nil {
				return fmt.Errorf("coordinator: acquire partitions: %w", err)
			}
			if err := st.claimOrphanPartitions(); err != nil {
				return fmt.Errorf("coordinator: claim orphan partitions: %w", err)
			}

			if err := st.appendEvents(newMessages.Outbox, newMessages.Inbox); err != nil {
				return fmt.Errorf("coordinator: append events: %w", err)
			}

			if err := st.reclaimOrphanRows(completions, failures); err != nil {
				return fmt.Errorf("coordinator: reclaim rows: %w", err)
			}

			result, err := st.returnWorkBatch()
			if err != nil {
				return fmt.Errorf("coordinator: return work: %w", err)
			}
			result.Stats = BatchStats{
				LiveInstances:    st.liveInstanceCount,
				ThisInstanceRank: st.thisRank,
				FairShare:        st.fairShare,
				OwnedPartitions:  st.ownedCount,
			}
			batch = result
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// procedureState carries everything the fifteen steps share across a
// single ProcessWorkBatch call. It is rebuilt fresh on every call and never
// escapes the enclosing transaction.
type procedureState struct {
	db       session.DbSession
	tables   tableNames
	cfg      Config
	now      time.Time
	identity Identity

	liveInstanceCount int
	thisRank          int // this instance's 0-based rank among live instances, ordered by instance id
	fairShare         int
	ownedCount        int
	remainingCap      int // partitions this instance may still claim this call

	touchedPartitions  map[int]bool // partitions newly written to this call, candidates for step 11 acquisition
	insertedOutboxIds  map[string]bool
	insertedInboxIds   map[string]bool
	reclaimedOutboxIds map[string]bool
	reclaimedInboxIds  map[string]bool
}

func (st *procedureState) registerHeartbeat() error {
	var metadataArg any
	if st.identity.Metadata.IsSome() {
		b, err := json.Marshal(st.identity.Metadata.Unwrap())
		if err != nil {
			return err
		}
		metadataArg = b
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (instance_id, service_name, host_name, process_id, started_at, last_heartbeat_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $5, $6)
		ON CONFLICT (instance_id) DO UPDATE SET
			last_heartbeat_at = EXCLUDED.last_heartbeat_at,
			service_name = EXCLUDED.service_name,
			host_name = EXCLUDED.host_name,
			process_id = EXCLUDED.process_id,
			metadata = COALESCE(EXCLUDED.metadata, %s.metadata)
	`, st.tables.serviceInstance, st.tables.serviceInstance)

	_, err := st.db.Connection().Exec(sql,
		st.identity.InstanceId.String(),
		st.identity.ServiceName,
		st.identity.HostName,
		st.identity.ProcessId,
		st.now,
		metadataArg,
	)
	return err
}

func (st *procedureState) reapStaleInstances() error {
	staleBefore := st.now.Add(-st.cfg.staleThreshold())
	sql := fmt.Sprintf(`DELETE FROM %s WHERE instance_id != $1 AND last_heartbeat_at < $2`, st.tables.serviceInstance)
	_, err := st.db.Connection().Exec(sql, st.identity.InstanceId.String(), staleBefore)
	return err
}

func (st *procedureState) loadLiveInstances() error {
	sql := fmt.Sprintf(`SELECT instance_id FROM %s ORDER BY instance_id`, st.tables.serviceInstance)
	rows, err := st.db.Connection().Query(sql)
	if err != nil {
		return err
	}
	defer rows.Close()

	rank := -1
	count := 0
	for rows.Next() {
		var instanceID string
		if err := rows.Scan(&instanceID); err != nil {
			return err
		}
		if instanceID == st.identity.InstanceId.String() {
			rank = count
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if rank == -1 {
		return fmt.Errorf("coordinator: instance %s missing from registry after heartbeat", st.identity.InstanceId)
	}
	st.liveInstanceCount = count
	st.thisRank = rank
	return nil
}

func (st *procedureState) computeFairShare() {
	n := st.liveInstanceCount
	if n == 0 {
		n = 1
	}
	fairShare := int(math.Ceil(float64(st.cfg.PartitionCount) / float64(n)))
	if st.cfg.MaxPartitionsPerInstance.IsSome() {
		if maxPerInstance := st.cfg.MaxPartitionsPerInstance.Unwrap(); maxPerInstance < fairShare {
			fairShare = maxPerInstance
		}
	}
	st.fairShare = fairShare
}

func (st *procedureState) refreshOwnedPartitions() error {
	sql := fmt.Sprintf(`UPDATE %s SET last_heartbeat = $1 WHERE instance_id = $2`, st.tables.partitionAssignment)
	if _, err := st.db.Connection().Exec(sql, st.now, st.identity.InstanceId.String()); err != nil {
		return err
	}

	countSQL := fmt.Sprintf(`SELECT count(*) FROM %s WHERE instance_id = $1`, st.tables.partitionAssignment)
	row := st.db.Connection().QueryRow(countSQL, st.identity.InstanceId.String())
	if err := row.Scan(&st.ownedCount); err != nil {
		return err
	}

	remaining := st.fairShare - st.ownedCount
	if remaining < 0 {
		remaining = 0
	}
	st.remainingCap = remaining
	return nil
}
