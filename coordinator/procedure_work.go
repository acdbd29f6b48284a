package coordinator

import (
	"fmt"
	"strings"
	"time"

	"github.com/krew-solutions/whizbang-go/ids"
	"github.com/krew-solutions/whizbang-go/partition"
)

func partitionForMessage(streamID ids.StreamId, messageID ids.MessageId, count int) int {
	if streamID.IsSet() {
		return partition.Of(streamID, count)
	}
	return partition.OfMessage(messageID, count)
}

func completionAndFailureIds(completions []Completion, failures []Failure) []string {
	out := make([]string, 0, len(completions)+len(failures))
	for _, c := range completions {
		out = append(out, c.MessageId.String())
	}
	for _, f := range failures {
		out = append(out, f.MessageId.String())
	}
	return out
}

func unionKeys(a, b map[string]bool) []string {
	set := make(map[string]bool, len(a)+len(b))
	for k := range a {
		set[k] = true
	}
	for k := range b {
		set[k] = true
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func (st *procedureState) applyOutboxCompletions(cs []Completion) error {
	for _, c := range cs {
		sql := fmt.Sprintf(`
			UPDATE %s SET
				status = status | $1,
				published_at = CASE WHEN ($1::bigint & $2::bigint) != 0 AND published_at IS NULL THEN $3 ELSE published_at END,
				instance_id = NULL,
				lease_expiry = NULL
			WHERE message_id = $4
			RETURNING status
		`, st.tables.outbox)

		row := st.db.Connection().QueryRow(sql, int64(c.Status), int64(StatusPublished), st.now, c.MessageId.String())
		var newStatus int64
		if err := row.Scan(&newStatus); err != nil {
			continue // unknown message id: nothing to complete
		}

		if !st.cfg.debugMode() && MessageProcessingStatus(newStatus).Has(StatusPublished) {
			del := fmt.Sprintf(`DELETE FROM %s WHERE message_id = $1`, st.tables.outbox)
			if _, err := st.db.Connection().Exec(del, c.MessageId.String()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *procedureState) applyInboxCompletions(cs []Completion) error {
	for _, c := range cs {
		sql := fmt.Sprintf(`
			UPDATE %s SET status = status | $1, instance_id = NULL, lease_expiry = NULL,
				completed_at = CASE WHEN ($1::bigint & $2::bigint) != 0 AND completed_at IS NULL THEN $3 ELSE completed_at END
			WHERE message_id = $4
			RETURNING status
		`, st.tables.inbox)

		row := st.db.Connection().QueryRow(sql, int64(c.Status), int64(StatusEventStored), st.now, c.MessageId.String())
		var newStatus int64
		if err := row.Scan(&newStatus); err != nil {
			continue
		}

		if !st.cfg.debugMode() && MessageProcessingStatus(newStatus).Has(StatusEventStored) {
			del := fmt.Sprintf(`DELETE FROM %s WHERE message_id = $1`, st.tables.inbox)
			if _, err := st.db.Connection().Exec(del, c.MessageId.String()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *procedureState) applyOutboxFailures(fs []Failure) error {
	for _, f := range fs {
		sql := fmt.Sprintf(`
			UPDATE %s SET
				status = status | $1 | $2,
				attempts = attempts + 1,
				error = $3,
				instance_id = NULL,
				lease_expiry = NULL
			WHERE message_id = $4
		`, st.tables.outbox)
		if _, err := st.db.Connection().Exec(sql, int64(f.CompletedStatus), int64(StatusFailed), f.Error, f.MessageId.String()); err != nil {
			return err
		}
	}
	return nil
}

func (st *procedureState) applyInboxFailures(fs []Failure) error {
	for _, f := range fs {
		sql := fmt.Sprintf(`
			UPDATE %s SET
				status = status | $1 | $2,
				attempts = attempts + 1,
				error = $3,
				instance_id = NULL,
				lease_expiry = NULL
			WHERE message_id = $4
		`, st.tables.inbox)
		if _, err := st.db.Connection().Exec(sql, int64(f.CompletedStatus), int64(StatusFailed), f.Error, f.MessageId.String()); err != nil {
			return err
		}
	}
	return nil
}

func (st *procedureState) applyReceptorOutcomes(outcomes []ReceptorOutcome) error {
	for _, o := range outcomes {
		var processedAt any
		var errArg any
		if o.Error == "" {
			processedAt = st.now
		} else {
			errArg = o.Error
		}

		sql := fmt.Sprintf(`
			INSERT INTO %s (event_id, receptor_name, status, attempts, error, started_at, processed_at)
			VALUES ($1, $2, $3, 1, $4, $5, $6)
			ON CONFLICT (event_id, receptor_name) DO UPDATE SET
				status = EXCLUDED.status,
				attempts = %s.attempts + 1,
				error = EXCLUDED.error,
				processed_at = EXCLUDED.processed_at
		`, st.tables.receptorLog, st.tables.receptorLog)

		if _, err := st.db.Connection().Exec(sql, o.EventId.String(), o.ReceptorName, o.Status, errArg, st.now, processedAt); err != nil {
			return err
		}
	}
	return nil
}

func (st *procedureState) applyPerspectiveOutcomes(outcomes []PerspectiveOutcome) error {
	for _, o := range outcomes {
		var errArg any
		if o.Error != "" {
			errArg = o.Error
		}

		sql := fmt.Sprintf(`
			INSERT INTO %s (stream_id, perspective_name, last_event_id, status, processed_at, error)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (stream_id, perspective_name) DO UPDATE SET
				last_event_id = EXCLUDED.last_event_id,
				status = EXCLUDED.status,
				processed_at = EXCLUDED.processed_at,
				error = EXCLUDED.error
		`, st.tables.perspectiveCheckpoint)

		if _, err := st.db.Connection().Exec(sql, o.StreamId.String(), o.PerspectiveName, o.LastEventId.String(), o.Status, st.now, errArg); err != nil {
			return err
		}
	}
	return nil
}

func (st *procedureState) renewLeases(r LeaseRenewals) error {
	expiry := st.now.Add(st.cfg.leaseDuration())

	for _, id := range r.Outbox {
		sql := fmt.Sprintf(`UPDATE %s SET lease_expiry = $1 WHERE message_id = $2 AND instance_id = $3 AND lease_expiry IS NOT NULL`, st.tables.outbox)
		if _, err := st.db.Connection().Exec(sql, expiry, id.String(), st.identity.InstanceId.String()); err != nil {
			return err
		}
	}
	for _, id := range r.Inbox {
		sql := fmt.Sprintf(`UPDATE %s SET lease_expiry = $1 WHERE message_id = $2 AND instance_id = $3 AND lease_expiry IS NOT NULL`, st.tables.inbox)
		if _, err := st.db.Connection().Exec(sql, expiry, id.String(), st.identity.InstanceId.String()); err != nil {
			return err
		}
	}
	return nil
}

func (st *procedureState) storeNewOutbox(msgs []NewOutboxMessage) error {
	st.insertedOutboxIds = make(map[string]bool, len(msgs))
	expiry := st.now.Add(st.cfg.leaseDuration())

	for _, m := range msgs {
		p := partitionForMessage(m.StreamId, m.MessageId, st.cfg.PartitionCount)
		status := StatusStored
		if m.IsEvent {
			status |= StatusEventStored
		}

		var streamArg any
		if m.StreamId.IsSet() {
			streamArg = m.StreamId.String()
		}

		sql := fmt.Sprintf(`
			INSERT INTO %s (message_id, destination, message_type, payload, metadata, stream_id, partition_number, status, instance_id, lease_expiry, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, st.tables.outbox)

		if _, err := st.db.Connection().Exec(sql,
			m.MessageId.String(), m.Destination, m.MessageType, m.Payload, m.Metadata, streamArg, p,
			int64(status), st.identity.InstanceId.String(), expiry, st.now,
		); err != nil {
			return err
		}

		st.insertedOutboxIds[m.MessageId.String()] = true
		st.touchedPartitions[p] = true
	}
	return nil
}

func (st *procedureState) storeNewInbox(msgs []NewInboxMessage) error {
	st.insertedInboxIds = make(map[string]bool, len(msgs))
	if len(msgs) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(msgs))
	args := make([]any, 0, len(msgs)*2)
	for i, m := range msgs {
		placeholders = append(placeholders, fmt.Sprintf("($%d,$%d)", i*2+1, i*2+2))
		args = append(args, m.MessageId.String(), st.now)
	}

	dedupSQL := fmt.Sprintf(`
		INSERT INTO %s (message_id, first_seen_at)
		VALUES %s
		ON CONFLICT (message_id) DO NOTHING
		RETURNING message_id
	`, st.tables.dedup, strings.Join(placeholders, ","))

	rows, err := st.db.Connection().Query(dedupSQL, args...)
	if err != nil {
		return err
	}

	firstTime := make(map[string]bool, len(msgs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		firstTime[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	expiry := st.now.Add(st.cfg.leaseDuration())
	for _, m := range msgs {
		if !firstTime[m.MessageId.String()] {
			continue // already ingested by an earlier, possibly concurrent, call
		}

		p := partitionForMessage(m.StreamId, m.MessageId, st.cfg.PartitionCount)
		status := StatusStored
		if m.IsEvent {
			status |= StatusEventStored
		}

		var streamArg any
		if m.StreamId.IsSet() {
			streamArg = m.StreamId.String()
		}

		sql := fmt.Sprintf(`
			INSERT INTO %s (message_id, handler_name, message_type, payload, metadata, stream_id, partition_number, status, instance_id, lease_expiry, received_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, st.tables.inbox)

		if _, err := st.db.Connection().Exec(sql,
			m.MessageId.String(), m.HandlerName, m.MessageType, m.Payload, m.Metadata, streamArg, p,
			int64(status), st.identity.InstanceId.String(), expiry, st.now,
		); err != nil {
			return err
		}

		st.insertedInboxIds[m.MessageId.String()] = true
		st.touchedPartitions[p] = true
	}
	return nil
}

func (st *procedureState) acquirePartitionsForNewWork() error {
	for p := range st.touchedPartitions {
		if st.remainingCap <= 0 {
			break
		}
		sql := fmt.Sprintf(`
			INSERT INTO %s (partition_number, instance_id, assigned_at, last_heartbeat)
			VALUES ($1,$2,$3,$3)
			ON CONFLICT (partition_number) DO NOTHING
		`, st.tables.partitionAssignment)

		res, err := st.db.Connection().Exec(sql, p, st.identity.InstanceId.String(), st.now)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			st.remainingCap--
		}
	}
	return nil
}

// claimOrphanPartitions finds partitions with no owner that currently hold
// work past its lease, and claims the ones assigned to this instance by
// `partition % liveInstanceCount == thisRank` — the same fair, deterministic
// rule every live instance evaluates independently, so at most one of them
// wins each partition without any cross-instance coordination (spec.md
// §4.3 step 12).
func (st *procedureState) claimOrphanPartitions() error {
	if st.remainingCap <= 0 {
		return nil
	}

	sql := fmt.Sprintf(`
		SELECT DISTINCT o.partition_number
		FROM (
			SELECT partition_number FROM %s
			WHERE (instance_id IS NULL OR lease_expiry IS NULL OR lease_expiry < $1)
				AND status & $2 = 0 AND status & $3 = 0
			UNION
			SELECT partition_number FROM %s
			WHERE (instance_id IS NULL OR lease_expiry IS NULL OR lease_expiry < $1)
				AND status & $4 = 0 AND status & $3 = 0
		) o
		LEFT JOIN %s pa ON pa.partition_number = o.partition_number
		WHERE pa.partition_number IS NULL
	`, st.tables.outbox, st.tables.inbox, st.tables.partitionAssignment)

	rows, err := st.db.Connection().Query(sql, st.now, int64(StatusPublished), int64(StatusFailed), int64(StatusEventStored))
	if err != nil {
		return err
	}
	var candidates []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return err
		}
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	n := st.liveInstanceCount
	if n == 0 {
		n = 1
	}
	for _, p := range candidates {
		if st.remainingCap <= 0 {
			break
		}
		if p%n != st.thisRank {
			continue
		}
		insertSQL := fmt.Sprintf(`
			INSERT INTO %s (partition_number, instance_id, assigned_at, last_heartbeat)
			VALUES ($1,$2,$3,$3)
			ON CONFLICT (partition_number) DO NOTHING
		`, st.tables.partitionAssignment)
		res, err := st.db.Connection().Exec(insertSQL, p, st.identity.InstanceId.String(), st.now)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			st.remainingCap--
		}
	}
	return nil
}

type eventCandidate struct {
	eventID       string
	streamID      string
	aggregateID   string
	aggregateType string
	eventType     string
	payload       []byte
	metadata      []byte
}

// appendEvents gives every newly stored event-carrying message a
// contiguous per-stream version and a global sequence number (spec.md §4.4).
// Concurrent callers racing on the same stream are reconciled by
// ON CONFLICT (stream_id, version) DO NOTHING: the loser's row is simply
// dropped from the event store, matching the "keep the outbox/inbox row as
// the durable record, event store as a derived projection" design.
func (st *procedureState) appendEvents(outboxMsgs []NewOutboxMessage, inboxMsgs []NewInboxMessage) error {
	var candidates []eventCandidate
	for _, m := range outboxMsgs {
		if !m.IsEvent || !m.StreamId.IsSet() {
			continue
		}
		candidates = append(candidates, eventCandidate{
			eventID: m.MessageId.String(), streamID: m.StreamId.String(),
			aggregateID: m.AggregateId, aggregateType: m.AggregateType, eventType: m.EventType,
			payload: m.Payload, metadata: m.Metadata,
		})
	}
	for _, m := range inboxMsgs {
		if !m.IsEvent || !m.StreamId.IsSet() || !st.insertedInboxIds[m.MessageId.String()] {
			continue
		}
		candidates = append(candidates, eventCandidate{
			eventID: m.MessageId.String(), streamID: m.StreamId.String(),
			aggregateID: m.AggregateId, aggregateType: m.AggregateType, eventType: m.EventType,
			payload: m.Payload, metadata: m.Metadata,
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	valueRows := make([]string, 0, len(candidates))
	args := make([]any, 0, len(candidates)*7)
	for i, c := range candidates {
		base := i * 7
		valueRows = append(valueRows, fmt.Sprintf(
			"($%d::text,$%d::uuid,$%d::text,$%d::text,$%d::text,$%d::bytea,$%d::bytea)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args, c.eventID, c.streamID, c.aggregateID, c.aggregateType, c.eventType, c.payload, c.metadata)
	}
	nowPlaceholder := len(args) + 1
	args = append(args, st.now)

	sql := fmt.Sprintf(`
		WITH candidates (event_id, stream_id, aggregate_id, aggregate_type, event_type, payload, metadata) AS (
			VALUES %s
		),
		existing AS (
			SELECT stream_id, COALESCE(MAX(version), 0) AS max_version
			FROM %s
			WHERE stream_id IN (SELECT DISTINCT stream_id FROM candidates)
			GROUP BY stream_id
		),
		numbered AS (
			SELECT
				c.event_id, c.stream_id, c.aggregate_id, c.aggregate_type, c.event_type, c.payload, c.metadata,
				ROW_NUMBER() OVER (PARTITION BY c.stream_id ORDER BY c.event_id) AS rn,
				COALESCE(e.max_version, 0) AS base_version
			FROM candidates c
			LEFT JOIN existing e ON e.stream_id = c.stream_id
		)
		INSERT INTO %s (event_id, stream_id, aggregate_id, aggregate_type, event_type, payload, metadata, sequence_number, version, created_at)
		SELECT event_id, stream_id, aggregate_id, aggregate_type, event_type, payload, metadata, nextval('%s'), base_version + rn, $%d
		FROM numbered
		ON CONFLICT (stream_id, version) DO NOTHING
	`, strings.Join(valueRows, ","), st.tables.eventStore, st.tables.eventStore, st.tables.eventSequence, nowPlaceholder)

	_, err := st.db.Connection().Exec(sql, args...)
	return err
}

// reclaimOrphanRows extends this instance's ownership over any row, in a
// partition it owns, whose lease has lapsed (or was never held) — except
// rows this very call already settled via completions/failures, which have
// no business being handed back out in the same breath (spec.md §4.3 step 14).
func (st *procedureState) reclaimOrphanRows(completions Completions, failures Failures) error {
	excludedOutbox := completionAndFailureIds(completions.Outbox, failures.Outbox)
	excludedInbox := completionAndFailureIds(completions.Inbox, failures.Inbox)
	expiry := st.now.Add(st.cfg.leaseDuration())

	outboxSQL := fmt.Sprintf(`
		UPDATE %s o
		SET instance_id = $1, lease_expiry = $2
		FROM %s pa
		WHERE pa.partition_number = o.partition_number
			AND pa.instance_id = $1
			AND (o.instance_id IS NULL OR o.lease_expiry IS NULL OR o.lease_expiry < $3)
			AND o.status & $4 = 0
			AND o.status & $5 = 0
			AND o.message_id != ALL($6::text[])
		RETURNING o.message_id
	`, st.tables.outbox, st.tables.partitionAssignment)

	rows, err := st.db.Connection().Query(outboxSQL,
		st.identity.InstanceId.String(), expiry, st.now, int64(StatusPublished), int64(StatusFailed), excludedOutbox)
	if err != nil {
		return err
	}
	st.reclaimedOutboxIds = make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		st.reclaimedOutboxIds[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	inboxSQL := fmt.Sprintf(`
		UPDATE %s i
		SET instance_id = $1, lease_expiry = $2
		FROM %s pa
		WHERE pa.partition_number = i.partition_number
			AND pa.instance_id = $1
			AND (i.instance_id IS NULL OR i.lease_expiry IS NULL OR i.lease_expiry < $3)
			AND i.status & $4 = 0
			AND i.status & $5 = 0
			AND i.message_id != ALL($6::text[])
		RETURNING i.message_id
	`, st.tables.inbox, st.tables.partitionAssignment)

	rows2, err := st.db.Connection().Query(inboxSQL,
		st.identity.InstanceId.String(), expiry, st.now, int64(StatusEventStored), int64(StatusFailed), excludedInbox)
	if err != nil {
		return err
	}
	st.reclaimedInboxIds = make(map[string]bool)
	for rows2.Next() {
		var id string
		if err := rows2.Scan(&id); err != nil {
			rows2.Close()
			return err
		}
		st.reclaimedInboxIds[id] = true
	}
	if err := rows2.Err(); err != nil {
		rows2.Close()
		return err
	}
	rows2.Close()
	return nil
}

func (st *procedureState) returnWorkBatch() (*WorkBatch, error) {
	outboxIds := unionKeys(st.insertedOutboxIds, st.reclaimedOutboxIds)
	inboxIds := unionKeys(st.insertedInboxIds, st.reclaimedInboxIds)

	outboxWork, err := st.queryOutboxWork(outboxIds)
	if err != nil {
		return nil, err
	}
	inboxWork, err := st.queryInboxWork(inboxIds)
	if err != nil {
		return nil, err
	}
	return &WorkBatch{OutboxWork: outboxWork, InboxWork: inboxWork}, nil
}

func (st *procedureState) queryOutboxWork(messageIDs []string) ([]WorkItem, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf(`
		SELECT message_id, destination, message_type, payload, metadata, stream_id, partition_number, attempts, status, created_at
		FROM %s
		WHERE instance_id = $1 AND lease_expiry > $2
			AND status & $3 = 0 AND status & $4 = 0
			AND message_id = ANY($5::text[])
		ORDER BY stream_id, created_at
	`, st.tables.outbox)

	rows, err := st.db.Connection().Query(sql,
		st.identity.InstanceId.String(), st.now, int64(StatusPublished), int64(StatusFailed), messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []WorkItem
	for rows.Next() {
		var (
			messageID, destination, messageType string
			payload, metadata                   []byte
			streamID                            *string
			partitionNumber, attempts            int
			status                               int64
			createdAt                            time.Time
		)
		if err := rows.Scan(&messageID, &destination, &messageType, &payload, &metadata, &streamID, &partitionNumber, &attempts, &status, &createdAt); err != nil {
			return nil, err
		}

		mid, err := ids.MessageIdFromString(messageID)
		if err != nil {
			return nil, err
		}
		sid := ids.NoStream()
		if streamID != nil {
			sid, err = ids.StreamIdFromString(*streamID)
			if err != nil {
				return nil, err
			}
		}

		var flags WorkBatchFlags
		if st.insertedOutboxIds[messageID] {
			flags |= BatchFlagNewlyStored
		}
		if st.reclaimedOutboxIds[messageID] {
			flags |= BatchFlagOrphaned
		}
		if st.cfg.debugMode() {
			flags |= BatchFlagDebugMode
		}

		items = append(items, WorkItem{
			MessageId:     mid,
			Destination:   destination,
			MessageType:   messageType,
			Payload:       payload,
			Metadata:      metadata,
			StreamId:      sid,
			Partition:     partitionNumber,
			Attempts:      attempts,
			Status:        MessageProcessingStatus(status),
			BatchFlags:    flags,
			SequenceOrder: createdAt,
		})
	}
	return items, rows.Err()
}

func (st *procedureState) queryInboxWork(messageIDs []string) ([]WorkItem, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf(`
		SELECT message_id, handler_name, message_type, payload, metadata, stream_id, partition_number, attempts, status, received_at
		FROM %s
		WHERE instance_id = $1 AND lease_expiry > $2
			AND status & $3 = 0 AND status & $4 = 0
			AND message_id = ANY($5::text[])
		ORDER BY stream_id, received_at
	`, st.tables.inbox)

	rows, err := st.db.Connection().Query(sql,
		st.identity.InstanceId.String(), st.now, int64(StatusEventStored), int64(StatusFailed), messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []WorkItem
	for rows.Next() {
		var (
			messageID, handlerName, messageType string
			payload, metadata                   []byte
			streamID                            *string
			partitionNumber, attempts            int
			status                               int64
			receivedAt                           time.Time
		)
		if err := rows.Scan(&messageID, &handlerName, &messageType, &payload, &metadata, &streamID, &partitionNumber, &attempts, &status, &receivedAt); err != nil {
			return nil, err
		}

		mid, err := ids.MessageIdFromString(messageID)
		if err != nil {
			return nil, err
		}
		sid := ids.NoStream()
		if streamID != nil {
			sid, err = ids.StreamIdFromString(*streamID)
			if err != nil {
				return nil, err
			}
		}

		var flags WorkBatchFlags
		if st.insertedInboxIds[messageID] {
			flags |= BatchFlagNewlyStored
		}
		if st.reclaimedInboxIds[messageID] {
			flags |= BatchFlagOrphaned
		}
		if st.cfg.debugMode() {
			flags |= BatchFlagDebugMode
		}

		items = append(items, WorkItem{
			MessageId:     mid,
			Destination:   handlerName,
			MessageType:   messageType,
			Payload:       payload,
			Metadata:      metadata,
			StreamId:      sid,
			Partition:     partitionNumber,
			Attempts:      attempts,
			Status:        MessageProcessingStatus(status),
			BatchFlags:    flags,
			SequenceOrder: receivedAt,
		})
	}
	return items, rows.Err()
}
