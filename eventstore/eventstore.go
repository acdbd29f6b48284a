// Package eventstore implements the reader contract of spec.md §4.5: the
// append-only, per-stream-versioned log the Work Coordinator procedure
// writes to (coordinator.appendEvents). This package never writes — the
// coordinator owns every insert — it only exposes the read patterns
// consumers need: one stream from a version or after an eventId
// (ReadStream), and every stream in global sequence order (ReadAll).
package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/krew-solutions/whizbang-go/ids"
	"github.com/krew-solutions/whizbang-go/option"
	"github.com/krew-solutions/whizbang-go/session"
)

// Event is a single EventStore row (spec.md §3.2).
type Event struct {
	EventId        ids.MessageId
	StreamId       ids.StreamId
	AggregateId    string
	AggregateType  string
	EventType      string
	Payload        []byte
	Metadata       []byte
	SequenceNumber int64
	Version        int64
	CreatedAt      time.Time
}

// Cursor selects where to resume reading a stream from. Exactly one of
// FromVersion/AfterEventId should be set; if both are Nothing, reading
// starts at the beginning of the stream.
type Cursor struct {
	FromVersion  option.Option[int64]
	AfterEventId option.Option[ids.MessageId]
}

// FromBeginning reads a stream from its first event.
func FromBeginning() Cursor { return Cursor{} }

// FromVersion resumes a stream at version >= v.
func FromVersion(v int64) Cursor { return Cursor{FromVersion: option.Some(v)} }

// AfterEventId resumes a stream strictly after the given event, relying on
// MessageId's time-ordered property rather than a stored version — useful
// for consumers that checkpoint by event id across streams.
func AfterEventId(id ids.MessageId) Cursor { return Cursor{AfterEventId: option.Some(id)} }

// Reader is the read-side contract consumers (receptors, perspectives,
// projections) use against the event store.
type Reader interface {
	// ReadStream returns up to limit events of one stream, in version
	// order, starting at cursor. limit <= 0 means no limit.
	ReadStream(ctx context.Context, streamID ids.StreamId, cursor Cursor, limit int) ([]Event, error)
	// ReadAll returns up to limit events across every stream in global
	// sequenceNumber order, starting after afterSequence.
	ReadAll(ctx context.Context, afterSequence int64, limit int) ([]Event, error)
}

// PgStore is the Postgres-backed Reader. Payloads/metadata pass through an
// optional EnvelopeCodec (encryption.go) transparently to callers.
type PgStore struct {
	sessionPool session.SessionPool
	table       string
	codec       EnvelopeCodec
}

// NewStore builds a reader against the given table (normally the
// coordinator's configured event store table name). A nil codec leaves
// payload/metadata bytes untouched.
func NewStore(sessionPool session.SessionPool, table string, codec EnvelopeCodec) *PgStore {
	if table == "" {
		table = "wh_event_store"
	}
	if codec == nil {
		codec = NoopCodec{}
	}
	return &PgStore{sessionPool: sessionPool, table: table, codec: codec}
}

func (r *PgStore) ReadStream(ctx context.Context, streamID ids.StreamId, cursor Cursor, limit int) ([]Event, error) {
	var events []Event
	err := r.sessionPool.Session(ctx, func(s session.Session) error {
		db := s.(session.DbSession)

		args := []any{streamID.String()}
		where := "stream_id = $1"
		switch {
		case cursor.FromVersion.IsSome():
			args = append(args, cursor.FromVersion.Unwrap())
			where += fmt.Sprintf(" AND version >= $%d", len(args))
		case cursor.AfterEventId.IsSome():
			args = append(args, cursor.AfterEventId.Unwrap().String())
			where += fmt.Sprintf(" AND event_id > $%d", len(args))
		}

		limitClause := ""
		if limit > 0 {
			limitClause = fmt.Sprintf("LIMIT %d", limit)
		}

		sql := fmt.Sprintf(`
			SELECT event_id, stream_id, aggregate_id, aggregate_type, event_type, payload, metadata, sequence_number, version, created_at
			FROM %s
			WHERE %s
			ORDER BY version ASC
			%s
		`, r.table, where, limitClause)

		rows, err := db.Connection().Query(sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			ev, err := r.scan(s, rows)
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		return rows.Err()
	})
	return events, err
}

func (r *PgStore) ReadAll(ctx context.Context, afterSequence int64, limit int) ([]Event, error) {
	var events []Event
	err := r.sessionPool.Session(ctx, func(s session.Session) error {
		db := s.(session.DbSession)

		limitClause := ""
		if limit > 0 {
			limitClause = fmt.Sprintf("LIMIT %d", limit)
		}

		sql := fmt.Sprintf(`
			SELECT event_id, stream_id, aggregate_id, aggregate_type, event_type, payload, metadata, sequence_number, version, created_at
			FROM %s
			WHERE sequence_number > $1
			ORDER BY sequence_number ASC
			%s
		`, r.table, limitClause)

		rows, err := db.Connection().Query(sql, afterSequence)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			ev, err := r.scan(s, rows)
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		return rows.Err()
	})
	return events, err
}

func (r *PgStore) scan(s session.Session, rows session.Rows) (Event, error) {
	var (
		eventID, streamID, aggregateID, aggregateType, eventType string
		payload, metadata                                        []byte
		sequenceNumber, version                                  int64
		createdAt                                                time.Time
	)
	if err := rows.Scan(&eventID, &streamID, &aggregateID, &aggregateType, &eventType, &payload, &metadata, &sequenceNumber, &version, &createdAt); err != nil {
		return Event{}, err
	}

	eid, err := ids.MessageIdFromString(eventID)
	if err != nil {
		return Event{}, err
	}
	sid, err := ids.StreamIdFromString(streamID)
	if err != nil {
		return Event{}, err
	}

	plainPayload, err := r.codec.Decrypt(s, sid, payload)
	if err != nil {
		return Event{}, fmt.Errorf("eventstore: decrypt payload: %w", err)
	}
	plainMetadata := metadata
	if metadata != nil {
		plainMetadata, err = r.codec.Decrypt(s, sid, metadata)
		if err != nil {
			return Event{}, fmt.Errorf("eventstore: decrypt metadata: %w", err)
		}
	}

	return Event{
		EventId:        eid,
		StreamId:       sid,
		AggregateId:    aggregateID,
		AggregateType:  aggregateType,
		EventType:      eventType,
		Payload:        plainPayload,
		Metadata:       plainMetadata,
		SequenceNumber: sequenceNumber,
		Version:        version,
		CreatedAt:      createdAt,
	}, nil
}
