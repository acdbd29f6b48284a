package coordinator

import (
	"context"
	"fmt"

	"github.com/krew-solutions/whizbang-go/session"
)

// tableNames holds the (overridable) physical table names backing the
// persisted-state layout of spec.md §6. Defaults use the "wh_" prefix the
// spec mandates for the stable external contract; tests override them to
// run isolated schemas side by side.
type tableNames struct {
	serviceInstance      string
	partitionAssignment  string
	outbox               string
	inbox                string
	dedup                string
	eventStore           string
	eventSequence        string
	receptorLog          string
	perspectiveCheckpoint string
	activeStream         string
}

func defaultTableNames() tableNames {
	return tableNames{
		serviceInstance:       "wh_service_instance",
		partitionAssignment:   "wh_partition_assignment",
		outbox:                "wh_outbox",
		inbox:                 "wh_inbox",
		dedup:                 "wh_dedup",
		eventStore:            "wh_event_store",
		eventSequence:         "wh_event_sequence",
		receptorLog:           "wh_receptor_log",
		perspectiveCheckpoint: "wh_perspective_checkpoint",
		activeStream:          "wh_active_stream",
	}
}

// Setup creates every table (and the global sequence number source) the
// Work Coordinator procedure needs, if they do not already exist. Safe to
// call repeatedly and concurrently from multiple processes at startup.
func (c *Coordinator) Setup(ctx context.Context) error {
	return c.sessionPool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(txSession session.Session) error {
			db := txSession.(session.DbSession)
			for _, stmt := range c.schemaStatements() {
				if _, err := db.Connection().Exec(stmt); err != nil {
					return fmt.Errorf("coordinator: setup: %w", err)
				}
			}
			return nil
		})
	})
}

func (c *Coordinator) schemaStatements() []string {
	t := c.tables
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			instance_id       uuid PRIMARY KEY,
			service_name      varchar(255) NOT NULL,
			host_name         varchar(255) NOT NULL,
			process_id        integer NOT NULL,
			started_at        timestamptz NOT NULL DEFAULT now(),
			last_heartbeat_at timestamptz NOT NULL DEFAULT now(),
			metadata          jsonb NULL
		)`, t.serviceInstance),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			partition_number integer PRIMARY KEY,
			instance_id      uuid NOT NULL REFERENCES %s(instance_id) ON DELETE CASCADE,
			assigned_at      timestamptz NOT NULL DEFAULT now(),
			last_heartbeat   timestamptz NOT NULL DEFAULT now()
		)`, t.partitionAssignment, t.serviceInstance),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_instance_idx ON %s (instance_id)`, t.partitionAssignment, t.partitionAssignment),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			message_id      text PRIMARY KEY,
			destination     varchar(255) NOT NULL,
			message_type    varchar(255) NOT NULL,
			payload         bytea NOT NULL,
			metadata        bytea NULL,
			scope           varchar(255) NULL,
			stream_id       uuid NULL,
			partition_number integer NOT NULL,
			status          bigint NOT NULL,
			attempts        integer NOT NULL DEFAULT 0,
			error           text NULL,
			instance_id     uuid NULL,
			lease_expiry    timestamptz NULL,
			created_at      timestamptz NOT NULL DEFAULT now(),
			published_at    timestamptz NULL
		)`, t.outbox),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_partition_idx ON %s (partition_number)`, t.outbox, t.outbox),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_stream_idx ON %s (stream_id, created_at)`, t.outbox, t.outbox),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_lease_idx ON %s (instance_id, lease_expiry)`, t.outbox, t.outbox),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			message_id      text PRIMARY KEY,
			handler_name    varchar(255) NOT NULL,
			message_type    varchar(255) NOT NULL,
			payload         bytea NOT NULL,
			metadata        bytea NULL,
			scope           varchar(255) NULL,
			stream_id       uuid NULL,
			partition_number integer NOT NULL,
			status          bigint NOT NULL,
			attempts        integer NOT NULL DEFAULT 0,
			error           text NULL,
			instance_id     uuid NULL,
			lease_expiry    timestamptz NULL,
			received_at     timestamptz NOT NULL DEFAULT now(),
			completed_at    timestamptz NULL
		)`, t.inbox),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_partition_idx ON %s (partition_number)`, t.inbox, t.inbox),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_stream_idx ON %s (stream_id, received_at)`, t.inbox, t.inbox),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_lease_idx ON %s (instance_id, lease_expiry)`, t.inbox, t.inbox),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			message_id    text PRIMARY KEY,
			first_seen_at timestamptz NOT NULL DEFAULT now()
		)`, t.dedup),

		fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s`, t.eventSequence),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			event_id        text PRIMARY KEY,
			stream_id       uuid NOT NULL,
			aggregate_id    varchar(255) NOT NULL,
			aggregate_type  varchar(255) NOT NULL,
			event_type      varchar(255) NOT NULL,
			payload         bytea NOT NULL,
			metadata        bytea NULL,
			sequence_number bigint NOT NULL,
			version         bigint NOT NULL,
			created_at      timestamptz NOT NULL DEFAULT now(),
			UNIQUE (stream_id, version)
		)`, t.eventStore),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_sequence_idx ON %s (sequence_number)`, t.eventStore, t.eventStore),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_stream_version_idx ON %s (stream_id, version)`, t.eventStore, t.eventStore),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id            bigserial PRIMARY KEY,
			event_id      text NOT NULL,
			receptor_name varchar(255) NOT NULL,
			status        varchar(32) NOT NULL,
			attempts      integer NOT NULL DEFAULT 0,
			error         text NULL,
			started_at    timestamptz NOT NULL DEFAULT now(),
			processed_at  timestamptz NULL,
			UNIQUE (event_id, receptor_name)
		)`, t.receptorLog),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			stream_id        uuid NOT NULL,
			perspective_name varchar(255) NOT NULL,
			last_event_id    text NOT NULL,
			status           varchar(32) NOT NULL,
			processed_at     timestamptz NOT NULL DEFAULT now(),
			error            text NULL,
			PRIMARY KEY (stream_id, perspective_name)
		)`, t.perspectiveCheckpoint),

		// ActiveStream backs alternate, per-stream claim routines (spec.md
		// §3.2); the default partition-based procedure below never writes
		// to it, but hosts that need tighter per-stream ownership than a
		// whole partition can build one on top of this table.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			stream_id            uuid PRIMARY KEY,
			partition_number     integer NOT NULL,
			assigned_instance_id uuid NULL,
			lease_expiry         timestamptz NULL,
			created_at           timestamptz NOT NULL DEFAULT now(),
			updated_at           timestamptz NOT NULL DEFAULT now()
		)`, t.activeStream),
	}
}
