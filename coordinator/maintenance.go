package coordinator

import (
	"context"
	"fmt"

	"github.com/krew-solutions/whizbang-go/session"
)

// CollectDebugRows deletes DebugMode-retained rows that reached their
// terminal status more than cfg.DebugRetention ago. It is intentionally not
// part of ProcessWorkBatch's 15-step transaction — DebugMode retention is a
// host-configured maintenance sweep (spec.md §9 open question), not a
// correctness requirement of the procedure itself. A zero DebugRetention is
// a no-op: rows are kept forever, matching DebugMode's default behavior.
//
// Returns the number of outbox and inbox rows deleted.
func (c *Coordinator) CollectDebugRows(ctx context.Context, cfg Config) (outboxDeleted, inboxDeleted int64, err error) {
	if cfg.DebugRetention <= 0 {
		return 0, 0, nil
	}

	err = c.sessionPool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(txSession session.Session) error {
			db := txSession.(session.DbSession)
			cutoff := c.now().Add(-cfg.DebugRetention)

			outboxSQL := fmt.Sprintf(`
				DELETE FROM %s
				WHERE (status & $1::bigint) != 0 AND published_at IS NOT NULL AND published_at < $2
			`, c.tables.outbox)
			res, err := db.Connection().Exec(outboxSQL, int64(StatusPublished), cutoff)
			if err != nil {
				return fmt.Errorf("coordinator: collect debug outbox rows: %w", err)
			}
			if outboxDeleted, err = res.RowsAffected(); err != nil {
				return fmt.Errorf("coordinator: collect debug outbox rows: %w", err)
			}

			inboxSQL := fmt.Sprintf(`
				DELETE FROM %s
				WHERE (status & $1::bigint) != 0 AND completed_at IS NOT NULL AND completed_at < $2
			`, c.tables.inbox)
			res, err = db.Connection().Exec(inboxSQL, int64(StatusEventStored), cutoff)
			if err != nil {
				return fmt.Errorf("coordinator: collect debug inbox rows: %w", err)
			}
			if inboxDeleted, err = res.RowsAffected(); err != nil {
				return fmt.Errorf("coordinator: collect debug inbox rows: %w", err)
			}

			return nil
		})
	})
	return outboxDeleted, inboxDeleted, err
}
