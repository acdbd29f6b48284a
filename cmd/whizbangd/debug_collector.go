package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krew-solutions/whizbang-go/coordinator"
)

// runDebugCollector periodically runs CollectDebugRows, the supplemental
// DebugMode retention sweep of SPEC_FULL.md §12. It is a host-triggered
// maintenance loop, deliberately separate from the client's flush loop —
// CollectDebugRows is not part of the atomic 15-step procedure.
func runDebugCollector(ctx context.Context, coord *coordinator.Coordinator, cfg appConfig, log *logrus.Entry) {
	interval := cfg.debugRetention / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			workCfg := cfg.workCfg
			workCfg.DebugRetention = cfg.debugRetention
			outboxDeleted, inboxDeleted, err := coord.CollectDebugRows(ctx, workCfg)
			if err != nil {
				log.WithError(err).Warn("whizbangd: debug row collection failed")
				continue
			}
			if outboxDeleted > 0 || inboxDeleted > 0 {
				log.WithFields(logrus.Fields{"outbox_deleted": outboxDeleted, "inbox_deleted": inboxDeleted}).Info("whizbangd: collected debug-retained rows")
			}
		}
	}
}
