// Package receptor drains the event store and invokes registered handlers
// once per (event, receptor), reporting outcomes back to the Work
// Coordinator so spec.md §4.3 step 7 can update ReceptorProcessingLog.
package receptor

import (
	"context"
	"time"

	"github.com/krew-solutions/whizbang-go/coordinator"
	"github.com/krew-solutions/whizbang-go/eventstore"
)

// Handler processes a single event for one receptor. An error marks the
// event failed for this receptor only — other receptors still run, and the
// event is still considered read for sequence-cursor purposes.
type Handler func(ctx context.Context, event eventstore.Event) error

// Registration names a handler a Runner dispatches events to.
type Registration struct {
	Name    string
	Handler Handler
}

// Runner drains the event store in global sequence order and invokes every
// registered receptor once per event. It mirrors the teacher's
// PgOutbox.Run poll-loop shape: alternate between fetching a page and
// dispatching it, sleeping between empty pages.
type Runner struct {
	coord    *coordinator.Coordinator
	reader   eventstore.Reader
	identity coordinator.Identity
	config   coordinator.Config
	registry []Registration

	PageSize     int
	PollInterval time.Duration

	lastSequence int64
}

func NewRunner(coord *coordinator.Coordinator, reader eventstore.Reader, identity coordinator.Identity, config coordinator.Config, registry []Registration) *Runner {
	return &Runner{
		coord: coord, reader: reader, identity: identity, config: config, registry: registry,
		PageSize: 100, PollInterval: time.Second,
	}
}

// Run drains events until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.drainOnce(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.PollInterval):
			}
		}
	}
}

func (r *Runner) drainOnce(ctx context.Context) (int, error) {
	events, err := r.reader.ReadAll(ctx, r.lastSequence, r.PageSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	var completions, failures []coordinator.ReceptorOutcome
	for _, ev := range events {
		for _, reg := range r.registry {
			if err := reg.Handler(ctx, ev); err != nil {
				failures = append(failures, coordinator.ReceptorOutcome{
					EventId: ev.EventId, ReceptorName: reg.Name, Status: "failed", Error: err.Error(),
				})
				continue
			}
			completions = append(completions, coordinator.ReceptorOutcome{
				EventId: ev.EventId, ReceptorName: reg.Name, Status: "completed",
			})
		}
		r.lastSequence = ev.SequenceNumber
	}

	_, err = r.coord.ProcessWorkBatch(ctx,
		r.identity,
		coordinator.Completions{Receptor: completions},
		coordinator.Failures{Receptor: failures},
		coordinator.NewMessages{},
		coordinator.LeaseRenewals{},
		r.config,
	)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}
