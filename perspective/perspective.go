// Package perspective drains the event store and projects events into
// per-stream read models, reporting checkpoint outcomes back to the Work
// Coordinator so spec.md §4.3 step 7 can update PerspectiveCheckpoint.
//
// A perspective's events arrive in global sequence order, which is a
// per-stream-version-ordered subsequence for any one stream, so a single
// drain loop over ReadAll keeps every stream's projector calls ordered
// without needing a per-stream query.
package perspective

import (
	"context"
	"time"

	"github.com/krew-solutions/whizbang-go/coordinator"
	"github.com/krew-solutions/whizbang-go/eventstore"
)

// Projector folds a single event into one named read model. An error marks
// the stream/projector pair failed for this event; the checkpoint is not
// advanced past it.
type Projector func(ctx context.Context, event eventstore.Event) error

// Registration names a projector a Runner dispatches events to.
type Registration struct {
	Name      string
	Projector Projector
}

// Runner mirrors receptor.Runner's poll-loop shape, grounded on the same
// teacher poll pattern (PgOutbox.Run), but reports PerspectiveOutcome
// checkpoints instead of per-event ReceptorOutcome completions.
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

	var completions, failures []coordinator.PerspectiveOutcome
	for _, ev := range events {
		for _, reg := range r.registry {
			if err := reg.Projector(ctx, ev); err != nil {
				failures = append(failures, coordinator.PerspectiveOutcome{
					StreamId: ev.StreamId, PerspectiveName: reg.Name, LastEventId: ev.EventId,
					Status: "failed", Error: err.Error(),
				})
				continue
			}
			completions = append(completions, coordinator.PerspectiveOutcome{
				StreamId: ev.StreamId, PerspectiveName: reg.Name, LastEventId: ev.EventId,
				Status: "completed",
			})
		}
		r.lastSequence = ev.SequenceNumber
	}

	_, err = r.coord.ProcessWorkBatch(ctx,
		r.identity,
		coordinator.Completions{Perspective: completions},
		coordinator.Failures{Perspective: failures},
		coordinator.NewMessages{},
		coordinator.LeaseRenewals{},
		r.config,
	)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}
