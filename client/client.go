// Package client implements the Coordinator client named by spec.md §1-9:
// it batches producer input (new outbox/inbox messages) and prior-flush
// outcomes (completions, failures, lease renewals), flushes them through a
// single coordinator.ProcessWorkBatch call on an interval/count/shutdown/
// send-now trigger, and dispatches the returned WorkBatch to registered
// handlers preserving per-stream order (dispatch.go).
package client

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krew-solutions/whizbang-go/coordinator"
	"github.com/krew-solutions/whizbang-go/ids"
	"github.com/krew-solutions/whizbang-go/metrics"
)

// OutboxHandler publishes a single outbox WorkItem to its Destination.
type OutboxHandler func(ctx context.Context, item coordinator.WorkItem) error

// InboxHandler processes a single inbox WorkItem for its handler name.
type InboxHandler func(ctx context.Context, item coordinator.WorkItem) error

// Config tunes the client's batching behavior.
type Config struct {
	// FlushInterval is the maximum time pending work waits before a flush.
	FlushInterval time.Duration
	// FlushCount triggers an immediate flush once this many pending items
	// (new messages + outcomes, combined) accumulate.
	FlushCount int
	// DispatchConcurrency bounds how many distinct streams' work is
	// dispatched concurrently per flush. 0 means unbounded.
	DispatchConcurrency int
}

// DefaultConfig matches spec.md §6's suggested client defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval:       2 * time.Second,
		FlushCount:          200,
		DispatchConcurrency: 8,
	}
}

// Client is the Coordinator client. Safe for concurrent use by multiple
// producer goroutines; Run drives the flush loop and must be started once.
type Client struct {
	coord    *coordinator.Coordinator
	identity coordinator.Identity
	workCfg  coordinator.Config
	cfg      Config
	log      *logrus.Entry

	Hooks Hooks

	outboxHandlers map[string]OutboxHandler
	inboxHandlers  map[string]InboxHandler

	mu       sync.Mutex
	pending  pendingBatch
	flushNow chan struct{}

	checkpoints *CheckpointCache
}

type pendingBatch struct {
	newOutbox   []coordinator.NewOutboxMessage
	newInbox    []coordinator.NewInboxMessage
	completions coordinator.Completions
	failures    coordinator.Failures
	renewals    coordinator.LeaseRenewals
}

func (p *pendingBatch) count() int {
	return len(p.newOutbox) + len(p.newInbox) +
		len(p.completions.Outbox) + len(p.completions.Inbox) + len(p.completions.Receptor) + len(p.completions.Perspective) +
		len(p.failures.Outbox) + len(p.failures.Inbox) + len(p.failures.Receptor) + len(p.failures.Perspective) +
		len(p.renewals.Outbox) + len(p.renewals.Inbox)
}

// NewClient builds a client around a started Coordinator. log may be nil, in
// which case a discarding logrus.Entry is used — matching the teacher's
// "libraries don't log unless given a logger" stance.
func NewClient(coord *coordinator.Coordinator, identity coordinator.Identity, workCfg coordinator.Config, cfg Config, log *logrus.Entry) *Client {
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(discardWriter{})
		log = logrus.NewEntry(logger)
	}
	return &Client{
		coord:          coord,
		identity:       identity,
		workCfg:        workCfg,
		cfg:            cfg,
		log:            log,
		Hooks:          newHooks(),
		outboxHandlers: make(map[string]OutboxHandler),
		inboxHandlers:  make(map[string]InboxHandler),
		flushNow:       make(chan struct{}, 1),
		checkpoints:    newCheckpointCache(256),
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// RegisterOutboxHandler wires a destination name to the handler that
// publishes it, mirroring the teacher's outbox.Subscriber registration.
func (c *Client) RegisterOutboxHandler(destination string, handler OutboxHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outboxHandlers[destination] = handler
}

// RegisterInboxHandler wires a handler name to the function that processes
// it.
func (c *Client) RegisterInboxHandler(handlerName string, handler InboxHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inboxHandlers[handlerName] = handler
}

// SubmitOutboxMessage enqueues a new message for spec.md §4.3 step 9.
func (c *Client) SubmitOutboxMessage(msg coordinator.NewOutboxMessage) {
	c.mu.Lock()
	c.pending.newOutbox = append(c.pending.newOutbox, msg)
	c.mu.Unlock()
	c.triggerIfFull()
}

// SubmitInboxMessage enqueues a new message for spec.md §4.3 step 10.
func (c *Client) SubmitInboxMessage(msg coordinator.NewInboxMessage) {
	c.mu.Lock()
	c.pending.newInbox = append(c.pending.newInbox, msg)
	c.mu.Unlock()
	c.triggerIfFull()
}

// RenewOutboxLease/RenewInboxLease queue a lease extension for the next
// flush (spec.md §4.3 step 8), used by long-running handlers that aren't
// done yet but want to keep ownership.
func (c *Client) RenewOutboxLease(id ids.MessageId) {
	c.mu.Lock()
	c.pending.renewals.Outbox = append(c.pending.renewals.Outbox, id)
	c.mu.Unlock()
}

func (c *Client) RenewInboxLease(id ids.MessageId) {
	c.mu.Lock()
	c.pending.renewals.Inbox = append(c.pending.renewals.Inbox, id)
	c.mu.Unlock()
}

func (c *Client) completeOutbox(id ids.MessageId, status coordinator.MessageProcessingStatus) {
	c.mu.Lock()
	c.pending.completions.Outbox = append(c.pending.completions.Outbox, coordinator.Completion{MessageId: id, Status: status})
	c.mu.Unlock()
	c.triggerIfFull()
}

func (c *Client) failOutbox(id ids.MessageId, completed coordinator.MessageProcessingStatus, cause error) {
	c.mu.Lock()
	c.pending.failures.Outbox = append(c.pending.failures.Outbox, coordinator.Failure{MessageId: id, CompletedStatus: completed, Error: cause.Error()})
	c.mu.Unlock()
	c.triggerIfFull()
}

func (c *Client) completeInbox(id ids.MessageId, status coordinator.MessageProcessingStatus) {
	c.mu.Lock()
	c.pending.completions.Inbox = append(c.pending.completions.Inbox, coordinator.Completion{MessageId: id, Status: status})
	c.mu.Unlock()
	c.triggerIfFull()
}

func (c *Client) failInbox(id ids.MessageId, completed coordinator.MessageProcessingStatus, cause error) {
	c.mu.Lock()
	c.pending.failures.Inbox = append(c.pending.failures.Inbox, coordinator.Failure{MessageId: id, CompletedStatus: completed, Error: cause.Error()})
	c.mu.Unlock()
	c.triggerIfFull()
}

// CompletePerspective/FailPerspective queue a PerspectiveCheckpoint update
// for the next flush and, on success, record it in the client's
// CheckpointCache for immediate read-your-writes lookups.
func (c *Client) CompletePerspective(outcome coordinator.PerspectiveOutcome) {
	outcome.Status = "completed"
	c.mu.Lock()
	c.pending.completions.Perspective = append(c.pending.completions.Perspective, outcome)
	c.mu.Unlock()
	c.checkpoints.Record(outcome)
	c.triggerIfFull()
}

func (c *Client) FailPerspective(outcome coordinator.PerspectiveOutcome, cause error) {
	outcome.Status = "failed"
	outcome.Error = cause.Error()
	c.mu.Lock()
	c.pending.failures.Perspective = append(c.pending.failures.Perspective, outcome)
	c.mu.Unlock()
	c.triggerIfFull()
}

// CompleteReceptor/FailReceptor queue a ReceptorProcessingLog update for the
// next flush.
func (c *Client) CompleteReceptor(outcome coordinator.ReceptorOutcome) {
	outcome.Status = "completed"
	c.mu.Lock()
	c.pending.completions.Receptor = append(c.pending.completions.Receptor, outcome)
	c.mu.Unlock()
	c.triggerIfFull()
}

func (c *Client) FailReceptor(outcome coordinator.ReceptorOutcome, cause error) {
	outcome.Status = "failed"
	outcome.Error = cause.Error()
	c.mu.Lock()
	c.pending.failures.Receptor = append(c.pending.failures.Receptor, outcome)
	c.mu.Unlock()
	c.triggerIfFull()
}

// Checkpoints exposes the client's read-your-writes PerspectiveCheckpoint
// cache.
func (c *Client) Checkpoints() *CheckpointCache {
	return c.checkpoints
}

// FlushNow requests an out-of-cycle flush (the "send-now" trigger of
// spec.md's client summary). Non-blocking: a flush already pending is not
// duplicated.
func (c *Client) FlushNow() {
	select {
	case c.flushNow <- struct{}{}:
	default:
	}
}

func (c *Client) triggerIfFull() {
	c.mu.Lock()
	full := c.cfg.FlushCount > 0 && c.pending.count() >= c.cfg.FlushCount
	c.mu.Unlock()
	if full {
		c.FlushNow()
	}
}

// Run drives the flush loop until ctx is cancelled, then performs one final
// shutdown flush (the "shutdown" trigger) before returning.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := c.flush(context.Background()); err != nil {
				c.log.WithError(err).Warn("client: shutdown flush failed")
				return err
			}
			return nil
		case <-ticker.C:
			if err := c.flush(ctx); err != nil {
				c.log.WithError(err).Warn("client: scheduled flush failed")
			}
		case <-c.flushNow:
			if err := c.flush(ctx); err != nil {
				c.log.WithError(err).Warn("client: requested flush failed")
			}
		}
	}
}

func (c *Client) flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = pendingBatch{}
	c.mu.Unlock()

	if batch.count() == 0 {
		return nil
	}

	started := time.Now()
	c.Hooks.OnFlushStarted.Notify(FlushStarted{
		At:               started,
		PendingOutbox:    len(batch.newOutbox),
		PendingInbox:     len(batch.newInbox),
		PendingReceptor:  len(batch.completions.Receptor) + len(batch.failures.Receptor),
		PendingPerspectv: len(batch.completions.Perspective) + len(batch.failures.Perspective),
	})

	result, err := c.coord.ProcessWorkBatch(ctx, c.identity,
		batch.completions, batch.failures,
		coordinator.NewMessages{Outbox: batch.newOutbox, Inbox: batch.newInbox},
		batch.renewals, c.workCfg)

	duration := time.Since(started)
	c.Hooks.OnFlushEnded.Notify(FlushEnded{At: time.Now(), Duration: duration, Err: err, Batch: result})
	metrics.ObserveFlush(duration, err)

	if err != nil {
		// Requeue: the transaction never committed, nothing it contained
		// actually happened at the database.
		c.mu.Lock()
		c.pending = mergeBatches(batch, c.pending)
		c.mu.Unlock()
		return err
	}

	metrics.ObserveWorkBatch(len(result.OutboxWork), len(result.InboxWork))
	metrics.SetLiveInstances(result.Stats.LiveInstances)
	metrics.SetOwnedPartitions(c.identity.InstanceId.String(), result.Stats.OwnedPartitions)

	c.dispatch(ctx, result)
	return nil
}

func mergeBatches(old, new pendingBatch) pendingBatch {
	return pendingBatch{
		newOutbox:   append(old.newOutbox, new.newOutbox...),
		newInbox:    append(old.newInbox, new.newInbox...),
		completions: mergeCompletions(old.completions, new.completions),
		failures:    mergeFailures(old.failures, new.failures),
		renewals: coordinator.LeaseRenewals{
			Outbox: append(old.renewals.Outbox, new.renewals.Outbox...),
			Inbox:  append(old.renewals.Inbox, new.renewals.Inbox...),
		},
	}
}

func mergeCompletions(a, b coordinator.Completions) coordinator.Completions {
	return coordinator.Completions{
		Outbox:      append(a.Outbox, b.Outbox...),
		Inbox:       append(a.Inbox, b.Inbox...),
		Receptor:    append(a.Receptor, b.Receptor...),
		Perspective: append(a.Perspective, b.Perspective...),
	}
}

func mergeFailures(a, b coordinator.Failures) coordinator.Failures {
	return coordinator.Failures{
		Outbox:      append(a.Outbox, b.Outbox...),
		Inbox:       append(a.Inbox, b.Inbox...),
		Receptor:    append(a.Receptor, b.Receptor...),
		Perspective: append(a.Perspective, b.Perspective...),
	}
}
