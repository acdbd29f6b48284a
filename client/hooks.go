package client

import (
	"time"

	"github.com/krew-solutions/whizbang-go/coordinator"
	"github.com/krew-solutions/whizbang-go/signals"
)

// FlushStarted is notified immediately before a ProcessWorkBatch call.
type FlushStarted struct {
	At               time.Time
	PendingOutbox    int
	PendingInbox     int
	PendingReceptor  int
	PendingPerspectv int
}

// FlushEnded is notified after a flush completes, successfully or not.
type FlushEnded struct {
	At       time.Time
	Duration time.Duration
	Err      error
	Batch    *coordinator.WorkBatch
}

// WorkDispatched is notified once per WorkItem handed to a registered
// handler.
type WorkDispatched struct {
	Item  coordinator.WorkItem
	Inbox bool
	Err   error
}

// Hooks exposes the client's observability surface (spec.md §12's
// supplemental "Coordinator client observability hooks" feature), reusing
// the teacher's signals package verbatim: "global static state becomes
// explicit dependencies" (spec.md §9) applied to instrumentation.
type Hooks struct {
	OnFlushStarted   *signals.SignalImp[FlushStarted]
	OnFlushEnded     *signals.SignalImp[FlushEnded]
	OnWorkDispatched *signals.SignalImp[WorkDispatched]
}

func newHooks() Hooks {
	return Hooks{
		OnFlushStarted:   signals.NewSignal[FlushStarted](),
		OnFlushEnded:     signals.NewSignal[FlushEnded](),
		OnWorkDispatched: signals.NewSignal[WorkDispatched](),
	}
}
