package client

import (
	"context"
	"sync"

	"github.com/krew-solutions/whizbang-go/coordinator"
	"github.com/krew-solutions/whizbang-go/metrics"
)

// dispatch hands a returned WorkBatch to registered handlers. Items sharing
// a StreamId run strictly in the order ProcessWorkBatch returned them (the
// "per-stream ordered dispatch" of spec.md's client summary); items with no
// stream, or belonging to different streams, run concurrently, bounded by
// cfg.DispatchConcurrency.
func (c *Client) dispatch(ctx context.Context, batch *coordinator.WorkBatch) {
	if batch == nil {
		return
	}

	lanes := make(map[string][]laneItem)
	order := []string{}
	addLane := func(key string, item laneItem) {
		if _, ok := lanes[key]; !ok {
			order = append(order, key)
		}
		lanes[key] = append(lanes[key], item)
	}

	for _, item := range batch.OutboxWork {
		addLane(laneKey(item), laneItem{item: item, inbox: false})
	}
	for _, item := range batch.InboxWork {
		addLane(laneKey(item), laneItem{item: item, inbox: true})
	}

	sem := make(chan struct{}, c.cfg.DispatchConcurrency)
	var wg sync.WaitGroup
	for _, key := range order {
		items := lanes[key]
		wg.Add(1)
		if cap(sem) > 0 {
			sem <- struct{}{}
		}
		go func(items []laneItem) {
			defer wg.Done()
			if cap(sem) > 0 {
				defer func() { <-sem }()
			}
			for _, li := range items {
				c.dispatchOne(ctx, li)
			}
		}(items)
	}
	wg.Wait()
}

type laneItem struct {
	item  coordinator.WorkItem
	inbox bool
}

// laneKey groups by StreamId when set; otherwise each message dispatches
// independently since there is no ordering relationship to preserve.
func laneKey(item coordinator.WorkItem) string {
	if item.StreamId.IsSet() {
		return "stream:" + item.StreamId.String()
	}
	return "msg:" + item.MessageId.String()
}

func (c *Client) dispatchOne(ctx context.Context, li laneItem) {
	item := li.item
	if li.inbox {
		c.mu.Lock()
		handler, ok := c.inboxHandlers[item.Destination]
		c.mu.Unlock()
		if !ok {
			c.log.WithField("handler", item.Destination).Warn("client: no inbox handler registered")
			return
		}
		err := handler(ctx, item)
		c.Hooks.OnWorkDispatched.Notify(WorkDispatched{Item: item, Inbox: true, Err: err})
		if err != nil {
			metrics.IncDispatchError("inbox")
			c.failInbox(item.MessageId, item.Status, err)
			return
		}
		c.completeInbox(item.MessageId, coordinator.StatusEventStored)
		return
	}

	c.mu.Lock()
	handler, ok := c.outboxHandlers[item.Destination]
	c.mu.Unlock()
	if !ok {
		c.log.WithField("destination", item.Destination).Warn("client: no outbox handler registered")
		return
	}
	err := handler(ctx, item)
	c.Hooks.OnWorkDispatched.Notify(WorkDispatched{Item: item, Inbox: false, Err: err})
	if err != nil {
		metrics.IncDispatchError("outbox")
		c.failOutbox(item.MessageId, item.Status, err)
		return
	}
	c.completeOutbox(item.MessageId, coordinator.StatusPublished)
}
