package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/krew-solutions/whizbang-go/coordinator"
	"github.com/krew-solutions/whizbang-go/mediator"
)

// renderNotification is a demo mediator request: the "email" outbox
// destination asks it to render a payload into a message body before
// "sending" it (logging it, in this example host).
type renderNotification struct {
	mediator.RequestBase[string]
	Recipient string
	Body      string
}

// echoProcessed is a demo mediator event: the "demo.echo" inbox handler
// publishes one after it processes a message, for any host-side observer
// that wants to react.
type echoProcessed struct {
	MessageID string
}

func newDemoMediator(log *logrus.Entry) *mediator.MediatorImp[context.Context] {
	m := mediator.NewMediator[context.Context]()
	mediator.Register(m, func(_ context.Context, req renderNotification) (string, error) {
		return fmt.Sprintf("To: %s\n\n%s", req.Recipient, req.Body), nil
	})
	mediator.Subscribe(m, func(_ context.Context, ev echoProcessed) error {
		log.WithField("message_id", ev.MessageID).Debug("whizbangd: echoProcessed observed")
		return nil
	})
	return m
}

// registerDemoHandlers wires the two demo handlers named by SPEC_FULL.md
// §10.5: one outbox destination and one inbox handler, both going through
// the mediator so cross-cutting pipeline concerns (logging, retries) could
// be layered on without touching the handler bodies themselves.
func registerDemoHandlers(c *clientHost, m *mediator.MediatorImp[context.Context], log *logrus.Entry) {
	c.client.RegisterOutboxHandler("email", func(ctx context.Context, item coordinator.WorkItem) error {
		rendered, err := mediator.Send(m, ctx, renderNotification{Recipient: item.Destination, Body: string(item.Payload)})
		if err != nil {
			return err
		}
		log.WithField("message_id", item.MessageId.String()).Debugf("whizbangd: demo email handler rendered: %s", rendered)
		return nil
	})

	c.client.RegisterInboxHandler("demo.echo", func(ctx context.Context, item coordinator.WorkItem) error {
		log.WithFields(logrus.Fields{
			"message_id": item.MessageId.String(),
			"type":       item.MessageType,
		}).Debug("whizbangd: demo echo handler processed inbox message")
		return mediator.Publish(m, ctx, echoProcessed{MessageID: item.MessageId.String()})
	})
}
