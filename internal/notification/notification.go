// Package notification turns pipeline events into operational emails for
// the fulfillment team.
package notification

import (
	"context"
	"fmt"

	"orderflow_backend/internal/email"
	"orderflow_backend/internal/events"
	"orderflow_backend/platform/logger"
)

// Service subscribes to pipeline events and mails the configured
// distribution list. Delivery failures are logged and dropped; a broken
// mailer must never stall the pipeline.
type Service struct {
	sender     *email.Sender
	recipients []string
	log        *logger.Logger
}

// NewService creates the notification service.
func NewService(sender *email.Sender, recipients []string, log *logger.Logger) *Service {
	return &Service{sender: sender, recipients: recipients, log: log}
}

// Register subscribes the service to the events it reports on.
func (s *Service) Register(bus events.Bus) {
	bus.Subscribe(events.DispatchRecorded{}.EventName(), events.HandlerFunc(s.onDispatchRecorded))
	bus.Subscribe(events.OrderFulfilled{}.EventName(), events.HandlerFunc(s.onOrderFulfilled))
}

func (s *Service) onDispatchRecorded(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.DispatchRecorded)
	if !ok {
		return nil
	}

	subject := fmt.Sprintf("Dispatch %s recorded against %s", evt.DispatchNo, evt.DeliveryOrderNo)
	body := fmt.Sprintf(
		"<p>Dispatch <strong>%s</strong> (firm %s) was recorded against delivery order <strong>%s</strong>.</p>"+
			"<p>Quantity: %.2f &mdash; remaining pending: %.2f</p>",
		evt.DispatchNo, evt.Firm, evt.DeliveryOrderNo, evt.Quantity, evt.PendingQty)

	if err := s.sender.Send(ctx, s.recipients, subject, body); err != nil {
		s.log.WithContext(ctx).Warn("dispatch notification failed", "dispatchNo", evt.DispatchNo, "error", err)
	}
	return nil
}

func (s *Service) onOrderFulfilled(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.OrderFulfilled)
	if !ok {
		return nil
	}

	subject := fmt.Sprintf("Order %s fully dispatched", evt.DeliveryOrderNo)
	body := fmt.Sprintf(
		"<p>Delivery order <strong>%s</strong> for %s (firm %s) is fully dispatched: %.2f units.</p>",
		evt.DeliveryOrderNo, evt.CustomerName, evt.Firm, evt.OrderedQty)

	if err := s.sender.Send(ctx, s.recipients, subject, body); err != nil {
		s.log.WithContext(ctx).Warn("fulfillment notification failed", "deliveryOrderNo", evt.DeliveryOrderNo, "error", err)
	}
	return nil
}
