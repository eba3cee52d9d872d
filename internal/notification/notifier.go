package notification

import (
	"context"
	"log/slog"

	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/orders"
	"github.com/minicart-io/minicart/pkg/schemas/users"
)

// Notifier renders and sends one mail per consumed event. Any failure is
// returned so the dispatcher requeues the delivery.
type Notifier struct {
	sender    Sender
	defaultTo string // order events carry no address; user events do
	log       *slog.Logger
}

func NewNotifier(sender Sender, defaultTo string, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, defaultTo: defaultTo, log: logger}
}

// RegisterOrderEvents binds the order handlers to the order-events dispatcher.
func (n *Notifier) RegisterOrderEvents(d *pubsub.Dispatcher) {
	d.Handle(orders.EventCreated, n.HandleOrderCreated)
	d.Handle(orders.EventCancelled, n.HandleOrderCancelled)
}

// RegisterUserEvents binds the user handlers to the user-events dispatcher.
func (n *Notifier) RegisterUserEvents(d *pubsub.Dispatcher) {
	d.Handle(users.EventRegistered, n.HandleUserRegistered)
	d.Handle(users.EventLoggedIn, n.HandleUserLoggedIn)
}

func (n *Notifier) HandleOrderCreated(ctx context.Context, d pubsub.Delivery) error {
	var data orders.CreatedData
	if err := d.DecodeData(&data); err != nil {
		return err
	}
	msg, err := renderOrderCreated(data)
	if err != nil {
		return err
	}
	msg.To = n.defaultTo
	if err := n.sender.Send(ctx, msg); err != nil {
		return err
	}
	n.log.Info("order created mail sent",
		slog.String("order_id", data.ID),
		slog.String("order_number", data.OrderNumber),
	)
	return nil
}

func (n *Notifier) HandleOrderCancelled(ctx context.Context, d pubsub.Delivery) error {
	var data orders.CancelledData
	if err := d.DecodeData(&data); err != nil {
		return err
	}
	msg, err := renderOrderCancelled(data)
	if err != nil {
		return err
	}
	msg.To = n.defaultTo
	if err := n.sender.Send(ctx, msg); err != nil {
		return err
	}
	n.log.Info("order cancelled mail sent",
		slog.String("order_id", data.ID),
		slog.String("order_number", data.OrderNumber),
	)
	return nil
}

func (n *Notifier) HandleUserRegistered(ctx context.Context, d pubsub.Delivery) error {
	var data users.RegisteredData
	if err := d.DecodeData(&data); err != nil {
		return err
	}
	msg, err := renderUserRegistered(data)
	if err != nil {
		return err
	}
	msg.To = n.recipient(data.Email)
	if err := n.sender.Send(ctx, msg); err != nil {
		return err
	}
	n.log.Info("welcome mail sent", slog.Int64("user_id", data.UserID))
	return nil
}

func (n *Notifier) HandleUserLoggedIn(ctx context.Context, d pubsub.Delivery) error {
	var data users.LoggedInData
	if err := d.DecodeData(&data); err != nil {
		return err
	}
	msg, err := renderUserLoggedIn(data)
	if err != nil {
		return err
	}
	msg.To = n.recipient(data.Email)
	if err := n.sender.Send(ctx, msg); err != nil {
		return err
	}
	n.log.Info("login alert sent", slog.Int64("user_id", data.UserID))
	return nil
}

func (n *Notifier) recipient(email string) string {
	if email != "" {
		return email
	}
	return n.defaultTo
}
