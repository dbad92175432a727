package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/driveloop/driveloop-backend/pkg/db/models"
	"github.com/driveloop/driveloop-backend/pkg/enums"
	"github.com/driveloop/driveloop-backend/pkg/logger"
	"github.com/driveloop/driveloop-backend/pkg/outbox"
	"github.com/driveloop/driveloop-backend/pkg/outbox/idempotency"
	"github.com/driveloop/driveloop-backend/pkg/outbox/payloads"
)

const bookingNotificationConsumer = "booking-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches booking lifecycle events and fans them out into per-user
// notification rows for the renter and host.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a booking notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("booking subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	rawType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": rawType,
	})

	eventType, err := enums.ParseOutboxEventType(rawType)
	if err != nil {
		c.logg.Info(logCtx, "skipping unknown event type")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, bookingNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	notifications, err := notificationsFor(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, bookingNotificationConsumer, eventID)
		return processResult{ack: true}
	}

	for _, notification := range notifications {
		if err := c.repo.Create(ctx, notification); err != nil {
			c.logg.Error(logCtx, "notification write failed", err)
			_ = c.idempotency.Delete(ctx, bookingNotificationConsumer, eventID)
			return processResult{nack: true}
		}
	}

	c.logg.Info(logCtx, "booking event fanned out")
	return processResult{ack: true}
}

// notificationsFor maps one lifecycle event to the notification rows it
// produces. Malformed payloads are a permanent failure for the event.
func notificationsFor(eventType enums.OutboxEventType, data json.RawMessage) ([]*models.Notification, error) {
	switch eventType {
	case enums.EventBookingRequested:
		var p payloads.BookingRequestedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{notify(
			p.HostID, enums.NotificationBookingRequested, p.BookingID,
			"New booking request",
			fmt.Sprintf("A renter requested your vehicle from %s to %s for %s.",
				p.PickupAt.Format("Jan 2 15:04"), p.ReturnAt.Format("Jan 2 15:04"),
				money(p.TotalMinor, p.Currency)),
		)}, nil
	case enums.EventBookingConfirmed:
		var p payloads.BookingConfirmedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{notify(
			p.RenterID, enums.NotificationBookingConfirmed, p.BookingID,
			"Booking confirmed",
			"Your booking was accepted and your payment has been captured.",
		)}, nil
	case enums.EventBookingDeclined:
		var p payloads.BookingDeclinedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		message := "Your booking request was declined. The hold on your payment has been released."
		if p.Reason != "" {
			message = fmt.Sprintf("Your booking request was declined (%s). The hold on your payment has been released.", p.Reason)
		}
		return []*models.Notification{notify(
			p.RenterID, enums.NotificationBookingDeclined, p.BookingID,
			"Booking declined", message,
		)}, nil
	case enums.EventBookingCancelled:
		var p payloads.BookingCancelledEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		// The counterparty gets told; the canceller already knows.
		target := p.HostID
		message := "The renter cancelled the booking."
		if p.CancelledBy == enums.CancelledByHost {
			target = p.RenterID
			message = "The host cancelled the booking. You will receive a full refund."
		}
		return []*models.Notification{notify(
			target, enums.NotificationBookingCancelled, p.BookingID,
			"Booking cancelled", message,
		)}, nil
	case enums.EventBookingCompleted:
		var p payloads.BookingCompletedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		renterMsg := "Your trip is complete. Thanks for riding with us."
		if p.LateFeeMinor > 0 {
			renterMsg = "Your trip is complete. A late return fee was added to your total."
		}
		return []*models.Notification{
			notify(p.RenterID, enums.NotificationBookingCompleted, p.BookingID, "Trip completed", renterMsg),
			notify(p.HostID, enums.NotificationBookingCompleted, p.BookingID, "Trip completed", "Your vehicle is back and available for new bookings."),
		}, nil
	case enums.EventRefundIssued:
		var p payloads.RefundIssuedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []*models.Notification{notify(
			p.RenterID, enums.NotificationRefundIssued, p.BookingID,
			"Refund issued",
			fmt.Sprintf("A refund of %s is on its way back to your payment method.", money(p.AmountMinor, p.Currency)),
		)}, nil
	default:
		return nil, nil
	}
}

func notify(userID uuid.UUID, kind enums.NotificationType, bookingID uuid.UUID, title, message string) *models.Notification {
	id := bookingID
	return &models.Notification{
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		BookingID: &id,
	}
}

func money(minor int64, currency string) string {
	return fmt.Sprintf("%s %.2f", currency, float64(minor)/100)
}
