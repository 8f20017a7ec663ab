// Package notifier publishes booking lifecycle events. Delivery is best
// effort: failures are logged and swallowed so a broker outage never rolls
// back a committed booking.
package notifier

//go:generate go run go.uber.org/mock/mockgen -source=./notifier.go -destination=./mocks/notifier_mock.go -package=mocks

import (
	"context"
	"time"

	"bunk/config"
	"bunk/infras/kafka"
	"bunk/infras/otel"
	"bunk/internal/domains/booking/model"
	"bunk/shared/constant"
	"bunk/shared/timezone"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventBookingConfirmed  EventType = "booking_confirmed"
	EventBookingWaitlisted EventType = "booking_waitlisted"
	EventBookingCancelled  EventType = "booking_cancelled"
	EventBookingRejected   EventType = "booking_rejected"
	EventSpotAvailable     EventType = "spot_available"
	EventSpotClaimed       EventType = "spot_claimed"
	EventOfferExpired      EventType = "offer_expired"
)

type Event struct {
	Type        EventType  `json:"type"`
	PoolID      string     `json:"pool_id"`
	EntryID     string     `json:"booking_entry_id,omitempty"`
	SubjectID   string     `json:"subject_id,omitempty"`
	RequesterID string     `json:"requester_id,omitempty"`
	OfferID     string     `json:"offer_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

func BookingEvent(eventType EventType, entry model.Booking) Event {
	return Event{
		Type:        eventType,
		PoolID:      entry.PoolID,
		EntryID:     entry.ID,
		SubjectID:   entry.SubjectID,
		RequesterID: entry.RequesterID,
		OccurredAt:  timezone.Now(),
	}
}

func OfferEvent(eventType EventType, offer model.Offer, entry model.Booking) Event {
	event := BookingEvent(eventType, entry)
	event.OfferID = offer.ID

	expiresAt := offer.ExpiresAt
	event.ExpiresAt = &expiresAt

	return event
}

type Notifier interface {
	Notify(ctx context.Context, events ...Event)
}

type kafkaNotifier struct {
	client kafka.Client
	cfg    *config.Config
	otel   otel.Otel
}

func New(client kafka.Client, cfg *config.Config, otel otel.Otel) Notifier {
	return &kafkaNotifier{
		client: client,
		cfg:    cfg,
		otel:   otel,
	}
}

func (n *kafkaNotifier) Notify(ctx context.Context, events ...Event) {
	if len(events) == 0 {
		return
	}

	ctx, scope := n.otel.NewScope(ctx, constant.OtelEventScopeName, constant.OtelEventScopeName+".Notify")
	defer scope.End()

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		messages[i] = kafka.Message{
			Key:   event.PoolID,
			Value: event,
		}
	}

	err := n.client.SendMessages(ctx, n.cfg.Kafka.Topic.BookingEvents, messages...)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Int("events", len(events)).Msg("failed to publish booking events")

		return
	}

	for _, event := range events {
		scope.AddEvent(string(event.Type))
	}
}
