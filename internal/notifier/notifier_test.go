package notifier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"bunk/config"
	"bunk/infras/kafka"
	kafkaMocks "bunk/infras/kafka/mocks"
	"bunk/infras/otel/mocks"
	"bunk/internal/domains/booking/model"
	"bunk/internal/notifier"
	"bunk/shared/timezone"
)

func TestNotifier_Notify(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := kafkaMocks.NewMockClient(ctrl)
	mockOtel := mocks.NewOtel()

	cfg := &config.Config{}
	cfg.Kafka.Topic.BookingEvents = "bunk.booking-events"

	n := notifier.New(mockClient, cfg, mockOtel)

	confirmed := notifier.BookingEvent(notifier.EventBookingConfirmed, model.Booking{
		ID:          "booking-1",
		PoolID:      "pool-1",
		SubjectID:   "camper-1",
		RequesterID: "test-user-id",
		Status:      model.StatusConfirmed,
	})

	waitlisted := notifier.BookingEvent(notifier.EventBookingWaitlisted, model.Booking{
		ID:          "booking-2",
		PoolID:      "pool-2",
		SubjectID:   "camper-2",
		RequesterID: "test-user-id",
		Status:      model.StatusWaitlisted,
	})

	t.Run("publishes one message per event keyed by pool", func(t *testing.T) {
		mockClient.EXPECT().
			SendMessages(gomock.Any(), "bunk.booking-events", gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, messages ...kafka.Message) error {
				assert.Len(t, messages, 2)
				assert.Equal(t, "pool-1", messages[0].Key)
				assert.Equal(t, "pool-2", messages[1].Key)

				return nil
			})

		n.Notify(context.Background(), confirmed, waitlisted)
	})

	t.Run("no events is a no-op", func(t *testing.T) {
		n.Notify(context.Background())
	})

	t.Run("broker failure is swallowed", func(t *testing.T) {
		mockClient.EXPECT().
			SendMessages(gomock.Any(), "bunk.booking-events", gomock.Any()).
			Return(errors.New("broker unavailable"))

		n.Notify(context.Background(), confirmed)
	})
}

func TestBookingEvent(t *testing.T) {
	entry := model.Booking{
		ID:          "booking-1",
		PoolID:      "pool-1",
		SubjectID:   "camper-1",
		RequesterID: "test-user-id",
		Status:      model.StatusConfirmed,
	}

	event := notifier.BookingEvent(notifier.EventBookingConfirmed, entry)

	assert.Equal(t, notifier.EventBookingConfirmed, event.Type)
	assert.Equal(t, "pool-1", event.PoolID)
	assert.Equal(t, "booking-1", event.EntryID)
	assert.Equal(t, "camper-1", event.SubjectID)
	assert.Equal(t, "test-user-id", event.RequesterID)
	assert.Empty(t, event.OfferID)
	assert.Nil(t, event.ExpiresAt)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestOfferEvent(t *testing.T) {
	expiresAt := timezone.Now().Add(time.Hour)

	offer := model.Offer{
		ID:             "offer-1",
		PoolID:         "pool-1",
		BookingEntryID: "booking-1",
		ExpiresAt:      expiresAt,
		Status:         model.OfferStatusOpen,
	}

	entry := model.Booking{
		ID:          "booking-1",
		PoolID:      "pool-1",
		SubjectID:   "camper-1",
		RequesterID: "test-user-id",
		Status:      model.StatusWaitlisted,
	}

	event := notifier.OfferEvent(notifier.EventSpotAvailable, offer, entry)

	assert.Equal(t, notifier.EventSpotAvailable, event.Type)
	assert.Equal(t, "offer-1", event.OfferID)
	assert.Equal(t, "booking-1", event.EntryID)

	if assert.NotNil(t, event.ExpiresAt) {
		assert.True(t, expiresAt.Equal(*event.ExpiresAt))
	}
}
