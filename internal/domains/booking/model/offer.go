package model

import (
	"time"

	"bunk/shared/model"
)

const (
	OfferTableName  = "claim_offers"
	OfferEntityName = "offer"

	FieldBookingEntryID = "booking_entry_id"
	FieldOfferedAt      = "offered_at"
	FieldExpiresAt      = "expires_at"
	FieldResolvedAt     = "resolved_at"

	OfferStatusOpen    = "open"
	OfferStatusClaimed = "claimed"
	OfferStatusExpired = "expired"
)

// Offer is a time-boxed claim on a freed seat, handed to the head of the
// waitlist. A pool has at most one open offer at a time.
type Offer struct {
	ID             string     `db:"id"`
	PoolID         string     `db:"pool_id"`
	BookingEntryID string     `db:"booking_entry_id"`
	OfferedAt      time.Time  `db:"offered_at"`
	ExpiresAt      time.Time  `db:"expires_at"`
	Status         string     `db:"status"`
	ResolvedAt     *time.Time `db:"resolved_at"`
	model.Metadata
}

// IsOpen reports whether the offer can still be claimed, ignoring the clock.
func (o *Offer) IsOpen() bool {
	return o.Status == OfferStatusOpen
}
