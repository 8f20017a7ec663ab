package model

import "bunk/shared/model"

const (
	TableName  = "booking_entries"
	EntityName = "booking"

	FieldID          = "id"
	FieldPoolID      = "pool_id"
	FieldSubjectID   = "subject_id"
	FieldRequesterID = "requester_id"
	FieldStatus      = "status"

	StatusConfirmed  = "confirmed"
	StatusWaitlisted = "waitlisted"
	StatusCancelled  = "cancelled"
	StatusExpired    = "expired"
	StatusRejected   = "rejected"
)

// Booking is one ledger entry: a subject's attempt to hold a seat in a pool.
// Entries are never deleted, they only move through statuses. Cancelled,
// expired and rejected are terminal.
type Booking struct {
	ID          string `db:"id"`
	PoolID      string `db:"pool_id"`
	SubjectID   string `db:"subject_id"`
	RequesterID string `db:"requester_id"`
	Status      string `db:"status"`
	model.Metadata
}

// IsActive reports whether the entry still occupies a seat or a queue position.
func (b *Booking) IsActive() bool {
	return b.Status == StatusConfirmed || b.Status == StatusWaitlisted
}

// IsTerminalStatus reports whether the status permits no further transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCancelled, StatusExpired, StatusRejected:
		return true
	default:
		return false
	}
}
