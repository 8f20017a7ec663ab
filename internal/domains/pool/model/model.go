package model

import (
	"time"

	"bunk/shared/model"
)

const (
	TableName  = "resource_pools"
	EntityName = "pool"

	FieldID              = "id"
	FieldKind            = "kind"
	FieldName            = "name"
	FieldCapacity        = "capacity"
	FieldOccupancy       = "occupancy"
	FieldAcceptsWaitlist = "accepts_waitlist"
	FieldArchiveURL      = "archive_url"
	FieldDeletedAt       = "deleted_at"

	KindCamp = "camp"
	KindSlot = "slot"
)

// Pool is a capacity-constrained bookable resource, either a whole camp or a
// single activity slot within one. Occupancy always equals the number of
// confirmed bookings against the pool.
type Pool struct {
	ID              string     `db:"id"`
	Kind            string     `db:"kind"`
	Name            string     `db:"name"`
	Capacity        int        `db:"capacity"`
	Occupancy       int        `db:"occupancy"`
	AcceptsWaitlist bool       `db:"accepts_waitlist"`
	ArchiveURL      string     `db:"archive_url"`
	DeletedAt       *time.Time `db:"deleted_at"`
	model.Metadata
}
