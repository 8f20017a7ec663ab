package dto

import (
	"bunk/internal/domains/booking/model"
	"bunk/shared"
	"bunk/shared/constant"
	gDto "bunk/shared/dto"
	gModel "bunk/shared/model"
	"bunk/shared/timezone"

	"github.com/google/uuid"
)

type ReserveRequest struct {
	PoolID    string `json:"pool_id"    validate:"required,uuid"`
	SubjectID string `json:"subject_id" validate:"required,max=100"`
}

// ToModel builds the ledger entry. The engine decides the status once it holds
// the pool lock, so it is passed in rather than defaulted here.
func (r *ReserveRequest) ToModel(requester, status string) model.Booking {
	return model.Booking{
		ID:          uuid.NewString(),
		PoolID:      r.PoolID,
		SubjectID:   r.SubjectID,
		RequesterID: requester,
		Status:      status,
		Metadata: gModel.Metadata{
			CreatedAt:  timezone.Now(),
			ModifiedAt: timezone.Now(),
			CreatedBy:  requester,
			ModifiedBy: requester,
		},
	}
}

type BookingResponse struct {
	ID          string `json:"id"`
	PoolID      string `json:"pool_id"`
	SubjectID   string `json:"subject_id"`
	RequesterID string `json:"requester_id"`
	Status      string `json:"status"`
	Position    *int   `json:"position,omitempty"`
	gDto.Metadata
}

func (r *BookingResponse) FromModel(model model.Booking) {
	r.ID = model.ID
	r.PoolID = model.PoolID
	r.SubjectID = model.SubjectID
	r.RequesterID = model.RequesterID
	r.Status = model.Status
	r.Metadata.FromModel(model.Metadata)
}

type GetBookingsResponse struct {
	Bookings  []BookingResponse `json:"bookings"`
	TotalPage int               `json:"total_page"`
	TotalData int               `json:"total_data"`
}

func (r *GetBookingsResponse) FromModels(models []model.Booking, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Bookings = make([]BookingResponse, len(models))
	for i, mod := range models {
		r.Bookings[i].FromModel(mod)
	}
}

type WaitlistEntryResponse struct {
	Position int `json:"position"`
	BookingResponse
}

type GetWaitlistResponse struct {
	Entries   []WaitlistEntryResponse `json:"entries"`
	TotalPage int                     `json:"total_page"`
	TotalData int                     `json:"total_data"`
}

// FromModels assigns queue positions from the page offset, so page two of a
// waitlist keeps counting where page one stopped.
func (r *GetWaitlistResponse) FromModels(models []model.Booking, totalData, page, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	offset := 0
	if page > 0 && limit > 0 {
		offset = (page - 1) * limit
	}

	r.Entries = make([]WaitlistEntryResponse, len(models))
	for i, mod := range models {
		r.Entries[i].Position = offset + i + 1
		r.Entries[i].FromModel(mod)
	}
}

type OfferResponse struct {
	ID             string  `json:"id"`
	PoolID         string  `json:"pool_id"`
	BookingEntryID string  `json:"booking_entry_id"`
	OfferedAt      string  `json:"offered_at"`
	ExpiresAt      string  `json:"expires_at"`
	Status         string  `json:"status"`
	ResolvedAt     *string `json:"resolved_at,omitempty"`
}

func (r *OfferResponse) FromModel(model model.Offer) {
	r.ID = model.ID
	r.PoolID = model.PoolID
	r.BookingEntryID = model.BookingEntryID
	r.OfferedAt = model.OfferedAt.Format(constant.DateFormat)
	r.ExpiresAt = model.ExpiresAt.Format(constant.DateFormat)
	r.Status = model.Status

	if model.ResolvedAt != nil {
		resolved := model.ResolvedAt.Format(constant.DateFormat)
		r.ResolvedAt = &resolved
	}
}
