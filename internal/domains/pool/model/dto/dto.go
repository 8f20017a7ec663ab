package dto

import (
	"bunk/internal/domains/pool/model"
	"bunk/shared"
	gDto "bunk/shared/dto"
	gModel "bunk/shared/model"
	"bunk/shared/timezone"

	"github.com/google/uuid"
)

type CreatePoolRequest struct {
	Kind            string `json:"kind"             validate:"required,oneof=camp slot"`
	Name            string `json:"name"             validate:"required,max=100"`
	Capacity        int    `json:"capacity"         validate:"required,min=1"`
	AcceptsWaitlist *bool  `json:"accepts_waitlist" validate:"omitempty"`
}

func (c *CreatePoolRequest) ToModel(user string) model.Pool {
	acceptsWaitlist := true
	if c.AcceptsWaitlist != nil {
		acceptsWaitlist = *c.AcceptsWaitlist
	}

	return model.Pool{
		ID:              uuid.NewString(),
		Kind:            c.Kind,
		Name:            c.Name,
		Capacity:        c.Capacity,
		Occupancy:       0,
		AcceptsWaitlist: acceptsWaitlist,
		Metadata: gModel.Metadata{
			CreatedAt:  timezone.Now(),
			ModifiedAt: timezone.Now(),
			CreatedBy:  user,
			ModifiedBy: user,
		},
	}
}

type ResizePoolRequest struct {
	Capacity int `json:"capacity" validate:"required,min=1"`
}

type ToggleWaitlistRequest struct {
	AcceptsWaitlist *bool `json:"accepts_waitlist" db:"accepts_waitlist" validate:"required"`
}

type PoolResponse struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Name            string `json:"name"`
	Capacity        int    `json:"capacity"`
	Occupancy       int    `json:"occupancy"`
	Available       int    `json:"available"`
	AcceptsWaitlist bool   `json:"accepts_waitlist"`
	ArchiveURL      string `json:"archive_url,omitempty"`
	gDto.Metadata
}

// FromModel fills the response from the pool row. Available starts as the raw
// headroom; callers subtract any open claim offer so a promised seat is never
// advertised twice.
func (r *PoolResponse) FromModel(model model.Pool) {
	r.ID = model.ID
	r.Kind = model.Kind
	r.Name = model.Name
	r.Capacity = model.Capacity
	r.Occupancy = model.Occupancy
	r.Available = model.Capacity - model.Occupancy
	r.AcceptsWaitlist = model.AcceptsWaitlist
	r.ArchiveURL = model.ArchiveURL
	r.Metadata.FromModel(model.Metadata)
}

type GetPoolsResponse struct {
	Pools     []PoolResponse `json:"pools"`
	TotalPage int            `json:"total_page"`
	TotalData int            `json:"total_data"`
}

func (r *GetPoolsResponse) FromModels(models []model.Pool, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Pools = make([]PoolResponse, len(models))
	for i, mod := range models {
		r.Pools[i].FromModel(mod)
	}
}

type ArchivePoolResponse struct {
	URL string `json:"url"`
}
