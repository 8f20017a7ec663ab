package dto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bunk/internal/domains/pool/model"
	"bunk/internal/domains/pool/model/dto"
	gModel "bunk/shared/model"
	"bunk/shared/timezone"
)

func TestCreatePoolRequest_ToModel(t *testing.T) {
	req := dto.CreatePoolRequest{
		Kind:     model.KindCamp,
		Name:     "Summer Camp",
		Capacity: 20,
	}

	pool := req.ToModel("admin-1")

	assert.NotEmpty(t, pool.ID)
	assert.Equal(t, req.Kind, pool.Kind)
	assert.Equal(t, req.Name, pool.Name)
	assert.Equal(t, req.Capacity, pool.Capacity)
	assert.Equal(t, 0, pool.Occupancy)
	assert.True(t, pool.AcceptsWaitlist)
	assert.Equal(t, "admin-1", pool.Metadata.CreatedBy)
}

func TestCreatePoolRequest_ToModelWaitlistDisabled(t *testing.T) {
	disabled := false
	req := dto.CreatePoolRequest{
		Kind:            model.KindSlot,
		Name:            "Morning Slot",
		Capacity:        1,
		AcceptsWaitlist: &disabled,
	}

	pool := req.ToModel("admin-1")

	assert.False(t, pool.AcceptsWaitlist)
}

func TestPoolResponse_FromModel(t *testing.T) {
	now := timezone.Now()

	pool := model.Pool{
		ID:              "pool-1",
		Kind:            model.KindCamp,
		Name:            "Summer Camp",
		Capacity:        20,
		Occupancy:       12,
		AcceptsWaitlist: true,
		ArchiveURL:      "https://bucket.s3.amazonaws.com/pool-1.json",
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  "admin-1",
			ModifiedBy: "admin-1",
		},
	}

	var response dto.PoolResponse
	response.FromModel(pool)

	assert.Equal(t, pool.ID, response.ID)
	assert.Equal(t, pool.Capacity, response.Capacity)
	assert.Equal(t, pool.Occupancy, response.Occupancy)
	assert.Equal(t, 8, response.Available)
	assert.Equal(t, pool.ArchiveURL, response.ArchiveURL)
	assert.True(t, response.AcceptsWaitlist)
}

func TestGetPoolsResponse_FromModels(t *testing.T) {
	pools := []model.Pool{
		{ID: "pool-1", Capacity: 5, Occupancy: 2},
		{ID: "pool-2", Capacity: 3, Occupancy: 3},
	}

	var response dto.GetPoolsResponse
	response.FromModels(pools, 12, 5)

	assert.Equal(t, 12, response.TotalData)
	assert.Equal(t, 3, response.TotalPage)
	assert.Len(t, response.Pools, 2)
	assert.Equal(t, 3, response.Pools[0].Available)
	assert.Equal(t, 0, response.Pools[1].Available)
}
