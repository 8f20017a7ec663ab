package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"bunk/config"
	"bunk/infras/otel/mocks"
	s3Mocks "bunk/infras/s3/mocks"
	bookingMocks "bunk/internal/domains/booking/mocks"
	bookingModel "bunk/internal/domains/booking/model"
	poolMocks "bunk/internal/domains/pool/mocks"
	"bunk/internal/domains/pool/model"
	"bunk/internal/domains/pool/model/dto"
	"bunk/internal/domains/pool/service"
	cacheMocks "bunk/shared/cache/mocks"
	"bunk/shared/constant"
	gDto "bunk/shared/dto"
	gModel "bunk/shared/model"
	"bunk/shared/timezone"
)

func TestPoolService_Create(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := poolMocks.NewMockPool(ctrl)
	mockBookingRepo := bookingMocks.NewMockBooking(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockS3 := s3Mocks.NewMockS3(ctrl)
	mockOtel := mocks.NewOtel()

	cfg := &config.Config{}
	cfg.Cache.TTL = 3600

	svc := service.New(mockRepo, mockBookingRepo, cfg, mockCache, mockOtel, mockS3)

	acceptsWaitlist := false

	tests := []struct {
		name      string
		req       dto.CreatePoolRequest
		setupMock func()
		wantErr   bool
	}{
		{
			name: "successful creation",
			req: dto.CreatePoolRequest{
				Kind:     model.KindCamp,
				Name:     "Summer Camp",
				Capacity: 20,
			},
			setupMock: func() {
				mockRepo.EXPECT().
					Insert(gomock.Any(), gomock.Any()).
					Return(nil)

				mockCache.EXPECT().
					Clear(gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			wantErr: false,
		},
		{
			name: "creation with the waitlist disabled",
			req: dto.CreatePoolRequest{
				Kind:            model.KindSlot,
				Name:            "Archery 10AM",
				Capacity:        8,
				AcceptsWaitlist: &acceptsWaitlist,
			},
			setupMock: func() {
				mockRepo.EXPECT().
					Insert(gomock.Any(), gomock.Any()).
					Return(nil)

				mockCache.EXPECT().
					Clear(gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			wantErr: false,
		},
		{
			name: "repository error",
			req: dto.CreatePoolRequest{
				Kind:     model.KindCamp,
				Name:     "Summer Camp",
				Capacity: 20,
			},
			setupMock: func() {
				mockRepo.EXPECT().
					Insert(gomock.Any(), gomock.Any()).
					Return(errors.New("database error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()

			ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "test-admin-id")
			err := svc.Create(ctx, tt.req)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPoolService_GetAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := poolMocks.NewMockPool(ctrl)
	mockBookingRepo := bookingMocks.NewMockBooking(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockS3 := s3Mocks.NewMockS3(ctrl)
	mockOtel := mocks.NewOtel()

	cfg := &config.Config{}
	cfg.Cache.TTL = 3600

	svc := service.New(mockRepo, mockBookingRepo, cfg, mockCache, mockOtel, mockS3)

	pools := []model.Pool{
		{
			ID:              "pool-1",
			Kind:            model.KindCamp,
			Name:            "Summer Camp",
			Capacity:        5,
			Occupancy:       3,
			AcceptsWaitlist: true,
			Metadata: gModel.Metadata{
				CreatedAt:  timezone.Now(),
				ModifiedAt: timezone.Now(),
				CreatedBy:  "test-admin-id",
				ModifiedBy: "test-admin-id",
			},
		},
		{
			ID:              "pool-2",
			Kind:            model.KindSlot,
			Name:            "Archery 10AM",
			Capacity:        5,
			Occupancy:       3,
			AcceptsWaitlist: true,
		},
	}

	tests := []struct {
		name          string
		params        gDto.QueryParams
		filter        gDto.FilterGroup
		setupMock     func()
		wantErr       bool
		wantAvailable []int
		wantTotalData int
	}{
		{
			name: "open offers are subtracted from availability",
			params: gDto.QueryParams{
				Limit: 10,
				Page:  1,
			},
			filter: gDto.FilterGroup{},
			setupMock: func() {
				mockCache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("cache miss")).
					Times(2)

				mockRepo.EXPECT().
					Count(gomock.Any(), gomock.Any()).
					Return(2, nil)

				mockRepo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(pools, nil)

				mockBookingRepo.EXPECT().
					GetAllOffers(gomock.Any(), gomock.Any(), gomock.Any()).
					Return([]bookingModel.Offer{
						{ID: "offer-1", PoolID: "pool-1", Status: bookingModel.OfferStatusOpen},
					}, nil)

				mockCache.EXPECT().
					Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			wantErr:       false,
			wantAvailable: []int{1, 2},
			wantTotalData: 2,
		},
		{
			name: "cache hit",
			params: gDto.QueryParams{
				Limit: 10,
				Page:  1,
			},
			filter: gDto.FilterGroup{},
			setupMock: func() {
				mockCache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil)
			},
			wantErr: false,
		},
		{
			name: "count error",
			params: gDto.QueryParams{
				Limit: 10,
				Page:  1,
			},
			filter: gDto.FilterGroup{},
			setupMock: func() {
				mockCache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("cache miss")).
					Times(2)

				mockRepo.EXPECT().
					Count(gomock.Any(), gomock.Any()).
					Return(0, errors.New("count error"))
			},
			wantErr: true,
		},
		{
			name: "open offer lookup error",
			params: gDto.QueryParams{
				Limit: 10,
				Page:  1,
			},
			filter: gDto.FilterGroup{},
			setupMock: func() {
				mockCache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("cache miss")).
					Times(2)

				mockRepo.EXPECT().
					Count(gomock.Any(), gomock.Any()).
					Return(2, nil)

				mockRepo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(pools, nil)

				mockBookingRepo.EXPECT().
					GetAllOffers(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil, errors.New("database error"))

				mockCache.EXPECT().
					Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()

			ctx := context.Background()
			result, err := svc.GetAll(ctx, tt.params, tt.filter)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				if tt.wantTotalData > 0 {
					assert.Equal(t, tt.wantTotalData, result.TotalData)
					for i, available := range tt.wantAvailable {
						assert.Equal(t, available, result.Pools[i].Available)
					}
				}
			}
		})
	}
}

func TestPoolService_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := poolMocks.NewMockPool(ctrl)
	mockBookingRepo := bookingMocks.NewMockBooking(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockS3 := s3Mocks.NewMockS3(ctrl)
	mockOtel := mocks.NewOtel()

	cfg := &config.Config{}
	cfg.Cache.TTL = 3600

	svc := service.New(mockRepo, mockBookingRepo, cfg, mockCache, mockOtel, mockS3)

	fullPool := model.Pool{
		ID:              "pool-1",
		Kind:            model.KindCamp,
		Name:            "Summer Camp",
		Capacity:        5,
		Occupancy:       5,
		AcceptsWaitlist: true,
	}

	tests := []struct {
		name          string
		id            string
		setupMock     func()
		wantErr       bool
		wantAvailable int
		wantID        string
	}{
		{
			name: "cache hit",
			id:   "pool-1",
			setupMock: func() {
				mockCache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil)
			},
			wantErr: false,
		},
		{
			name: "availability never drops below zero",
			id:   "pool-1",
			setupMock: func() {
				mockCache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("cache miss"))

				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(fullPool, nil)

				mockBookingRepo.EXPECT().
					GetAllOffers(gomock.Any(), gomock.Any(), gomock.Any()).
					Return([]bookingModel.Offer{
						{ID: "offer-1", PoolID: "pool-1", Status: bookingModel.OfferStatusOpen},
					}, nil)

				mockCache.EXPECT().
					Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			wantErr:       false,
			wantID:        "pool-1",
			wantAvailable: 0,
		},
		{
			name: "pool not found",
			id:   "missing-pool",
			setupMock: func() {
				mockCache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("cache miss"))

				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(model.Pool{}, nil)
			},
			wantErr: true,
		},
		{
			name: "repository error",
			id:   "pool-1",
			setupMock: func() {
				mockCache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("cache miss"))

				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(model.Pool{}, errors.New("database error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()

			ctx := context.Background()
			result, err := svc.Get(ctx, tt.id)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				if tt.wantID != "" {
					assert.Equal(t, tt.wantID, result.ID)
					assert.Equal(t, tt.wantAvailable, result.Available)
				}
			}
		})
	}
}

func TestPoolService_ToggleWaitlist(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := poolMocks.NewMockPool(ctrl)
	mockBookingRepo := bookingMocks.NewMockBooking(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockS3 := s3Mocks.NewMockS3(ctrl)
	mockOtel := mocks.NewOtel()

	cfg := &config.Config{}
	cfg.Cache.TTL = 3600

	svc := service.New(mockRepo, mockBookingRepo, cfg, mockCache, mockOtel, mockS3)

	disabled := false

	tests := []struct {
		name      string
		req       dto.ToggleWaitlistRequest
		id        string
		setupMock func()
		wantErr   bool
	}{
		{
			name: "successful toggle",
			req:  dto.ToggleWaitlistRequest{AcceptsWaitlist: &disabled},
			id:   "pool-1",
			setupMock: func() {
				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(model.Pool{ID: "pool-1", AcceptsWaitlist: true}, nil)

				mockRepo.EXPECT().
					Update(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil)

				mockCache.EXPECT().
					Delete(gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()

				mockCache.EXPECT().
					Clear(gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			wantErr: false,
		},
		{
			name: "pool not found",
			req:  dto.ToggleWaitlistRequest{AcceptsWaitlist: &disabled},
			id:   "missing-pool",
			setupMock: func() {
				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(model.Pool{}, nil)
			},
			wantErr: true,
		},
		{
			name: "update error",
			req:  dto.ToggleWaitlistRequest{AcceptsWaitlist: &disabled},
			id:   "pool-1",
			setupMock: func() {
				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(model.Pool{ID: "pool-1", AcceptsWaitlist: true}, nil)

				mockRepo.EXPECT().
					Update(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("update error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()

			ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "test-admin-id")
			err := svc.ToggleWaitlist(ctx, tt.req, tt.id)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPoolService_Archive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := poolMocks.NewMockPool(ctrl)
	mockBookingRepo := bookingMocks.NewMockBooking(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockS3 := s3Mocks.NewMockS3(ctrl)
	mockOtel := mocks.NewOtel()

	cfg := &config.Config{}
	cfg.Cache.TTL = 3600
	cfg.External.S3.BucketName = "bunk-archives"

	svc := service.New(mockRepo, mockBookingRepo, cfg, mockCache, mockOtel, mockS3)

	archivedPool := model.Pool{
		ID:         "pool-1",
		Kind:       model.KindCamp,
		Name:       "Summer Camp",
		Capacity:   5,
		Occupancy:  2,
		ArchiveURL: "https://bunk-archives.s3.amazonaws.com/pool/pool-1-100.json",
	}

	freshPool := archivedPool
	freshPool.ArchiveURL = ""

	terminal := []bookingModel.Booking{
		{ID: "booking-1", PoolID: "pool-1", SubjectID: "camper-1", Status: bookingModel.StatusCancelled},
		{ID: "booking-2", PoolID: "pool-1", SubjectID: "camper-2", Status: bookingModel.StatusExpired},
	}

	tests := []struct {
		name      string
		id        string
		setupMock func()
		wantErr   bool
		wantURL   string
	}{
		{
			name: "exports terminal entries and stores the url",
			id:   "pool-1",
			setupMock: func() {
				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(freshPool, nil)

				mockBookingRepo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(terminal, nil)

				mockS3.EXPECT().
					UploadFileBytes(gomock.Any(), "bunk-archives", gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return("https://bunk-archives.s3.amazonaws.com/pool/pool-1-200.json", nil)

				mockRepo.EXPECT().
					Update(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil)

				mockCache.EXPECT().
					Delete(gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()

				mockCache.EXPECT().
					Clear(gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			wantErr: false,
			wantURL: "https://bunk-archives.s3.amazonaws.com/pool/pool-1-200.json",
		},
		{
			name: "a previous export is replaced",
			id:   "pool-1",
			setupMock: func() {
				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(archivedPool, nil)

				mockBookingRepo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(terminal, nil)

				mockS3.EXPECT().
					UploadFileBytes(gomock.Any(), "bunk-archives", gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return("https://bunk-archives.s3.amazonaws.com/pool/pool-1-200.json", nil)

				mockRepo.EXPECT().
					Update(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil)

				mockS3.EXPECT().
					GetObjectNameFromURL("bunk-archives", archivedPool.ArchiveURL).
					Return("pool-1-100.json")

				mockS3.EXPECT().
					DeleteFile(gomock.Any(), "bunk-archives", gomock.Any(), "pool-1-100.json").
					Return(nil)

				mockCache.EXPECT().
					Delete(gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()

				mockCache.EXPECT().
					Clear(gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			wantErr: false,
			wantURL: "https://bunk-archives.s3.amazonaws.com/pool/pool-1-200.json",
		},
		{
			name: "a failed url write removes the fresh upload",
			id:   "pool-1",
			setupMock: func() {
				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(freshPool, nil)

				mockBookingRepo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(terminal, nil)

				mockS3.EXPECT().
					UploadFileBytes(gomock.Any(), "bunk-archives", gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return("https://bunk-archives.s3.amazonaws.com/pool/pool-1-200.json", nil)

				mockRepo.EXPECT().
					Update(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("update error"))

				mockS3.EXPECT().
					DeleteFile(gomock.Any(), "bunk-archives", gomock.Any(), gomock.Any()).
					Return(nil)
			},
			wantErr: true,
		},
		{
			name: "upload error",
			id:   "pool-1",
			setupMock: func() {
				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(freshPool, nil)

				mockBookingRepo.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(terminal, nil)

				mockS3.EXPECT().
					UploadFileBytes(gomock.Any(), "bunk-archives", gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return("", errors.New("upload error"))
			},
			wantErr: true,
		},
		{
			name: "pool not found",
			id:   "missing-pool",
			setupMock: func() {
				mockRepo.EXPECT().
					Get(gomock.Any(), gomock.Any()).
					Return(model.Pool{}, nil)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()

			ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "test-admin-id")
			result, err := svc.Archive(ctx, tt.id)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantURL, result.URL)
			}
		})
	}
}
