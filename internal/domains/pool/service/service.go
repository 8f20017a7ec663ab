package service

import (
	"context"
	"encoding/json"
	"fmt"

	"bunk/config"
	"bunk/infras/otel"
	"bunk/infras/s3"
	bookingModel "bunk/internal/domains/booking/model"
	bookingDto "bunk/internal/domains/booking/model/dto"
	bookingRepository "bunk/internal/domains/booking/repository"
	"bunk/internal/domains/pool/model"
	"bunk/internal/domains/pool/model/dto"
	"bunk/internal/domains/pool/repository"
	"bunk/shared"
	"bunk/shared/cache"
	"bunk/shared/constant"
	gDto "bunk/shared/dto"
	"bunk/shared/failure"
	"bunk/shared/timezone"

	"github.com/rs/zerolog/log"
)

const (
	cacheGetPool    = "pool:get"
	cacheGetAllPool = "pool:gets"
	cacheCountPool  = "pool:count"
)

type Pool interface {
	Create(ctx context.Context, req dto.CreatePoolRequest) error
	GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (dto.GetPoolsResponse, error)
	Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (int, error)
	Get(ctx context.Context, id string) (dto.PoolResponse, error)
	ToggleWaitlist(ctx context.Context, req dto.ToggleWaitlistRequest, id string) error
	Archive(ctx context.Context, id string) (dto.ArchivePoolResponse, error)
}

type serviceImpl struct {
	repo        repository.Pool
	bookingRepo bookingRepository.Booking
	cfg         *config.Config
	cache       cache.RedisCache
	otel        otel.Otel
	s3          s3.S3
}

func New(repo repository.Pool, bookingRepo bookingRepository.Booking, cfg *config.Config, cache cache.RedisCache, otel otel.Otel, s3 s3.S3) Pool {
	return &serviceImpl{
		repo:        repo,
		bookingRepo: bookingRepo,
		cfg:         cfg,
		cache:       cache,
		otel:        otel,
		s3:          s3,
	}
}

// withActiveOnly narrows any caller filter to non-deleted pools.
func withActiveOnly(filter gDto.FilterGroup) gDto.FilterGroup {
	active := gDto.Filter{
		Field:    model.FieldDeletedAt,
		Operator: gDto.FilterIsNull,
		Table:    model.TableName,
	}

	if len(filter.Filters) == 0 {
		return gDto.FilterGroup{
			Filters:  []any{active},
			Operator: gDto.FilterGroupOperatorAnd,
		}
	}

	return gDto.FilterGroup{
		Filters:  []any{active, filter},
		Operator: gDto.FilterGroupOperatorAnd,
	}
}

func (s *serviceImpl) Create(ctx context.Context, req dto.CreatePoolRequest) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Create")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	if err = s.repo.Insert(ctx, req.ToModel(user)); err != nil {
		return err
	}

	go func() {
		c := context.WithoutCancel(ctx)

		shared.InvalidateCaches(c, s.cache, cacheGetAllPool)
		shared.InvalidateCaches(c, s.cache, cacheCountPool)
	}()

	return nil
}

func (s *serviceImpl) GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetPoolsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetAll")
	defer scope.End()
	defer scope.TraceIfError(err)

	filter = withActiveOnly(filter)
	cacheKey := shared.BuildCacheKeyWithQuery(cacheGetAllPool, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for pools")

		return res, nil
	}

	total, err := s.Count(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count pools")

		return res, fmt.Errorf("failed to count pools: %w", err)
	}

	models, err := s.repo.GetAll(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get pools")

		return res, fmt.Errorf("failed to get pools: %w", err)
	}

	res.FromModels(models, total, req.Limit)

	if err = s.applyOpenOffers(ctx, res.Pools); err != nil {
		return dto.GetPoolsResponse{}, err
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save pools to cache")
		}
	}()

	return res, nil
}

// applyOpenOffers subtracts promised seats from availability. An open claim
// offer reserves one seat that occupancy does not account for yet.
func (s *serviceImpl) applyOpenOffers(ctx context.Context, pools []dto.PoolResponse) error {
	if len(pools) == 0 {
		return nil
	}

	ids := make([]string, len(pools))
	for i, pool := range pools {
		ids[i] = pool.ID
	}

	offerFilter := gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{
				Field:    bookingModel.FieldPoolID,
				Value:    ids,
				Operator: gDto.FilterOperatorIn,
				Table:    bookingModel.OfferTableName,
			},
			gDto.Filter{
				Field:    bookingModel.FieldStatus,
				Value:    bookingModel.OfferStatusOpen,
				Operator: gDto.FilterOperatorEq,
				Table:    bookingModel.OfferTableName,
			},
		},
		Operator: gDto.FilterGroupOperatorAnd,
	}

	offers, err := s.bookingRepo.GetAllOffers(ctx, gDto.QueryParams{}, offerFilter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get open offers for pools")

		return fmt.Errorf("failed to get open offers: %w", err)
	}

	promised := make(map[string]int, len(offers))
	for _, offer := range offers {
		promised[offer.PoolID]++
	}

	for i := range pools {
		pools[i].Available -= promised[pools[i].ID]
		if pools[i].Available < 0 {
			pools[i].Available = 0
		}
	}

	return nil
}

func (s *serviceImpl) Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res int, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Count")
	defer scope.End()
	defer scope.TraceIfError(err)

	filter = withActiveOnly(filter)
	cacheKey := shared.BuildCacheKeyWithQuery(cacheCountPool, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for pool count")

		return res, nil
	}

	res, err = s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count pools")

		return res, fmt.Errorf("failed to count pools: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save pool count to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.PoolResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Get")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKey(cacheGetPool, id)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for pool")

		return res, nil
	}

	pool, err := s.repo.Get(ctx, repository.FilterActive(id))
	if err != nil {
		log.Error().Err(err).Msg("failed to get pool")

		return res, fmt.Errorf("failed to get pool: %w", err)
	}

	if pool.ID == constant.Empty {
		return res, failure.NotFound("pool not found") // nolint:wrapcheck
	}

	res.FromModel(pool)

	single := []dto.PoolResponse{res}
	if err = s.applyOpenOffers(ctx, single); err != nil {
		return dto.PoolResponse{}, err
	}
	res = single[0]

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save pool to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) ToggleWaitlist(ctx context.Context, req dto.ToggleWaitlistRequest, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".ToggleWaitlist")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	filter := repository.FilterActive(id)

	pool, err := s.repo.Get(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to check pool existence")

		return err
	}

	if pool.ID == constant.Empty {
		log.Error().Msg("pool not found")

		return failure.NotFound("pool not found") // nolint:wrapcheck
	}

	updatedFields := shared.TransformFields(req, user)
	updatedFields[model.FieldAcceptsWaitlist] = *req.AcceptsWaitlist

	if err = s.repo.Update(ctx, updatedFields, filter); err != nil {
		log.Error().Err(err).Msg("failed to update pool waitlist flag")

		return fmt.Errorf("failed to update pool waitlist flag: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Delete(c, shared.BuildCacheKey(cacheGetPool, id)); err != nil {
			log.Error().Err(err).Msg("failed to delete pool cache")
		}

		shared.InvalidateCaches(c, s.cache, cacheGetAllPool)
		shared.InvalidateCaches(c, s.cache, cacheCountPool)
	}()

	return nil
}

// Archive exports the pool's terminal ledger entries to object storage and
// stores the resulting URL on the pool. A previous export is replaced.
func (s *serviceImpl) Archive(ctx context.Context, id string) (res dto.ArchivePoolResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Archive")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	filter := repository.FilterActive(id)

	pool, err := s.repo.Get(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get pool")

		return res, fmt.Errorf("failed to get pool: %w", err)
	}

	if pool.ID == constant.Empty {
		return res, failure.NotFound("pool not found") // nolint:wrapcheck
	}

	entries, err := s.terminalEntries(ctx, id)
	if err != nil {
		return res, err
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal archive payload")

		return res, fmt.Errorf("failed to marshal archive payload: %w", err)
	}

	bucketName := s.cfg.External.S3.BucketName
	fileName := fmt.Sprintf("%s-%d.json", id, timezone.Now().Unix())

	url, err := s.s3.UploadFileBytes(ctx, bucketName, model.EntityName, fileName, constant.ContentTypeJSON, payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to upload archive to S3")

		return res, fmt.Errorf("failed to upload archive: %w", err)
	}

	updatedFields := map[string]any{
		model.FieldArchiveURL:    url,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: user,
	}

	if err = s.repo.Update(ctx, updatedFields, filter); err != nil {
		log.Error().Err(err).Msg("failed to store archive url")

		_ = s.s3.DeleteFile(ctx, bucketName, model.EntityName, fileName)

		return res, fmt.Errorf("failed to store archive url: %w", err)
	}

	// Drop the superseded export once the new one is recorded.
	if pool.ArchiveURL != constant.Empty {
		oldObjectName := s.s3.GetObjectNameFromURL(bucketName, pool.ArchiveURL)
		if oldObjectName != constant.Empty {
			_ = s.s3.DeleteFile(ctx, bucketName, model.EntityName, oldObjectName)
		}
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Delete(c, shared.BuildCacheKey(cacheGetPool, id)); err != nil {
			log.Error().Err(err).Msg("failed to delete pool cache")
		}

		shared.InvalidateCaches(c, s.cache, cacheGetAllPool)
	}()

	res.URL = url

	return res, nil
}

func (s *serviceImpl) terminalEntries(ctx context.Context, poolID string) ([]bookingDto.BookingResponse, error) {
	filter := gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{
				Field:    bookingModel.FieldPoolID,
				Value:    poolID,
				Operator: gDto.FilterOperatorEq,
				Table:    bookingModel.TableName,
			},
			gDto.Filter{
				Field:    bookingModel.FieldStatus,
				Value:    []string{bookingModel.StatusCancelled, bookingModel.StatusExpired, bookingModel.StatusRejected},
				Operator: gDto.FilterOperatorIn,
				Table:    bookingModel.TableName,
			},
		},
		Operator: gDto.FilterGroupOperatorAnd,
	}

	params := gDto.QueryParams{
		SortBy:  constant.FieldCreatedAt,
		SortDir: gDto.SortDirAsc,
	}

	models, err := s.bookingRepo.GetAll(ctx, params, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get terminal booking entries")

		return nil, fmt.Errorf("failed to get terminal booking entries: %w", err)
	}

	entries := make([]bookingDto.BookingResponse, len(models))
	for i, mod := range models {
		entries[i].FromModel(mod)
	}

	return entries, nil
}
