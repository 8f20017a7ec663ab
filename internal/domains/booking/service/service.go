package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bunk/config"
	"bunk/infras/otel"
	"bunk/internal/domains/booking/model"
	"bunk/internal/domains/booking/model/dto"
	"bunk/internal/domains/booking/repository"
	poolModel "bunk/internal/domains/pool/model"
	poolDto "bunk/internal/domains/pool/model/dto"
	poolRepository "bunk/internal/domains/pool/repository"
	"bunk/internal/notifier"
	"bunk/shared"
	"bunk/shared/cache"
	"bunk/shared/constant"
	gDto "bunk/shared/dto"
	"bunk/shared/failure"
	"bunk/shared/keyedmutex"
	gModel "bunk/shared/model"
	"bunk/shared/timezone"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const (
	cacheGetBooking    = "booking:get"
	cacheGetAllBooking = "booking:gets"
	cacheCountBooking  = "booking:count"
	cacheGetWaitlist   = "booking:waitlist"
	cacheGetOffer      = "booking:offer"
	cacheGetOpenOffer  = "booking:open-offer"

	// every engine operation moves availability, so the pool read caches
	// owned by the pool service are invalidated here as well
	cachePoolGet    = "pool:get"
	cachePoolGetAll = "pool:gets"
	cachePoolCount  = "pool:count"

	systemActor = "system"
)

type Booking interface {
	Reserve(ctx context.Context, req dto.ReserveRequest) (dto.BookingResponse, error)
	Cancel(ctx context.Context, id string) error
	Claim(ctx context.Context, offerID string) (dto.BookingResponse, error)
	GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (dto.GetBookingsResponse, error)
	Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (int, error)
	Get(ctx context.Context, id string) (dto.BookingResponse, error)
	GetWaitlist(ctx context.Context, poolID string, req gDto.QueryParams) (dto.GetWaitlistResponse, error)
	GetOpenOffer(ctx context.Context, poolID string) (dto.OfferResponse, error)
	GetOfferByID(ctx context.Context, id string) (dto.OfferResponse, error)
	ResizePool(ctx context.Context, req poolDto.ResizePoolRequest, poolID string) error
	DeletePool(ctx context.Context, poolID string) error
	SweepExpiredOffers(ctx context.Context) (int, error)
}

type serviceImpl struct {
	repo     repository.Booking
	poolRepo poolRepository.Pool
	cfg      *config.Config
	cache    cache.RedisCache
	otel     otel.Otel
	notifier notifier.Notifier
	locks    *keyedmutex.KeyedMutex
}

func New(repo repository.Booking, poolRepo poolRepository.Pool, cfg *config.Config, cache cache.RedisCache, otel otel.Otel, notifier notifier.Notifier, locks *keyedmutex.KeyedMutex) Booking {
	return &serviceImpl{
		repo:     repo,
		poolRepo: poolRepo,
		cfg:      cfg,
		cache:    cache,
		otel:     otel,
		notifier: notifier,
		locks:    locks,
	}
}

func filterWaitlist(poolID string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{
				Field:    model.FieldPoolID,
				Value:    poolID,
				Operator: gDto.FilterOperatorEq,
				Table:    model.TableName,
			},
			gDto.Filter{
				Field:    model.FieldStatus,
				Value:    model.StatusWaitlisted,
				Operator: gDto.FilterOperatorEq,
				Table:    model.TableName,
			},
		},
		Operator: gDto.FilterGroupOperatorAnd,
	}
}

func filterOpenOffer(poolID string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{
				Field:    model.FieldPoolID,
				Value:    poolID,
				Operator: gDto.FilterOperatorEq,
				Table:    model.OfferTableName,
			},
			gDto.Filter{
				Field:    model.FieldStatus,
				Value:    model.OfferStatusOpen,
				Operator: gDto.FilterOperatorEq,
				Table:    model.OfferTableName,
			},
		},
		Operator: gDto.FilterGroupOperatorAnd,
	}
}

func canManageEntry(entry model.Booking, user, role string) bool {
	if role == constant.RoleAdmin || role == constant.RoleSuperAdmin {
		return true
	}

	return entry.RequesterID == user
}

// Reserve books a seat for a subject. Under the pool lock the seat count
// decides the outcome: a free seat confirms immediately, a full pool with the
// waitlist enabled queues the entry, otherwise the attempt is recorded as
// rejected. Seats promised to an open claim offer count as taken; a lapsed
// offer is expired on the spot before seats are counted.
func (s *serviceImpl) Reserve(ctx context.Context, req dto.ReserveRequest) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Reserve")
	defer scope.End()
	defer scope.TraceIfError(err)

	requester, _ := ctx.Value(constant.ContextKeyUserID).(string)

	var entry model.Booking

	err = s.runPoolTx(ctx, req.PoolID, func(ctx context.Context, sqltx *sqlx.Tx) (txOutcome, error) {
		var out txOutcome

		pool, err := s.poolRepo.GetForUpdateTx(ctx, sqltx, req.PoolID)
		if err != nil {
			return out, err
		}

		if pool.ID == constant.Empty {
			return out, failure.NotFound("pool not found") // nolint:wrapcheck
		}

		exist, err := s.repo.ExistActiveTx(ctx, sqltx, pool.ID, req.SubjectID)
		if err != nil {
			return out, err
		}

		if exist {
			return out, failure.DuplicateBookingError // nolint:wrapcheck
		}

		openOffer, err := s.openOfferAfterLapseTx(ctx, sqltx, pool, &out)
		if err != nil {
			return out, err
		}

		promised := 0
		if openOffer.ID != constant.Empty {
			promised = 1
		}

		entry = req.ToModel(requester, model.StatusWaitlisted)

		switch {
		case pool.Occupancy+promised < pool.Capacity:
			entry.Status = model.StatusConfirmed

			if err := s.insertEntryTx(ctx, sqltx, entry); err != nil {
				return out, err
			}

			pool.Occupancy++
			if err := s.writeOccupancyTx(ctx, sqltx, pool, requester); err != nil {
				return out, err
			}

			out.events = append(out.events, notifier.BookingEvent(notifier.EventBookingConfirmed, entry))
		case pool.AcceptsWaitlist:
			if err := s.insertEntryTx(ctx, sqltx, entry); err != nil {
				return out, err
			}

			out.events = append(out.events, notifier.BookingEvent(notifier.EventBookingWaitlisted, entry))
		default:
			entry.Status = model.StatusRejected

			if err := s.insertEntryTx(ctx, sqltx, entry); err != nil {
				return out, err
			}

			out.events = append(out.events, notifier.BookingEvent(notifier.EventBookingRejected, entry))
			out.opErr = failure.CapacityExceededError
		}

		return out, nil
	})
	if err != nil {
		return res, err
	}

	res.FromModel(entry)

	if entry.Status == model.StatusWaitlisted {
		s.attachPosition(ctx, entry, &res)
	}

	return res, nil
}

// Cancel resolves an active entry. A confirmed seat is released and offered to
// the waitlist head; a waitlisted entry that held the open offer releases the
// offer to the next in line.
func (s *serviceImpl) Cancel(ctx context.Context, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Cancel")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	role, _ := ctx.Value(constant.ContextKeyUserRole).(string)

	entry, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to get booking entry")

		return fmt.Errorf("failed to get booking entry: %w", err)
	}

	if entry.ID == constant.Empty {
		return failure.NotFound("booking not found") // nolint:wrapcheck
	}

	if !canManageEntry(entry, user, role) {
		return failure.ForbiddenError // nolint:wrapcheck
	}

	return s.runPoolTx(ctx, entry.PoolID, func(ctx context.Context, sqltx *sqlx.Tx) (txOutcome, error) {
		var out txOutcome

		pool, err := s.poolRepo.GetForUpdateTx(ctx, sqltx, entry.PoolID)
		if err != nil {
			return out, err
		}

		if pool.ID == constant.Empty {
			return out, failure.NotFound("pool not found") // nolint:wrapcheck
		}

		current, err := s.repo.GetTx(ctx, sqltx, id)
		if err != nil {
			return out, err
		}

		if current.ID == constant.Empty {
			return out, failure.NotFound("booking not found") // nolint:wrapcheck
		}

		if !current.IsActive() {
			return out, failure.Conflict("booking already resolved") // nolint:wrapcheck
		}

		previousStatus := current.Status

		if err := s.setEntryStatusTx(ctx, sqltx, current.ID, model.StatusCancelled, user); err != nil {
			return out, err
		}

		current.Status = model.StatusCancelled
		out.events = append(out.events, notifier.BookingEvent(notifier.EventBookingCancelled, current))

		switch previousStatus {
		case model.StatusConfirmed:
			pool.Occupancy--
			if err := s.writeOccupancyTx(ctx, sqltx, pool, user); err != nil {
				return out, err
			}

			if err := s.promoteNextTx(ctx, sqltx, pool, &out, user); err != nil {
				return out, err
			}
		case model.StatusWaitlisted:
			openOffer, err := s.repo.GetOpenOfferTx(ctx, sqltx, pool.ID)
			if err != nil {
				return out, err
			}

			if openOffer.ID != constant.Empty && openOffer.BookingEntryID == current.ID {
				if err := s.resolveOfferTx(ctx, sqltx, openOffer.ID, model.OfferStatusExpired, user); err != nil {
					return out, err
				}

				out.events = append(out.events, notifier.OfferEvent(notifier.EventOfferExpired, openOffer, current))

				if err := s.promoteNextTx(ctx, sqltx, pool, &out, user); err != nil {
					return out, err
				}
			}
		}

		return out, nil
	})
}

// Claim converts an open offer into a confirmed seat. An offer found past its
// window is expired on the spot instead of waiting for the sweeper. If the
// pool shrank after the offer was made the offer dies but the entry keeps its
// place in the queue.
func (s *serviceImpl) Claim(ctx context.Context, offerID string) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Claim")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	role, _ := ctx.Value(constant.ContextKeyUserRole).(string)

	offer, err := s.repo.GetOffer(ctx, shared.FilterByID(offerID, model.FieldID, model.OfferTableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to get claim offer")

		return res, fmt.Errorf("failed to get claim offer: %w", err)
	}

	if offer.ID == constant.Empty {
		return res, failure.NotFound("offer not found") // nolint:wrapcheck
	}

	holder, err := s.repo.Get(ctx, shared.FilterByID(offer.BookingEntryID, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to get offer holder entry")

		return res, fmt.Errorf("failed to get offer holder entry: %w", err)
	}

	if !canManageEntry(holder, user, role) {
		return res, failure.ForbiddenError // nolint:wrapcheck
	}

	var claimed model.Booking

	err = s.runPoolTx(ctx, offer.PoolID, func(ctx context.Context, sqltx *sqlx.Tx) (txOutcome, error) {
		var out txOutcome

		pool, err := s.poolRepo.GetForUpdateTx(ctx, sqltx, offer.PoolID)
		if err != nil {
			return out, err
		}

		if pool.ID == constant.Empty {
			return out, failure.NotFound("pool not found") // nolint:wrapcheck
		}

		current, err := s.repo.GetOfferTx(ctx, sqltx, offerID)
		if err != nil {
			return out, err
		}

		if current.ID == constant.Empty {
			return out, failure.NotFound("offer not found") // nolint:wrapcheck
		}

		if !current.IsOpen() {
			return out, failure.OfferAlreadyResolvedError // nolint:wrapcheck
		}

		entry, err := s.repo.GetTx(ctx, sqltx, current.BookingEntryID)
		if err != nil {
			return out, err
		}

		if !timezone.Now().Before(current.ExpiresAt) {
			if err := s.expireOfferTx(ctx, sqltx, pool, current, entry, &out, user); err != nil {
				return out, err
			}

			out.opErr = failure.OfferExpiredError

			return out, nil
		}

		if pool.Occupancy >= pool.Capacity {
			// capacity shrank under the offer; the entry keeps its queue spot
			if err := s.resolveOfferTx(ctx, sqltx, current.ID, model.OfferStatusExpired, user); err != nil {
				return out, err
			}

			out.events = append(out.events, notifier.OfferEvent(notifier.EventOfferExpired, current, entry))
			out.opErr = failure.CapacityExceededError

			return out, nil
		}

		if err := s.setEntryStatusTx(ctx, sqltx, entry.ID, model.StatusConfirmed, user); err != nil {
			return out, err
		}

		entry.Status = model.StatusConfirmed

		if err := s.resolveOfferTx(ctx, sqltx, current.ID, model.OfferStatusClaimed, user); err != nil {
			return out, err
		}

		pool.Occupancy++
		if err := s.writeOccupancyTx(ctx, sqltx, pool, user); err != nil {
			return out, err
		}

		out.events = append(out.events, notifier.OfferEvent(notifier.EventSpotClaimed, current, entry))

		if err := s.promoteNextTx(ctx, sqltx, pool, &out, user); err != nil {
			return out, err
		}

		claimed = entry

		return out, nil
	})
	if err != nil {
		return res, err
	}

	res.FromModel(claimed)

	return res, nil
}

func (s *serviceImpl) GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetBookingsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetAll")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKeyWithQuery(cacheGetAllBooking, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for bookings")

		return res, nil
	}

	total, err := s.Count(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count bookings")

		return res, fmt.Errorf("failed to count bookings: %w", err)
	}

	models, err := s.repo.GetAll(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get bookings")

		return res, fmt.Errorf("failed to get bookings: %w", err)
	}

	res.FromModels(models, total, req.Limit)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save bookings to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res int, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Count")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKeyWithQuery(cacheCountBooking, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for booking count")

		return res, nil
	}

	res, err = s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count bookings")

		return res, fmt.Errorf("failed to count bookings: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save booking count to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Get")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKey(cacheGetBooking, id)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for booking")

		return res, nil
	}

	entry, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to get booking entry")

		return res, fmt.Errorf("failed to get booking entry: %w", err)
	}

	if entry.ID == constant.Empty {
		return res, failure.NotFound("booking not found") // nolint:wrapcheck
	}

	res.FromModel(entry)

	if entry.Status == model.StatusWaitlisted {
		s.attachPosition(ctx, entry, &res)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save booking to cache")
		}
	}()

	return res, nil
}

// GetWaitlist returns the pool's queue in promotion order with one-based
// positions.
func (s *serviceImpl) GetWaitlist(ctx context.Context, poolID string, req gDto.QueryParams) (res dto.GetWaitlistResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetWaitlist")
	defer scope.End()
	defer scope.TraceIfError(err)

	filter := filterWaitlist(poolID)
	cacheKey := shared.BuildCacheKeyWithQuery(cacheGetWaitlist, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for waitlist")

		return res, nil
	}

	exist, err := s.poolRepo.Exist(ctx, poolRepository.FilterActive(poolID))
	if err != nil {
		log.Error().Err(err).Msg("failed to check pool existence")

		return res, fmt.Errorf("failed to check pool existence: %w", err)
	}

	if !exist {
		return res, failure.NotFound("pool not found") // nolint:wrapcheck
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count waitlist entries")

		return res, fmt.Errorf("failed to count waitlist entries: %w", err)
	}

	offset := 0
	if req.Page > 0 && req.Limit > 0 {
		offset = (req.Page - 1) * req.Limit
	}

	models, err := s.repo.GetWaitlistPage(ctx, poolID, req.Limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to get waitlist page")

		return res, fmt.Errorf("failed to get waitlist page: %w", err)
	}

	res.FromModels(models, total, req.Page, req.Limit)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save waitlist to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) GetOpenOffer(ctx context.Context, poolID string) (res dto.OfferResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetOpenOffer")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKey(cacheGetOpenOffer, poolID)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for open offer")

		return res, nil
	}

	exist, err := s.poolRepo.Exist(ctx, poolRepository.FilterActive(poolID))
	if err != nil {
		log.Error().Err(err).Msg("failed to check pool existence")

		return res, fmt.Errorf("failed to check pool existence: %w", err)
	}

	if !exist {
		return res, failure.NotFound("pool not found") // nolint:wrapcheck
	}

	offer, err := s.repo.GetOffer(ctx, filterOpenOffer(poolID))
	if err != nil {
		log.Error().Err(err).Msg("failed to get open offer")

		return res, fmt.Errorf("failed to get open offer: %w", err)
	}

	if offer.ID == constant.Empty {
		return res, failure.NotFound("no open offer for this pool") // nolint:wrapcheck
	}

	res.FromModel(offer)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save open offer to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) GetOfferByID(ctx context.Context, id string) (res dto.OfferResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetOfferByID")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKey(cacheGetOffer, id)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for offer")

		return res, nil
	}

	offer, err := s.repo.GetOffer(ctx, shared.FilterByID(id, model.FieldID, model.OfferTableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to get offer")

		return res, fmt.Errorf("failed to get offer: %w", err)
	}

	if offer.ID == constant.Empty {
		return res, failure.NotFound("offer not found") // nolint:wrapcheck
	}

	res.FromModel(offer)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save offer to cache")
		}
	}()

	return res, nil
}

// ResizePool changes capacity under the pool lock. Shrinking below current
// occupancy is refused; growing may hand the waitlist head a fresh offer.
func (s *serviceImpl) ResizePool(ctx context.Context, req poolDto.ResizePoolRequest, poolID string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".ResizePool")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	return s.runPoolTx(ctx, poolID, func(ctx context.Context, sqltx *sqlx.Tx) (txOutcome, error) {
		var out txOutcome

		pool, err := s.poolRepo.GetForUpdateTx(ctx, sqltx, poolID)
		if err != nil {
			return out, err
		}

		if pool.ID == constant.Empty {
			return out, failure.NotFound("pool not found") // nolint:wrapcheck
		}

		if req.Capacity < pool.Occupancy {
			return out, failure.InvalidCapacityError // nolint:wrapcheck
		}

		updatedFields := map[string]any{
			poolModel.FieldCapacity:  req.Capacity,
			constant.FieldModifiedAt: timezone.Now(),
			constant.FieldModifiedBy: user,
		}

		if err := s.poolRepo.UpdateTx(ctx, sqltx, updatedFields, shared.FilterByID(pool.ID, poolModel.FieldID, poolModel.TableName)); err != nil {
			return out, err
		}

		if req.Capacity > pool.Capacity {
			pool.Capacity = req.Capacity

			if err := s.promoteNextTx(ctx, sqltx, pool, &out, user); err != nil {
				return out, err
			}
		}

		return out, nil
	})
}

// DeletePool soft-deletes a pool and resolves everything attached to it: the
// open offer expires, active entries cancel, occupancy drops to zero. The
// ledger rows survive for auditing.
func (s *serviceImpl) DeletePool(ctx context.Context, poolID string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".DeletePool")
	defer scope.End()
	defer scope.TraceIfError(err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	return s.runPoolTx(ctx, poolID, func(ctx context.Context, sqltx *sqlx.Tx) (txOutcome, error) {
		var out txOutcome

		pool, err := s.poolRepo.GetForUpdateTx(ctx, sqltx, poolID)
		if err != nil {
			return out, err
		}

		if pool.ID == constant.Empty {
			return out, failure.NotFound("pool not found") // nolint:wrapcheck
		}

		openOffer, err := s.repo.GetOpenOfferTx(ctx, sqltx, pool.ID)
		if err != nil {
			return out, err
		}

		if openOffer.ID != constant.Empty {
			holder, err := s.repo.GetTx(ctx, sqltx, openOffer.BookingEntryID)
			if err != nil {
				return out, err
			}

			if err := s.resolveOfferTx(ctx, sqltx, openOffer.ID, model.OfferStatusExpired, user); err != nil {
				return out, err
			}

			out.events = append(out.events, notifier.OfferEvent(notifier.EventOfferExpired, openOffer, holder))
		}

		active, err := s.repo.GetAllActiveTx(ctx, sqltx, pool.ID)
		if err != nil {
			return out, err
		}

		if len(active) > 0 {
			cancelFields := map[string]any{
				model.FieldStatus:        model.StatusCancelled,
				constant.FieldModifiedAt: timezone.Now(),
				constant.FieldModifiedBy: user,
			}

			activeFilter := gDto.FilterGroup{
				Filters: []any{
					gDto.Filter{
						Field:    model.FieldPoolID,
						Value:    pool.ID,
						Operator: gDto.FilterOperatorEq,
						Table:    model.TableName,
					},
					gDto.Filter{
						ArgName:  "statuses",
						Field:    model.FieldStatus,
						Value:    []string{model.StatusConfirmed, model.StatusWaitlisted},
						Operator: gDto.FilterOperatorIn,
						Table:    model.TableName,
					},
				},
				Operator: gDto.FilterGroupOperatorAnd,
			}

			if err := s.repo.UpdateTx(ctx, sqltx, cancelFields, activeFilter); err != nil {
				return out, err
			}

			for _, entry := range active {
				entry.Status = model.StatusCancelled
				out.events = append(out.events, notifier.BookingEvent(notifier.EventBookingCancelled, entry))
			}
		}

		now := timezone.Now()
		deleteFields := map[string]any{
			poolModel.FieldDeletedAt: now,
			poolModel.FieldOccupancy: 0,
			constant.FieldModifiedAt: now,
			constant.FieldModifiedBy: user,
		}

		if err := s.poolRepo.UpdateTx(ctx, sqltx, deleteFields, shared.FilterByID(pool.ID, poolModel.FieldID, poolModel.TableName)); err != nil {
			return out, err
		}

		return out, nil
	})
}

// SweepExpiredOffers expires every open offer past its window and promotes the
// next entry in each affected pool. Pools are processed one at a time under
// their own lock; a failure on one pool does not stop the rest.
func (s *serviceImpl) SweepExpiredOffers(ctx context.Context) (swept int, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".SweepExpiredOffers")
	defer scope.End()
	defer scope.TraceIfError(err)

	staleFilter := gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{
				Field:    model.FieldStatus,
				Value:    model.OfferStatusOpen,
				Operator: gDto.FilterOperatorEq,
				Table:    model.OfferTableName,
			},
			gDto.Filter{
				ArgName:  "expires_before",
				Field:    model.FieldExpiresAt,
				Value:    timezone.Now(),
				Operator: gDto.FilterOperatorLessEq,
				Table:    model.OfferTableName,
			},
		},
		Operator: gDto.FilterGroupOperatorAnd,
	}

	stale, err := s.repo.GetAllOffers(ctx, gDto.QueryParams{}, staleFilter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get stale offers")

		return 0, fmt.Errorf("failed to get stale offers: %w", err)
	}

	for _, offer := range stale {
		if err := s.expireStaleOffer(ctx, offer); err != nil {
			log.Error().Err(err).Str("offer", offer.ID).Str("pool", offer.PoolID).Msg("failed to expire stale offer")

			continue
		}

		swept++
	}

	return swept, nil
}

func (s *serviceImpl) expireStaleOffer(ctx context.Context, offer model.Offer) error {
	return s.runPoolTx(ctx, offer.PoolID, func(ctx context.Context, sqltx *sqlx.Tx) (txOutcome, error) {
		var out txOutcome

		pool, err := s.poolRepo.GetForUpdateTx(ctx, sqltx, offer.PoolID)
		if err != nil {
			return out, err
		}

		if pool.ID == constant.Empty {
			// pool deleted since the listing; its offer was resolved with it
			return out, nil
		}

		current, err := s.repo.GetOfferTx(ctx, sqltx, offer.ID)
		if err != nil {
			return out, err
		}

		if current.ID == constant.Empty || !current.IsOpen() {
			return out, nil
		}

		entry, err := s.repo.GetTx(ctx, sqltx, current.BookingEntryID)
		if err != nil {
			return out, err
		}

		if err := s.expireOfferTx(ctx, sqltx, pool, current, entry, &out, systemActor); err != nil {
			return out, err
		}

		return out, nil
	})
}

// expireOfferTx resolves an offer as expired, expires the holder's entry and
// promotes the next waitlisted entry. Callers hold the pool lock.
func (s *serviceImpl) expireOfferTx(ctx context.Context, sqltx *sqlx.Tx, pool poolModel.Pool, offer model.Offer, entry model.Booking, out *txOutcome, actor string) error {
	if err := s.resolveOfferTx(ctx, sqltx, offer.ID, model.OfferStatusExpired, actor); err != nil {
		return err
	}

	if err := s.setEntryStatusTx(ctx, sqltx, entry.ID, model.StatusExpired, actor); err != nil {
		return err
	}

	entry.Status = model.StatusExpired
	out.events = append(out.events, notifier.OfferEvent(notifier.EventOfferExpired, offer, entry))

	return s.promoteNextTx(ctx, sqltx, pool, out, actor)
}

// promoteNextTx hands the waitlist head a claim offer when a seat is free and
// no other offer is pending. Callers hold the pool lock and pass the pool with
// its occupancy already up to date.
func (s *serviceImpl) promoteNextTx(ctx context.Context, sqltx *sqlx.Tx, pool poolModel.Pool, out *txOutcome, actor string) error {
	if pool.Occupancy >= pool.Capacity {
		return nil
	}

	openOffer, err := s.repo.GetOpenOfferTx(ctx, sqltx, pool.ID)
	if err != nil {
		return err
	}

	if openOffer.ID != constant.Empty {
		return nil
	}

	head, err := s.repo.GetWaitlistHeadTx(ctx, sqltx, pool.ID)
	if err != nil {
		return err
	}

	if head.ID == constant.Empty {
		return nil
	}

	now := timezone.Now()
	offer := model.Offer{
		ID:             uuid.NewString(),
		PoolID:         pool.ID,
		BookingEntryID: head.ID,
		OfferedAt:      now,
		ExpiresAt:      now.Add(time.Duration(s.cfg.Booking.OfferWindowMinutes) * time.Minute),
		Status:         model.OfferStatusOpen,
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  actor,
			ModifiedBy: actor,
		},
	}

	if err := s.repo.InsertOfferTx(ctx, sqltx, offer); err != nil {
		return err
	}

	out.events = append(out.events, notifier.OfferEvent(notifier.EventSpotAvailable, offer, head))

	return nil
}

// txOutcome is what a critical section hands back: events to publish once the
// commit lands, and an optional business error that still represents committed
// state (a rejected reservation writes its ledger row and then reports the
// capacity failure).
type txOutcome struct {
	events []notifier.Event
	opErr  error
}

// runPoolTx serializes fn against every other capacity-affecting operation on
// the pool: in-process keyed lock first, then a transaction in which fn is
// expected to lock the pool row. Serialization conflicts are retried a few
// times before giving up.
func (s *serviceImpl) runPoolTx(ctx context.Context, poolID string, fn func(context.Context, *sqlx.Tx) (txOutcome, error)) error {
	s.locks.Lock(poolID)
	defer s.locks.Unlock(poolID)

	var outcome txOutcome

	run := func() error {
		sqltx, err := s.repo.BeginTx(ctx)
		if err != nil {
			return err
		}

		defer func() {
			_ = sqltx.Rollback()
		}()

		outcome, err = fn(ctx, sqltx)
		if err != nil {
			return err
		}

		if err := sqltx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		return nil
	}

	if err := s.withRetry(ctx, run); err != nil {
		return err
	}

	if len(outcome.events) > 0 {
		s.notifier.Notify(ctx, outcome.events...)
	}

	s.invalidateEngineCaches(ctx, poolID)

	return outcome.opErr
}

func (s *serviceImpl) withRetry(ctx context.Context, run func() error) error {
	maxAttempts := s.cfg.Booking.TxMaxRetry
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := run()
		if err == nil || !isRetryableTxError(err) {
			return err
		}

		log.Warn().Err(err).Int("attempt", attempt).Msg("retrying booking transaction after conflict")

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction retry interrupted: %w", ctx.Err())
		case <-time.After(time.Duration(s.cfg.Booking.TxRetryBackoffMillis) * time.Millisecond):
		}
	}

	return failure.TransientConflictError // nolint:wrapcheck
}

func isRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	code := string(pqErr.Code)

	return code == constant.PqErrorCodeSerializationFailure || code == constant.PqErrorCodeDeadlockDetected
}

// insertEntryTx writes the ledger row, translating a unique violation from the
// active-entry index into the duplicate booking failure.
func (s *serviceImpl) insertEntryTx(ctx context.Context, sqltx *sqlx.Tx, entry model.Booking) error {
	err := s.repo.InsertTx(ctx, sqltx, entry)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == constant.PqErrorCodeUniqueViolation {
		return failure.DuplicateBookingError // nolint:wrapcheck
	}

	return err
}

func (s *serviceImpl) setEntryStatusTx(ctx context.Context, sqltx *sqlx.Tx, id, status, actor string) error {
	updatedFields := map[string]any{
		model.FieldStatus:        status,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: actor,
	}

	return s.repo.UpdateTx(ctx, sqltx, updatedFields, shared.FilterByID(id, model.FieldID, model.TableName)) // nolint:wrapcheck
}

func (s *serviceImpl) resolveOfferTx(ctx context.Context, sqltx *sqlx.Tx, offerID, status, actor string) error {
	now := timezone.Now()
	updatedFields := map[string]any{
		model.FieldStatus:        status,
		model.FieldResolvedAt:    now,
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: actor,
	}

	return s.repo.UpdateOfferTx(ctx, sqltx, updatedFields, shared.FilterByID(offerID, model.FieldID, model.OfferTableName)) // nolint:wrapcheck
}

// writeOccupancyTx persists the occupancy carried on the locked pool model.
func (s *serviceImpl) writeOccupancyTx(ctx context.Context, sqltx *sqlx.Tx, pool poolModel.Pool, actor string) error {
	updatedFields := map[string]any{
		poolModel.FieldOccupancy: pool.Occupancy,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: actor,
	}

	return s.poolRepo.UpdateTx(ctx, sqltx, updatedFields, shared.FilterByID(pool.ID, poolModel.FieldID, poolModel.TableName)) // nolint:wrapcheck
}

// openOfferAfterLapseTx returns the pool's open offer, expiring it in place
// first when its deadline has passed. Expiry can hand a fresh offer to the
// next entry in line, so the offer is re-read.
func (s *serviceImpl) openOfferAfterLapseTx(ctx context.Context, sqltx *sqlx.Tx, pool poolModel.Pool, out *txOutcome) (model.Offer, error) {
	openOffer, err := s.repo.GetOpenOfferTx(ctx, sqltx, pool.ID)
	if err != nil {
		return model.Offer{}, err
	}

	if openOffer.ID == constant.Empty || timezone.Now().Before(openOffer.ExpiresAt) {
		return openOffer, nil
	}

	holder, err := s.repo.GetTx(ctx, sqltx, openOffer.BookingEntryID)
	if err != nil {
		return model.Offer{}, err
	}

	if err := s.expireOfferTx(ctx, sqltx, pool, openOffer, holder, out, systemActor); err != nil {
		return model.Offer{}, err
	}

	return s.repo.GetOpenOfferTx(ctx, sqltx, pool.ID) // nolint:wrapcheck
}

func (s *serviceImpl) attachPosition(ctx context.Context, entry model.Booking, res *dto.BookingResponse) {
	ahead, err := s.repo.CountAhead(ctx, entry)
	if err != nil {
		log.Error().Err(err).Str("booking", entry.ID).Msg("failed to compute waitlist position")

		return
	}

	position := ahead + 1
	res.Position = &position
}

func (s *serviceImpl) invalidateEngineCaches(ctx context.Context, poolID string) {
	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Delete(c, shared.BuildCacheKey(cachePoolGet, poolID)); err != nil {
			log.Error().Err(err).Msg("failed to delete pool cache")
		}

		shared.InvalidateCaches(c, s.cache, cacheGetBooking)
		shared.InvalidateCaches(c, s.cache, cacheGetAllBooking)
		shared.InvalidateCaches(c, s.cache, cacheCountBooking)
		shared.InvalidateCaches(c, s.cache, cacheGetWaitlist)
		shared.InvalidateCaches(c, s.cache, cacheGetOffer)
		shared.InvalidateCaches(c, s.cache, cacheGetOpenOffer)
		shared.InvalidateCaches(c, s.cache, cachePoolGetAll)
		shared.InvalidateCaches(c, s.cache, cachePoolCount)
	}()
}
