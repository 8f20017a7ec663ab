package pool

import (
	"net/http"

	"bunk/infras/otel"
	bookingService "bunk/internal/domains/booking/service"
	"bunk/internal/domains/pool/model"
	"bunk/internal/domains/pool/model/dto"
	"bunk/internal/domains/pool/service"
	"bunk/shared/constant"
	gDto "bunk/shared/dto"
	"bunk/shared/validator"
	"bunk/transport/http/response"

	"github.com/go-chi/chi/v5"

	"github.com/rs/zerolog/log"
)

type Handler struct {
	service        service.Pool
	bookingService bookingService.Booking
	otel           otel.Otel
}

func New(service service.Pool, bookingService bookingService.Booking, otel otel.Otel) Handler {
	return Handler{
		service:        service,
		bookingService: bookingService,
		otel:           otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/pools", func(routerGroup chi.Router) {
		routerGroup.Post("/", handler.CreatePool)
		routerGroup.Get("/", handler.GetPools)
		routerGroup.Get("/{id}", handler.GetPoolByID)
		routerGroup.Get("/{id}/waitlist", handler.GetPoolWaitlist)
		routerGroup.Get("/{id}/offer", handler.GetPoolOffer)
		routerGroup.Patch("/{id}/capacity", handler.ResizePool)
		routerGroup.Patch("/{id}/waitlist", handler.ToggleWaitlist)
		routerGroup.Delete("/{id}", handler.DeletePool)
		routerGroup.Post("/{id}/archive", handler.ArchivePool)
	})
}

// CreatePool handles the creation of a new resource pool.
// @Summary Create a new pool
// @Description Create a camp or slot pool with a fixed capacity.
// @Tags Pool
// @Accept json
// @Produce json
// @Param request body dto.CreatePoolRequest true "Create Pool Request"
// @Success 201 {object} response.Message "Pool created successfully"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/pools [post]
// @Security BearerAuth
func (handler *Handler) CreatePool(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CreatePool")
	defer scope.End()

	req := dto.CreatePoolRequest{}

	if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(writer, err)

		return
	}

	if err := handler.service.Create(ctx, req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to create pool")

		response.WithError(writer, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Pool created successfully by user " + user)

	response.WithMessage(writer, http.StatusCreated, "Pool created successfully")
}

// GetPools retrieves all pools based on query parameters.
// @Summary Get all pools
// @Description Retrieve pools with availability, optional filtering and pagination.
// @Tags Pool
// @Accept json
// @Produce json
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Param kind query string false "Filter by kind (camp, slot)"
// @Param name query string false "Filter by name (substring match)"
// @Success 200 {object} response.Data[dto.GetPoolsResponse] "List of pools"
// @Failure 400 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/pools [get]
func (handler *Handler) GetPools(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetPools")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)

	kind := r.URL.Query().Get(model.FieldKind)
	name := r.URL.Query().Get(model.FieldName)

	filterGroup := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters:  []any{},
	}

	if kind != "" {
		filterGroup.Filters = append(filterGroup.Filters, gDto.Filter{
			Field:    model.FieldKind,
			Operator: gDto.FilterOperatorEq,
			Value:    kind,
			Table:    model.TableName,
		})
	}

	if name != "" {
		filterGroup.Filters = append(filterGroup.Filters, gDto.Filter{
			Field:    model.FieldName,
			Operator: gDto.FilterOperatorLike,
			Value:    name,
			Table:    model.TableName,
		})
	}

	pools, err := handler.service.GetAll(ctx, queryParams, filterGroup)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get pools")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Pools retrieved successfully")

	response.WithJSON(w, http.StatusOK, pools)
}

// GetPoolByID retrieves a pool by its ID.
// @Summary Get a pool by ID
// @Description Retrieve a pool with its current availability.
// @Tags Pool
// @Accept json
// @Produce json
// @Param id path string true "Pool ID"
// @Success 200 {object} response.Data[dto.PoolResponse] "Pool details"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/pools/{id} [get]
func (handler *Handler) GetPoolByID(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetPoolByID")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	pool, err := handler.service.Get(ctx, id)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get pool by ID")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Pool retrieved successfully")

	response.WithJSON(w, http.StatusOK, pool)
}

// GetPoolWaitlist retrieves the ordered waitlist of a pool.
// @Summary Get a pool's waitlist
// @Description Retrieve the pool's queue in promotion order with positions.
// @Tags Pool
// @Accept json
// @Produce json
// @Param id path string true "Pool ID"
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Success 200 {object} response.Data[bookingDto.GetWaitlistResponse] "Waitlist entries"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/pools/{id}/waitlist [get]
func (handler *Handler) GetPoolWaitlist(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetPoolWaitlist")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)

	waitlist, err := handler.bookingService.GetWaitlist(ctx, id, queryParams)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get pool waitlist")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Waitlist retrieved successfully")

	response.WithJSON(w, http.StatusOK, waitlist)
}

// GetPoolOffer retrieves the current open claim offer of a pool.
// @Summary Get a pool's open offer
// @Description Retrieve the open claim offer for the pool, if one exists.
// @Tags Pool
// @Accept json
// @Produce json
// @Param id path string true "Pool ID"
// @Success 200 {object} response.Data[bookingDto.OfferResponse] "Open offer"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/pools/{id}/offer [get]
func (handler *Handler) GetPoolOffer(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetPoolOffer")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	offer, err := handler.bookingService.GetOpenOffer(ctx, id)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get pool offer")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Open offer retrieved successfully")

	response.WithJSON(w, http.StatusOK, offer)
}

// ResizePool changes the capacity of a pool.
// @Summary Resize a pool
// @Description Change the pool capacity. Shrinking below current occupancy is rejected.
// @Tags Pool
// @Accept json
// @Produce json
// @Param id path string true "Pool ID"
// @Param request body dto.ResizePoolRequest true "Resize Pool Request"
// @Success 200 {object} response.Message "Pool resized successfully"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/pools/{id}/capacity [patch]
// @Security BearerAuth
func (handler *Handler) ResizePool(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ResizePool")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	req := dto.ResizePoolRequest{}
	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	if err := handler.bookingService.ResizePool(ctx, req, id); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to resize pool")

		response.WithError(w, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Pool resized successfully by user " + user)

	response.WithMessage(w, http.StatusOK, "Pool resized successfully")
}

// ToggleWaitlist enables or disables the waitlist of a pool.
// @Summary Toggle a pool's waitlist
// @Description Enable or disable waitlisting for a full pool.
// @Tags Pool
// @Accept json
// @Produce json
// @Param id path string true "Pool ID"
// @Param request body dto.ToggleWaitlistRequest true "Toggle Waitlist Request"
// @Success 200 {object} response.Message "Pool waitlist updated successfully"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/pools/{id}/waitlist [patch]
// @Security BearerAuth
func (handler *Handler) ToggleWaitlist(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ToggleWaitlist")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	req := dto.ToggleWaitlistRequest{}
	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	if err := handler.service.ToggleWaitlist(ctx, req, id); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to toggle pool waitlist")

		response.WithError(w, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Pool waitlist updated successfully by user " + user)

	response.WithMessage(w, http.StatusOK, "Pool waitlist updated successfully")
}

// DeletePool soft-deletes a pool and resolves its bookings and offers.
// @Summary Delete a pool
// @Description Soft-delete a pool. Active bookings are cancelled and the open offer expires.
// @Tags Pool
// @Accept json
// @Produce json
// @Param id path string true "Pool ID"
// @Success 200 {object} response.Message "Pool deleted successfully"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/pools/{id} [delete]
// @Security BearerAuth
func (handler *Handler) DeletePool(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".DeletePool")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	if err := handler.bookingService.DeletePool(ctx, id); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to delete pool")

		response.WithError(w, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Pool deleted successfully by user " + user)

	response.WithMessage(w, http.StatusOK, "Pool deleted successfully")
}

// ArchivePool exports a pool's terminal ledger entries to object storage.
// @Summary Archive a pool's terminal entries
// @Description Export cancelled, expired and rejected entries of the pool to S3 as JSON.
// @Tags Pool
// @Accept json
// @Produce json
// @Param id path string true "Pool ID"
// @Success 200 {object} response.Data[dto.ArchivePoolResponse] "Archive location"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/pools/{id}/archive [post]
// @Security BearerAuth
func (handler *Handler) ArchivePool(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ArchivePool")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	archive, err := handler.service.Archive(ctx, id)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to archive pool")

		response.WithError(w, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Pool archived successfully by user " + user)

	response.WithJSON(w, http.StatusOK, archive)
}
