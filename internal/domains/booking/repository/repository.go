package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bunk/infras/otel"
	"bunk/infras/postgres"
	"bunk/internal/domains/booking/model"
	"bunk/shared/constant"
	gDto "bunk/shared/dto"
	"bunk/shared/logger"
	gRepo "bunk/shared/repository"

	"github.com/jmoiron/sqlx"
)

var entryColumns = []string{
	model.FieldID,
	model.FieldPoolID,
	model.FieldSubjectID,
	model.FieldRequesterID,
	model.FieldStatus,
	constant.FieldCreatedAt,
	constant.FieldModifiedAt,
	constant.FieldCreatedBy,
	constant.FieldModifiedBy,
}

var offerColumns = []string{
	model.FieldID,
	model.FieldPoolID,
	model.FieldBookingEntryID,
	model.FieldOfferedAt,
	model.FieldExpiresAt,
	model.FieldStatus,
	model.FieldResolvedAt,
	constant.FieldCreatedAt,
	constant.FieldModifiedAt,
	constant.FieldCreatedBy,
	constant.FieldModifiedBy,
}

type Booking interface {
	Insert(ctx context.Context, model model.Booking) error
	InsertTx(ctx context.Context, sqltx *sqlx.Tx, model model.Booking) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Booking, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Booking, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error
	UpdateTx(ctx context.Context, sqltx *sqlx.Tx, req map[string]any, filter gDto.FilterGroup) error

	GetTx(ctx context.Context, sqltx *sqlx.Tx, id string) (model.Booking, error)
	GetAllActiveTx(ctx context.Context, sqltx *sqlx.Tx, poolID string) ([]model.Booking, error)
	ExistActiveTx(ctx context.Context, sqltx *sqlx.Tx, poolID, subjectID string) (bool, error)
	GetWaitlistHeadTx(ctx context.Context, sqltx *sqlx.Tx, poolID string) (model.Booking, error)
	GetWaitlistPage(ctx context.Context, poolID string, limit, offset int) ([]model.Booking, error)
	CountAhead(ctx context.Context, entry model.Booking) (int, error)

	GetOffer(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Offer, error)
	GetAllOffers(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Offer, error)
	InsertOfferTx(ctx context.Context, sqltx *sqlx.Tx, offer model.Offer) error
	UpdateOfferTx(ctx context.Context, sqltx *sqlx.Tx, req map[string]any, filter gDto.FilterGroup) error
	GetOfferTx(ctx context.Context, sqltx *sqlx.Tx, id string) (model.Offer, error)
	GetOpenOfferTx(ctx context.Context, sqltx *sqlx.Tx, poolID string) (model.Offer, error)

	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

type repositoryImpl struct {
	gRepo.Repository[model.Booking]
	offers gRepo.Repository[model.Offer]
	db     *postgres.Connection
	otel   otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Booking {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Booking](model.EntityName, model.TableName, model.FieldID, db, otel),
		offers:     gRepo.NewRepository[model.Offer](model.OfferEntityName, model.OfferTableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

func (repo *repositoryImpl) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	sqltx, err := repo.db.Write.BeginTxx(ctx, nil)
	if err != nil {
		logger.ErrorWithStack(err)

		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return sqltx, nil
}

// GetTx reads one entry within the transaction. A missing row comes back as a
// zero model, matching the read-side convention.
func (repo *repositoryImpl) GetTx(ctx context.Context, sqltx *sqlx.Tx, id string) (model.Booking, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, fmt.Sprintf("%s.%s.GetTx", constant.OtelRepositoryScopeName, model.EntityName))
	defer scope.End()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1",
		strings.Join(entryColumns, ", "),
		model.TableName,
		model.FieldID,
	)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var entry model.Booking

	err := sqltx.GetContext(ctx, &entry, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, nil
	}

	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return entry, fmt.Errorf("failed to get booking entry in transaction: %w", err)
	}

	return entry, nil
}

func (repo *repositoryImpl) GetAllActiveTx(ctx context.Context, sqltx *sqlx.Tx, poolID string) ([]model.Booking, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, fmt.Sprintf("%s.%s.GetAllActiveTx", constant.OtelRepositoryScopeName, model.EntityName))
	defer scope.End()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 AND %s IN ($2, $3) ORDER BY %s ASC, %s ASC",
		strings.Join(entryColumns, ", "),
		model.TableName,
		model.FieldPoolID,
		model.FieldStatus,
		constant.FieldCreatedAt,
		model.FieldID,
	)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var entries []model.Booking

	err := sqltx.SelectContext(ctx, &entries, query, poolID, model.StatusConfirmed, model.StatusWaitlisted)
	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return entries, fmt.Errorf("failed to get active booking entries: %w", err)
	}

	return entries, nil
}

func (repo *repositoryImpl) ExistActiveTx(ctx context.Context, sqltx *sqlx.Tx, poolID, subjectID string) (bool, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, fmt.Sprintf("%s.%s.ExistActiveTx", constant.OtelRepositoryScopeName, model.EntityName))
	defer scope.End()

	query := fmt.Sprintf(
		"SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1 AND %s = $2 AND %s IN ($3, $4))",
		model.TableName,
		model.FieldPoolID,
		model.FieldSubjectID,
		model.FieldStatus,
	)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	exist := false

	err := sqltx.GetContext(ctx, &exist, query, poolID, subjectID, model.StatusConfirmed, model.StatusWaitlisted)
	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return false, fmt.Errorf("failed to check active booking entry: %w", err)
	}

	return exist, nil
}

// GetWaitlistHeadTx returns the oldest waitlisted entry for the pool. Ties on
// created_at break on id so the order is total.
func (repo *repositoryImpl) GetWaitlistHeadTx(ctx context.Context, sqltx *sqlx.Tx, poolID string) (model.Booking, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, fmt.Sprintf("%s.%s.GetWaitlistHeadTx", constant.OtelRepositoryScopeName, model.EntityName))
	defer scope.End()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 AND %s = $2 ORDER BY %s ASC, %s ASC LIMIT 1",
		strings.Join(entryColumns, ", "),
		model.TableName,
		model.FieldPoolID,
		model.FieldStatus,
		constant.FieldCreatedAt,
		model.FieldID,
	)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var entry model.Booking

	err := sqltx.GetContext(ctx, &entry, query, poolID, model.StatusWaitlisted)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, nil
	}

	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return entry, fmt.Errorf("failed to get waitlist head: %w", err)
	}

	return entry, nil
}

func (repo *repositoryImpl) GetWaitlistPage(ctx context.Context, poolID string, limit, offset int) ([]model.Booking, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, fmt.Sprintf("%s.%s.GetWaitlistPage", constant.OtelRepositoryScopeName, model.EntityName))
	defer scope.End()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 AND %s = $2 ORDER BY %s ASC, %s ASC LIMIT $3 OFFSET $4",
		strings.Join(entryColumns, ", "),
		model.TableName,
		model.FieldPoolID,
		model.FieldStatus,
		constant.FieldCreatedAt,
		model.FieldID,
	)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var entries []model.Booking

	err := repo.db.Read.SelectContext(ctx, &entries, query, poolID, model.StatusWaitlisted, limit, offset)
	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return entries, fmt.Errorf("failed to get waitlist page: %w", err)
	}

	return entries, nil
}

// CountAhead counts waitlisted entries queued before the given one, which is
// its zero-based position in the pool's waitlist.
func (repo *repositoryImpl) CountAhead(ctx context.Context, entry model.Booking) (int, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, fmt.Sprintf("%s.%s.CountAhead", constant.OtelRepositoryScopeName, model.EntityName))
	defer scope.End()

	query := fmt.Sprintf(
		"SELECT COUNT(%s) FROM %s WHERE %s = $1 AND %s = $2 AND (%s < $3 OR (%s = $3 AND %s < $4))",
		model.FieldID,
		model.TableName,
		model.FieldPoolID,
		model.FieldStatus,
		constant.FieldCreatedAt,
		constant.FieldCreatedAt,
		model.FieldID,
	)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var count int

	err := repo.db.Read.GetContext(ctx, &count, query, entry.PoolID, model.StatusWaitlisted, entry.CreatedAt, entry.ID)
	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return 0, fmt.Errorf("failed to count entries ahead in waitlist: %w", err)
	}

	return count, nil
}

func (repo *repositoryImpl) GetOffer(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Offer, error) {
	return repo.offers.Get(ctx, filter, columns...) //nolint:wrapcheck
}

func (repo *repositoryImpl) GetAllOffers(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Offer, error) {
	return repo.offers.GetAll(ctx, params, filter, columns...) //nolint:wrapcheck
}

func (repo *repositoryImpl) InsertOfferTx(ctx context.Context, sqltx *sqlx.Tx, offer model.Offer) error {
	return repo.offers.InsertTx(ctx, sqltx, offer) //nolint:wrapcheck
}

func (repo *repositoryImpl) UpdateOfferTx(ctx context.Context, sqltx *sqlx.Tx, req map[string]any, filter gDto.FilterGroup) error {
	return repo.offers.UpdateTx(ctx, sqltx, req, filter) //nolint:wrapcheck
}

func (repo *repositoryImpl) GetOfferTx(ctx context.Context, sqltx *sqlx.Tx, id string) (model.Offer, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, fmt.Sprintf("%s.%s.GetOfferTx", constant.OtelRepositoryScopeName, model.OfferEntityName))
	defer scope.End()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1",
		strings.Join(offerColumns, ", "),
		model.OfferTableName,
		model.FieldID,
	)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var offer model.Offer

	err := sqltx.GetContext(ctx, &offer, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return offer, nil
	}

	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return offer, fmt.Errorf("failed to get claim offer in transaction: %w", err)
	}

	return offer, nil
}

func (repo *repositoryImpl) GetOpenOfferTx(ctx context.Context, sqltx *sqlx.Tx, poolID string) (model.Offer, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, fmt.Sprintf("%s.%s.GetOpenOfferTx", constant.OtelRepositoryScopeName, model.OfferEntityName))
	defer scope.End()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 AND %s = $2",
		strings.Join(offerColumns, ", "),
		model.OfferTableName,
		model.FieldPoolID,
		model.FieldStatus,
	)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var offer model.Offer

	err := sqltx.GetContext(ctx, &offer, query, poolID, model.OfferStatusOpen)
	if errors.Is(err, sql.ErrNoRows) {
		return offer, nil
	}

	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return offer, fmt.Errorf("failed to get open claim offer: %w", err)
	}

	return offer, nil
}
