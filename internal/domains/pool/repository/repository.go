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
	"bunk/internal/domains/pool/model"
	"bunk/shared/constant"
	gDto "bunk/shared/dto"
	"bunk/shared/logger"
	gRepo "bunk/shared/repository"

	"github.com/jmoiron/sqlx"
)

var poolColumns = []string{
	model.FieldID,
	model.FieldKind,
	model.FieldName,
	model.FieldCapacity,
	model.FieldOccupancy,
	model.FieldAcceptsWaitlist,
	model.FieldArchiveURL,
	model.FieldDeletedAt,
	constant.FieldCreatedAt,
	constant.FieldModifiedAt,
	constant.FieldCreatedBy,
	constant.FieldModifiedBy,
}

// FilterActive matches one pool by id, skipping soft-deleted rows.
func FilterActive(id string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{
				Field:    model.FieldID,
				Value:    id,
				Operator: gDto.FilterOperatorEq,
				Table:    model.TableName,
			},
			gDto.Filter{
				Field:    model.FieldDeletedAt,
				Operator: gDto.FilterIsNull,
				Table:    model.TableName,
			},
		},
		Operator: gDto.FilterGroupOperatorAnd,
	}
}

type Pool interface {
	Insert(ctx context.Context, model model.Pool) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Pool, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Pool, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error
	UpdateTx(ctx context.Context, sqltx *sqlx.Tx, req map[string]any, filter gDto.FilterGroup) error
	GetForUpdateTx(ctx context.Context, sqltx *sqlx.Tx, id string) (model.Pool, error)
}

type repositoryImpl struct {
	gRepo.Repository[model.Pool]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Pool {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Pool](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

// GetForUpdateTx locks the pool row for the rest of the transaction so
// capacity checks and occupancy updates cannot interleave. Soft-deleted pools
// are treated as absent and reported as a zero model.
func (repo *repositoryImpl) GetForUpdateTx(ctx context.Context, sqltx *sqlx.Tx, id string) (model.Pool, error) {
	ctx, scope := repo.otel.NewScope(ctx, constant.OtelRepositoryScopeName, fmt.Sprintf("%s.%s.GetForUpdateTx", constant.OtelRepositoryScopeName, model.EntityName))
	defer scope.End()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 AND %s IS NULL FOR UPDATE",
		strings.Join(poolColumns, ", "),
		model.TableName,
		model.FieldID,
		model.FieldDeletedAt,
	)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var pool model.Pool

	err := sqltx.GetContext(ctx, &pool, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return pool, nil
	}

	if err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return pool, fmt.Errorf("failed to lock pool row: %w", err)
	}

	return pool, nil
}
