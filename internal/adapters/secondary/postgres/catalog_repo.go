package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"transit-classifier-service/internal/adapters/secondary/sqlcatalog"
	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/core/ports/output"
)

//go:embed schema.sql
var schema string

func placeholder(i int) string {
	return "$" + strconv.Itoa(i)
}

type catalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) ports.CatalogRepository {
	return &catalogRepo{pool: pool}
}

// Migrate creates the catalog tables if they do not exist
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply catalog schema: %w", err)
	}
	return nil
}

func (r *catalogRepo) Create(ctx context.Context, entry domain.NewCatalogEntry) (int64, error) {
	fam, err := sqlcatalog.FamilyRow(entry.Hyperparameters)
	if err != nil {
		return 0, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", domain.ErrRegistryWrite, err)
	}
	defer tx.Rollback(ctx)

	var paramsID int64
	if err := tx.QueryRow(ctx, fam.SQL(placeholder)+" RETURNING id", fam.Values...).Scan(&paramsID); err != nil {
		return 0, writeErr("insert "+fam.Table, err)
	}

	var id int64
	err = tx.QueryRow(ctx, sqlcatalog.InsertModel(fam.FKColumn, placeholder)+" RETURNING id",
		entry.Name, entry.ArtifactPath, string(entry.Hyperparameters.Family),
		entry.Metrics.Accuracy, entry.Metrics.ROCAUC, entry.Metrics.PRAUC,
		time.Now().UTC(), paramsID,
	).Scan(&id)
	if err != nil {
		return 0, writeErr("insert model", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, writeErr("commit", err)
	}
	return id, nil
}

func (r *catalogRepo) GetByID(ctx context.Context, id int64) (*domain.CatalogEntry, error) {
	var row sqlcatalog.Row
	err := r.pool.QueryRow(ctx, sqlcatalog.SelectEntries+" WHERE m.id = $1", id).Scan(row.Dest()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrModelNotFound
		}
		return nil, fmt.Errorf("get model by id: %w", err)
	}
	return row.Entry()
}

func (r *catalogRepo) List(ctx context.Context) ([]*domain.CatalogEntry, error) {
	rows, err := r.pool.Query(ctx, sqlcatalog.SelectEntries+" ORDER BY m.id")
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	entries := []*domain.CatalogEntry{}
	for rows.Next() {
		var row sqlcatalog.Row
		if err := rows.Scan(row.Dest()...); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		entry, err := row.Entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return entries, nil
}

func (r *catalogRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// writeErr wraps a failed write in ErrRegistryWrite, naming the violated
// constraint when there is one.
func writeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.CheckViolation, pgerrcode.ForeignKeyViolation, pgerrcode.NotNullViolation:
			return fmt.Errorf("%w: %s: constraint %s violated (%s)", domain.ErrRegistryWrite, op, pgErr.ConstraintName, pgErr.Code)
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrRegistryWrite, op, err)
}
