package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"transit-classifier-service/internal/adapters/secondary/sqlcatalog"
	"transit-classifier-service/internal/core/domain"
	"transit-classifier-service/internal/core/ports/output"
)

//go:embed schema.sql
var schema string

func placeholder(int) string {
	return "?"
}

// CatalogRepository stores the catalog in a single SQLite file. Writers are
// serialized; readers run concurrently under WAL.
type CatalogRepository struct {
	db *sql.DB
	mu sync.Mutex
}

var _ ports.CatalogRepository = (*CatalogRepository)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*CatalogRepository, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	return &CatalogRepository{db: db}, nil
}

// DB exposes the handle for maintenance tasks
func (r *CatalogRepository) DB() *sql.DB {
	return r.db
}

func (r *CatalogRepository) Close() error {
	return r.db.Close()
}

func (r *CatalogRepository) Create(ctx context.Context, entry domain.NewCatalogEntry) (int64, error) {
	fam, err := sqlcatalog.FamilyRow(entry.Hyperparameters)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", domain.ErrRegistryWrite, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, fam.SQL(placeholder), fam.Values...)
	if err != nil {
		return 0, writeErr("insert "+fam.Table, err)
	}
	paramsID, err := res.LastInsertId()
	if err != nil {
		return 0, writeErr("insert "+fam.Table, err)
	}

	res, err = tx.ExecContext(ctx, sqlcatalog.InsertModel(fam.FKColumn, placeholder),
		entry.Name, entry.ArtifactPath, string(entry.Hyperparameters.Family),
		entry.Metrics.Accuracy, entry.Metrics.ROCAUC, entry.Metrics.PRAUC,
		time.Now().UTC(), paramsID,
	)
	if err != nil {
		return 0, writeErr("insert model", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, writeErr("insert model", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, writeErr("commit", err)
	}
	return id, nil
}

func (r *CatalogRepository) GetByID(ctx context.Context, id int64) (*domain.CatalogEntry, error) {
	var row sqlcatalog.Row
	err := r.db.QueryRowContext(ctx, sqlcatalog.SelectEntries+" WHERE m.id = ?", id).Scan(row.Dest()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrModelNotFound
		}
		return nil, fmt.Errorf("get model by id: %w", err)
	}
	return row.Entry()
}

func (r *CatalogRepository) List(ctx context.Context) ([]*domain.CatalogEntry, error) {
	rows, err := r.db.QueryContext(ctx, sqlcatalog.SelectEntries+" ORDER BY m.id")
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

func (r *CatalogRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func writeErr(op string, err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s: constraint violated: %v", domain.ErrRegistryWrite, op, sqlErr)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrRegistryWrite, op, err)
}
