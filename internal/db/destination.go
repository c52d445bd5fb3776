package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guizzs26/tiempo-relay/internal/mapper"
	"github.com/Guizzs26/tiempo-relay/internal/models"
)

// DestinationRepository writes forwarded rows and well data to the long-lived Postgres store
type DestinationRepository struct {
	pool      *pgxpool.Pool
	builder   *mapper.SQLBuilder
	table     string
	wellTable string
	logger    *slog.Logger
}

// NewDestinationRepository builds the pool without waiting for the server; see Ping
func NewDestinationRepository(ctx context.Context, connString, table, wellTable string, logger *slog.Logger) (*DestinationRepository, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse destination pool config: %w", err)
	}
	cfg.MaxConns = 10

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination pool: %w", err)
	}

	return &DestinationRepository{
		pool:      p,
		builder:   mapper.NewSQLBuilder(),
		table:     table,
		wellTable: wellTable,
		logger:    logger,
	}, nil
}

// Ping verifies the destination is reachable
func (r *DestinationRepository) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("%w: destination ping failed: %w", models.ErrConnectivity, err)
	}
	r.logger.Info("Connected to destination database", "table", r.table)
	return nil
}

// ExistsAt reports whether the destination already holds a row for hora
func (r *DestinationRepository) ExistsAt(ctx context.Context, hora string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var count int64
	query := r.builder.BuildCountWhere(r.table, models.ColumnHora)
	if err := r.pool.QueryRow(opCtx, query, hora).Scan(&count); err != nil {
		return false, fmt.Errorf("%w: existence check at %s: %w", models.ErrConnectivity, hora, err)
	}
	return count > 0, nil
}

// Columns lists the destination table's columns in ordinal order. It is queried on every
// call so schema changes are picked up without a restart.
func (r *DestinationRepository) Columns(ctx context.Context) ([]string, error) {
	return r.columnsOf(ctx, r.table)
}

func (r *DestinationRepository) columnsOf(ctx context.Context, table string) ([]string, error) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, err := r.pool.Query(opCtx, query, table)
	if err != nil {
		return nil, fmt.Errorf("%w: describe %s: %w", models.ErrConnectivity, table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("describe %s scan: %w", table, err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: describe %s: %w", models.ErrConnectivity, table, err)
	}
	return columns, nil
}

// Insert writes one projected record into the destination table
func (r *DestinationRepository) Insert(ctx context.Context, rec models.Record) error {
	query, args, err := r.builder.BuildInsert(r.table, rec)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := r.pool.Exec(opCtx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", r.table, err)
	}
	return nil
}

// UpsertWell updates the well row keyed by POZO, inserting it when absent.
// It reports whether an existing row was updated.
func (r *DestinationRepository) UpsertWell(ctx context.Context, well models.Record) (bool, error) {
	pozo := well.StringValue(models.WellKeyColumn)
	if pozo == "" {
		return false, fmt.Errorf("well data has no %s value", models.WellKeyColumn)
	}

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(opCtx)
	if err != nil {
		return false, fmt.Errorf("%w: begin well upsert: %w", models.ErrConnectivity, err)
	}
	// Safety: Rollback is a no-op if Commit was already called
	defer tx.Rollback(opCtx)

	var count int64
	countQuery := r.builder.BuildCountWhere(r.wellTable, models.WellKeyColumn)
	if err := tx.QueryRow(opCtx, countQuery, pozo).Scan(&count); err != nil {
		return false, fmt.Errorf("well existence check: %w", err)
	}

	var (
		query string
		args  []any
	)
	if count > 0 {
		query, args, err = r.builder.BuildUpdate(r.wellTable, models.WellKeyColumn, well)
	} else {
		query, args, err = r.builder.BuildInsert(r.wellTable, well)
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(opCtx, query, args...); err != nil {
		return false, fmt.Errorf("write well data: %w", err)
	}
	if err := tx.Commit(opCtx); err != nil {
		return false, fmt.Errorf("commit well data: %w", err)
	}
	return count > 0, nil
}

func (r *DestinationRepository) Close() {
	r.logger.Info("Closing destination connection pool")
	r.pool.Close()
}
