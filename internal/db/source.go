package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/nakagami/firebirdsql"

	"github.com/Guizzs26/tiempo-relay/internal/config"
	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/pkg/encoding"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SourceRepository reads the day-partitioned tables written by the field acquisition system
type SourceRepository struct {
	db        *sql.DB
	driver    string
	wellTable string
	decode    encoding.TextDecoder
	logger    *slog.Logger
}

// NewSourceRepository opens a lazy connection pool. Reachability is checked separately with Ping
// so a missing database degrades the service instead of stopping it.
func NewSourceRepository(driver, dsn, wellTable string, decode encoding.TextDecoder, logger *slog.Logger) (*SourceRepository, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s source connection: %w", driver, err)
	}

	// Legacy Firebird servers cope badly with parallel attachments
	if driver == config.DriverFirebird {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if decode == nil {
		decode = encoding.NewTextDecoder(encoding.CharsetUTF8)
	}

	return &SourceRepository{
		db:        db,
		driver:    driver,
		wellTable: wellTable,
		decode:    decode,
		logger:    logger,
	}, nil
}

// Ping verifies the source is reachable
func (r *SourceRepository) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%w: source ping failed: %w", models.ErrConnectivity, err)
	}
	r.logger.Info("Connected to source database", "driver", r.driver)
	return nil
}

// FetchAt returns the first row of table whose HORA equals hora
func (r *SourceRepository) FetchAt(ctx context.Context, table, hora string) (models.Record, bool, error) {
	records, err := r.FetchAll(ctx, table, hora)
	if err != nil {
		return models.Record{}, false, err
	}
	if len(records) == 0 {
		return models.Record{}, false, nil
	}
	return records[0], true, nil
}

// FetchAll returns every row of table whose HORA equals hora
func (r *SourceRepository) FetchAll(ctx context.Context, table, hora string) ([]models.Record, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidTable, table)
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", table, models.ColumnHora)
	rows, err := r.db.QueryContext(opCtx, query, hora)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s at %s: %w", models.ErrConnectivity, table, hora, err)
	}
	defer rows.Close()

	records, err := r.scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s at %s: %w", table, hora, err)
	}
	return records, nil
}

// FetchWell returns the first row of the well data table
func (r *SourceRepository) FetchWell(ctx context.Context) (models.Record, bool, error) {
	if !identifierPattern.MatchString(r.wellTable) {
		return models.Record{}, false, fmt.Errorf("%w: %q", models.ErrInvalidTable, r.wellTable)
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := fmt.Sprintf("SELECT * FROM %s LIMIT 1", r.wellTable)
	if r.driver == config.DriverFirebird {
		query = fmt.Sprintf("SELECT FIRST 1 * FROM %s", r.wellTable)
	}

	rows, err := r.db.QueryContext(opCtx, query)
	if err != nil {
		return models.Record{}, false, fmt.Errorf("%w: fetch well data: %w", models.ErrConnectivity, err)
	}
	defer rows.Close()

	records, err := r.scanRecords(rows)
	if err != nil {
		return models.Record{}, false, fmt.Errorf("scan well data: %w", err)
	}
	if len(records) == 0 {
		return models.Record{}, false, nil
	}
	return records[0], true, nil
}

// scanRecords reads rows of unknown shape into ordered records
func (r *SourceRepository) scanRecords(rows *sql.Rows) ([]models.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []models.Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		var rec models.Record
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = r.decode(b)
			}
			rec.Set(col, v)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close gracefully shuts down the database connection pool
func (r *SourceRepository) Close() error {
	r.logger.Info("Closing source connection pool", "driver", r.driver)
	return r.db.Close()
}
