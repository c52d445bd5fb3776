package mapper

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Guizzs26/tiempo-relay/internal/models"
)

// SQLBuilder translates ordered records into Postgres statements for the destination store
type SQLBuilder struct{}

// NewSQLBuilder initializes a new mapper instance
func NewSQLBuilder() *SQLBuilder {
	return &SQLBuilder{}
}

// BuildInsert generates an INSERT with the record's columns in record order
func (b *SQLBuilder) BuildInsert(tableName string, rec models.Record) (string, []any, error) {
	if rec.Len() == 0 {
		return "", nil, fmt.Errorf("no data provided for insert on table %s: %w", tableName, models.ErrSchemaMismatch)
	}

	columns := make([]string, 0, rec.Len())
	placeholders := make([]string, 0, rec.Len())
	args := make([]any, 0, rec.Len())

	for i, f := range rec.Fields() {
		columns = append(columns, quote(f.Name))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, f.Value)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quote(tableName),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	return query, args, nil
}

// BuildUpdate generates an UPDATE keyed by pkColumn. The key never appears in the SET clause.
func (b *SQLBuilder) BuildUpdate(tableName string, pkColumn string, rec models.Record) (string, []any, error) {
	pkValue, ok := rec.Get(pkColumn)
	if !ok || pkValue == nil {
		return "", nil, fmt.Errorf("primary key %s missing in record for update on %s", pkColumn, tableName)
	}

	var setClauses []string
	var args []any
	for _, f := range rec.Fields() {
		if strings.EqualFold(f.Name, pkColumn) {
			continue
		}
		args = append(args, f.Value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", quote(f.Name), len(args)))
	}
	if len(setClauses) == 0 {
		return "", nil, fmt.Errorf("no data provided for update on table %s", tableName)
	}

	args = append(args, pkValue)
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d",
		quote(tableName),
		strings.Join(setClauses, ", "),
		quote(pkColumn),
		len(args),
	)

	return query, args, nil
}

// BuildCountWhere counts rows whose column equals a single text argument
func (b *SQLBuilder) BuildCountWhere(tableName, column string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s::text = $1", quote(tableName), quote(column))
}

// quote keeps the upper-case column names of the legacy schema intact in Postgres
func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}
