package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/jackc/pgx/v5"

	"github.com/Guizzs26/tiempo-relay/internal/models"
)

// newPostgresDestination needs a disposable database in DESTINATION_URL. Tables are
// created per test and dropped afterwards.
func newPostgresDestination(c *qt.C) *DestinationRepository {
	url := os.Getenv("DESTINATION_URL")
	if url == "" {
		c.Skip("DESTINATION_URL not set")
	}

	suffix := time.Now().UnixNano()
	table := fmt.Sprintf("tiempo_test_%d", suffix)
	wellTable := fmt.Sprintf("pozo_test_%d", suffix)

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := NewDestinationRepository(ctx, url, table, wellTable, logger)
	c.Assert(err, qt.IsNil)
	c.Cleanup(repo.Close)
	c.Assert(repo.Ping(ctx), qt.IsNil)

	wellDefs := make([]string, len(models.WellColumns))
	for i, col := range models.WellColumns {
		wellDefs[i] = pgx.Identifier{col}.Sanitize() + " TEXT"
	}
	statements := []string{
		fmt.Sprintf(`CREATE TABLE %s ("ID" BIGINT, "HORA" TEXT, "PROFUNDIDAD" DOUBLE PRECISION)`, table),
		fmt.Sprintf(`CREATE TABLE %s (%s)`, wellTable, strings.Join(wellDefs, ", ")),
	}
	for _, stmt := range statements {
		_, err := repo.pool.Exec(ctx, stmt)
		c.Assert(err, qt.IsNil, qt.Commentf("statement %q", stmt))
	}
	c.Cleanup(func() {
		_, _ = repo.pool.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", table, wellTable))
	})
	return repo
}

func TestDestinationColumnsAndInsert(t *testing.T) {
	c := qt.New(t)
	repo := newPostgresDestination(c)
	ctx := context.Background()

	cols, err := repo.Columns(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(cols, qt.DeepEquals, []string{"ID", "HORA", "PROFUNDIDAD"})

	exists, err := repo.ExistsAt(ctx, "10:00:00")
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsFalse)

	rec := models.NewRecord(
		models.Field{Name: "ID", Value: 41},
		models.Field{Name: "HORA", Value: "10:00:00"},
		models.Field{Name: "PROFUNDIDAD", Value: 1520.5},
	)
	c.Assert(repo.Insert(ctx, rec), qt.IsNil)

	exists, err = repo.ExistsAt(ctx, "10:00:00")
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsTrue)
}

func TestDestinationUpsertWell(t *testing.T) {
	c := qt.New(t)
	repo := newPostgresDestination(c)
	ctx := context.Background()

	first := models.WellRow(models.NewRecord(
		models.Field{Name: "POZO", Value: "MFB-0042"},
		models.Field{Name: "TALADRO", Value: "PDV-21"},
	))
	updated, err := repo.UpsertWell(ctx, first)
	c.Assert(err, qt.IsNil)
	c.Assert(updated, qt.IsFalse)

	second := models.WellRow(models.NewRecord(
		models.Field{Name: "POZO", Value: "MFB-0042"},
		models.Field{Name: "TALADRO", Value: "PDV-35"},
	))
	updated, err = repo.UpsertWell(ctx, second)
	c.Assert(err, qt.IsNil)
	c.Assert(updated, qt.IsTrue)

	var (
		count   int
		taladro string
	)
	query := fmt.Sprintf(`SELECT COUNT(*), MAX("TALADRO") FROM %s`, repo.wellTable)
	c.Assert(repo.pool.QueryRow(ctx, query).Scan(&count, &taladro), qt.IsNil)
	c.Assert(count, qt.Equals, 1)
	c.Assert(taladro, qt.Equals, "PDV-35")

	_, err = repo.UpsertWell(ctx, models.WellRow(models.NewRecord()))
	c.Assert(err, qt.ErrorMatches, "well data has no POZO value")
}
