package mapper

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/Guizzs26/tiempo-relay/internal/models"
)

func TestBuildInsertKeepsRecordOrder(t *testing.T) {
	c := qt.New(t)
	b := NewSQLBuilder()

	rec := models.NewRecord(
		models.Field{Name: "ID", Value: 7},
		models.Field{Name: "HORA", Value: "10:00:00"},
		models.Field{Name: "PRESION", Value: 12.5},
	)

	query, args, err := b.BuildInsert("tiempo", rec)
	c.Assert(err, qt.IsNil)
	c.Assert(query, qt.Equals, `INSERT INTO "tiempo" ("ID", "HORA", "PRESION") VALUES ($1, $2, $3)`)
	c.Assert(args, qt.DeepEquals, []any{int64(7), "10:00:00", 12.5})
}

func TestBuildInsertEmptyRecord(t *testing.T) {
	c := qt.New(t)

	_, _, err := NewSQLBuilder().BuildInsert("tiempo", models.Record{})
	c.Assert(errors.Is(err, models.ErrSchemaMismatch), qt.IsTrue)
}

func TestBuildUpdateSkipsKeyInSet(t *testing.T) {
	c := qt.New(t)
	b := NewSQLBuilder()

	rec := models.NewRecord(
		models.Field{Name: "POZO", Value: "MFB-0042"},
		models.Field{Name: "LOCACION", Value: "Anzoategui"},
		models.Field{Name: "EMR", Value: nil},
	)

	query, args, err := b.BuildUpdate("datos", "POZO", rec)
	c.Assert(err, qt.IsNil)
	c.Assert(query, qt.Equals, `UPDATE "datos" SET "LOCACION" = $1, "EMR" = $2 WHERE "POZO" = $3`)
	c.Assert(args, qt.DeepEquals, []any{"Anzoategui", nil, "MFB-0042"})
}

func TestBuildUpdateRequiresKey(t *testing.T) {
	c := qt.New(t)

	rec := models.NewRecord(models.Field{Name: "LOCACION", Value: "x"})
	_, _, err := NewSQLBuilder().BuildUpdate("datos", "POZO", rec)
	c.Assert(err, qt.ErrorMatches, `primary key POZO missing.*`)
}

func TestBuildCountWhere(t *testing.T) {
	c := qt.New(t)
	c.Assert(NewSQLBuilder().BuildCountWhere("tiempo", "HORA"), qt.Equals,
		`SELECT COUNT(*) FROM "tiempo" WHERE "HORA"::text = $1`)
}
