package models

// WellColumns is the fixed column list of the well data table. POZO is the key.
var WellColumns = []string{
	"POZO", "LOCACION", "BLOQUE", "TALADRO", "OPERADORA",
	"COORDENADASN", "COORDENADASE", "ESTADOPAIS", "GEOLOGO",
	"EMR", "ET", "OPERADORES", "TUBOSPORPAREJA",
}

// WellKeyColumn identifies a well row
const WellKeyColumn = "POZO"

// WellRow projects a source row onto the well column list. Columns absent from the
// source row are sent as NULL so the statement shape never changes.
func WellRow(src Record) Record {
	var out Record
	for _, c := range WellColumns {
		v, _ := src.Get(c)
		out.Set(c, v)
	}
	return out
}
