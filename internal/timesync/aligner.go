// Package timesync aligns the poll loop to the 5-second grid the source system writes on,
// in a single fixed UTC offset.
package timesync

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"

	"github.com/Guizzs26/tiempo-relay/internal/models"
)

const (
	// TickInterval is the cadence of the source writes
	TickInterval = 5 * time.Second

	// MomentLayout is the HORA column format
	MomentLayout = "15:04:05"

	tableDateLayout = "020106"
)

// Offset is a fixed signed UTC offset with minute precision
type Offset struct {
	Hours   int
	Minutes int
}

// ParseOffset reads offsets written as "-04:30", "+05:45", "-4" or "UTC-04:30"
func ParseOffset(s string) (Offset, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "UTC"))
	if raw == "" {
		return Offset{}, nil
	}

	sign := 1
	switch raw[0] {
	case '-':
		sign = -1
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}

	hh, mm, hasMinutes := strings.Cut(raw, ":")
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 14 {
		return Offset{}, fmt.Errorf("invalid offset hours in %q", s)
	}
	m := 0
	if hasMinutes {
		m, err = strconv.Atoi(mm)
		if err != nil || m < 0 || m > 59 {
			return Offset{}, fmt.Errorf("invalid offset minutes in %q", s)
		}
	}
	return Offset{Hours: sign * h, Minutes: sign * m}, nil
}

// Seconds returns the signed offset east of UTC
func (o Offset) Seconds() int {
	return o.Hours*3600 + o.Minutes*60
}

// Decimal returns the offset in fractional hours (-4.5 for UTC-04:30)
func (o Offset) Decimal() float64 {
	return float64(o.Seconds()) / 3600
}

// String renders the offset as UTC-04:30
func (o Offset) String() string {
	secs := o.Seconds()
	sign := "+"
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, secs/3600, (secs%3600)/60)
}

// Aligner computes local time, polling boundaries, query moments and source table names.
// It holds no state besides its configuration; every call reads the clock again.
type Aligner struct {
	clock       clock.Clock
	offset      Offset
	zone        string
	loc         *time.Location
	tablePrefix string
}

// NewAligner builds an aligner for a fixed offset. zone is a human label such as "Venezuela".
func NewAligner(clk clock.Clock, offset Offset, zone, tablePrefix string) *Aligner {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Aligner{
		clock:       clk,
		offset:      offset,
		zone:        zone,
		loc:         time.FixedZone(offset.String(), offset.Seconds()),
		tablePrefix: tablePrefix,
	}
}

// Now returns the current time in the fixed offset
func (a *Aligner) Now() time.Time {
	return a.clock.Now().In(a.loc)
}

// Clock exposes the underlying time source for waits
func (a *Aligner) Clock() clock.Clock { return a.clock }

// Offset returns the fixed UTC offset local times are computed in
func (a *Aligner) Offset() Offset { return a.offset }

// Label renders the zone for humans, e.g. "Venezuela (UTC-04:30)"
func (a *Aligner) Label() string {
	if a.zone == "" {
		return a.offset.String()
	}
	return fmt.Sprintf("%s (%s)", a.zone, a.offset)
}

// NextBoundary returns the wait until the first 5-second tick at or after now and the tick itself.
// When the seconds field is already a multiple of five the wait is zero and the tick is now
// truncated to the second.
func (a *Aligner) NextBoundary(now time.Time) (time.Duration, time.Time) {
	base := now.Truncate(time.Second)
	rem := base.Second() % 5
	if rem == 0 {
		return 0, base
	}
	boundary := base.Add(time.Duration(5-rem) * time.Second)
	return boundary.Sub(now), boundary
}

// QueryMoment floors now to the 5-second grid and steps back by delay
func (a *Aligner) QueryMoment(now time.Time, delay time.Duration) time.Time {
	base := now.Truncate(time.Second)
	floored := base.Add(-time.Duration(base.Second()%5) * time.Second)
	return floored.Add(-delay).Truncate(time.Second)
}

// FormatMoment renders a moment the way the HORA column stores it
func FormatMoment(t time.Time) string {
	return t.Format(MomentLayout)
}

// TableName derives the day-partitioned source table for the local date of now
func (a *Aligner) TableName(now time.Time) string {
	return a.tablePrefix + now.In(a.loc).Format(tableDateLayout)
}

// CurrentTableName resolves the table for the current local date
func (a *Aligner) CurrentTableName() string {
	return a.TableName(a.Now())
}

// Info describes the configured zone at the current instant
func (a *Aligner) Info() models.TimezoneInfo {
	utc := a.clock.Now().UTC()
	local := utc.In(a.loc)
	return models.TimezoneInfo{
		Zone:         a.zone,
		OffsetLabel:  a.offset.String(),
		OffsetHours:  a.offset.Decimal(),
		LocalNow:     local.Format(time.DateTime),
		UTCNow:       utc.Format(time.DateTime),
		CurrentTable: a.TableName(local),
		Timestamp:    utc.UnixMilli(),
	}
}

var clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]:[0-5][0-9]$`)

// ValidateClock checks a manual query time. Single-digit hours are padded.
func ValidateClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !clockPattern.MatchString(s) {
		return "", fmt.Errorf("%q: %w", s, models.ErrMalformedTime)
	}
	if len(s) == len("0:00:00") {
		s = "0" + s
	}
	return s, nil
}
