package models

import "errors"

var (
	// ErrConnectivity marks a store that could not be reached or queried
	ErrConnectivity = errors.New("store unreachable")

	// ErrSchemaMismatch is returned when a record shares no column with the destination table
	ErrSchemaMismatch = errors.New("no common columns between record and destination")

	// ErrMalformedTime rejects manual queries whose time is not HH:MM:SS
	ErrMalformedTime = errors.New("time must match HH:MM:SS")

	// ErrInvalidTable guards identifiers interpolated into SQL
	ErrInvalidTable = errors.New("invalid table name")
)
