package domain

import "errors"

var (
	ErrSnapshotAlreadyApplied = errors.New("snapshot_already_applied")
	ErrInvalidPeriod          = errors.New("invalid_period")
)
