package core

import "errors"

var (
	// ErrInvalidTriplet is returned when the navigator triplet has no usable target.
	ErrInvalidTriplet = errors.New("invalid triplet")
	// ErrNoGlobalReference is returned when a global waypoint must be
	// projected but no usable local frame origin is available.
	ErrNoGlobalReference = errors.New("no global reference")
	// ErrInvalidConfig is returned when the parameter snapshot is unusable.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrNotActive is returned by UpdateSetpoints before a successful Activate.
	ErrNotActive = errors.New("task not active")
)
