package domain

import "errors"

// Failure taxonomy shared by every component. Only ErrSessionUnavailable is
// fatal; all others are scoped to a single entry, channel or file line.
var (
	// ErrConfigurationMissing is returned when a rule file does not exist.
	// Callers treat it as an empty list.
	ErrConfigurationMissing = errors.New("configuration file missing")
	// ErrExtractionFailure marks a feed entry lacking required fields.
	ErrExtractionFailure = errors.New("entry extraction failed")
	// ErrInteractionTimeout is returned when an expected affordance never
	// became ready within its bounded wait.
	ErrInteractionTimeout = errors.New("interaction timed out")
	// ErrPersistenceCorruption marks an unparseable persisted line.
	ErrPersistenceCorruption = errors.New("persisted record corrupt")
	// ErrUnexpectedSurface wraps any other automation failure.
	ErrUnexpectedSurface = errors.New("unexpected automation surface error")
	// ErrSessionUnavailable means the browser session could not be established.
	ErrSessionUnavailable = errors.New("browser session unavailable")
)
