// Package domain contains core business entities.
package domain

import "errors"

// Equipment configuration errors. These fail controller construction.
var (
	ErrNameRequired              = errors.New("equipment name is required")
	ErrUnknownKind               = errors.New("unknown equipment kind")
	ErrPollIntervalTooShort      = errors.New("poll interval must be at least 100ms")
	ErrOnOffPointRequired        = errors.New("on/off point is required")
	ErrRunFeedbackPointRequired  = errors.New("run feedback point is required for this kind")
	ErrAutoManualPointRequired   = errors.New("auto/manual point is required for this kind")
	ErrTripPointRequired         = errors.New("trip point is required for this kind")
	ErrUnexpectedAutoManualPoint = errors.New("auto/manual point configured for always-manual kind")
)

// Point reference errors.
var (
	ErrUnknownBackend        = errors.New("unknown point backend")
	ErrPointEndpointRequired = errors.New("point endpoint is required")
	ErrPointAddressRequired  = errors.New("point address is required")
)

// Gateway errors. Read failures collapse into these two classes at the
// gateway boundary; the controller maps them to FaultTimeout/FaultInvalidData.
var (
	ErrPointTimeout         = errors.New("point read/write timed out")
	ErrPointInvalid         = errors.New("point returned invalid data")
	ErrBackendNotRegistered = errors.New("no backend registered for point")
	ErrEndpointNotFound     = errors.New("endpoint not configured")
	ErrCircuitBreakerOpen   = errors.New("circuit breaker is open")
	ErrNotConnected         = errors.New("backend not connected")
	ErrPointNotWritable     = errors.New("point is not writable")
)

// Supervisor errors.
var (
	ErrEquipmentNotFound = errors.New("equipment not found")
	ErrEquipmentExists   = errors.New("equipment already registered")
	ErrNotStarted        = errors.New("controller not started")
)
