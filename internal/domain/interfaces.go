// Package domain contains core business entities.
package domain

import "context"

// PointGateway abstracts the heterogeneous I/O backends. Implementations
// apply physical-to-logical translation (inversion, scaling) so callers
// always see logical 1=ON/0=OFF and engineering-unit analog values; every
// call carries a bounded timeout.
//
// The gateway is constructor-injected into controllers so tests can
// substitute a fake without process-wide state.
type PointGateway interface {
	// Read returns the current logical value of a point. Errors wrap
	// ErrPointTimeout (backend unreachable within bound) or
	// ErrPointInvalid (malformed / out-of-range payload).
	Read(ctx context.Context, ref PointRef) (PointValue, error)

	// Command changes a point: ActionOn/ActionOff for digital outputs,
	// ActionSet with value for analog setpoints.
	Command(ctx context.Context, ref PointRef, action CommandAction, value float64) error
}

// InterlockOracle answers "may this equipment start?". Implementations are
// fail-open: an oracle that cannot be reached must never itself block
// starting equipment; only a deliberate blocked answer does.
type InterlockOracle interface {
	MayStart(ctx context.Context, name string) bool
}

// EventSink receives fault transitions for audit/history. Delivery is
// advisory; a sink must never block the reconciliation cycle.
type EventSink interface {
	FaultTransition(ev FaultEvent)
}
