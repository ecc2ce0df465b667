// Package domain contains core business entities.
package domain

import "time"

// Fault is the controller-level fault taxonomy. Timeout, InvalidData and
// Tripped are immediate; OnButNotRunning and OffButRunning are debounced
// over consecutive polls before being published.
type Fault string

const (
	FaultNone            Fault = ""
	FaultTimeout         Fault = "timeout"
	FaultInvalidData     Fault = "invalid_data"
	FaultCommandFailed   Fault = "command_failed"
	FaultTripped         Fault = "tripped"
	FaultOnButNotRunning Fault = "on_but_not_running"
	FaultOffButRunning   Fault = "off_but_running"
)

// Debounced reports whether the fault requires consecutive confirmation
// before being published.
func (f Fault) Debounced() bool {
	return f == FaultOnButNotRunning || f == FaultOffButRunning
}

// Message returns the operator-facing description of the fault.
func (f Fault) Message() string {
	switch f {
	case FaultNone:
		return ""
	case FaultTimeout:
		return "I/O timeout reading equipment points"
	case FaultInvalidData:
		return "invalid data from equipment point"
	case FaultCommandFailed:
		return "command was not accepted by the output"
	case FaultTripped:
		return "motor protection tripped"
	case FaultOnButNotRunning:
		return "commanded ON but motor is not running"
	case FaultOffButRunning:
		return "motor running while commanded OFF"
	default:
		return string(f)
	}
}

// State is the public snapshot of one equipment controller. Status calls
// always receive a copy, never the controller's live record.
type State struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Kind  Kind   `json:"kind"`

	// CommandedOn is the last intended ON/OFF state.
	CommandedOn bool `json:"commanded_on"`

	// ActualOn is the last observed coil state.
	ActualOn bool `json:"actual_on"`

	// IsRunning is the observed running feedback, or mirrors ActualOn when
	// the kind has no independent feedback input.
	IsRunning bool `json:"is_running"`

	// IsTripped is the observed motor-protection state.
	IsTripped bool `json:"is_tripped"`

	Mode Mode `json:"mode"`

	// Fault is the current fault, FaultNone when healthy.
	Fault Fault `json:"fault"`

	// ErrorMessage is the operator string derived from Fault.
	ErrorMessage string `json:"error_message,omitempty"`

	// Interlocked is display-only: a safety interlock currently blocks
	// starting. It gates future turn-on commands, not the poll cycle.
	Interlocked bool `json:"interlocked"`

	// ModeIsVirtual reports whether set_mode is honored for this equipment.
	ModeIsVirtual bool `json:"mode_is_virtual"`

	// Inverted marks normally-closed wiring. Informational.
	Inverted bool `json:"inverted"`

	// ErrorCount is the consecutive-detection counter for debounced faults.
	ErrorCount int `json:"error_count"`

	PollInterval time.Duration `json:"poll_interval"`
	LastPoll     time.Time     `json:"last_poll"`
}

// FaultEvent records one fault transition for the external event log.
type FaultEvent struct {
	ID        string    `json:"id"`
	Equipment string    `json:"equipment"`
	Old       Fault     `json:"old"`
	New       Fault     `json:"new"`
	Timestamp time.Time `json:"ts"`
}
