// Package domain contains the core business entities and interfaces for the
// equipment controller. These are backend-agnostic: controllers only ever see
// logical point values (1=ON / 0=OFF, engineering units for analogs).
package domain

import (
	"fmt"
	"time"
)

// Mode is the operating mode of a piece of equipment.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Kind identifies an equipment family. Each kind maps to a fixed capability
// set; the reconciliation engine is a single implementation parameterized by
// these capabilities rather than one state machine per kind.
type Kind string

const (
	KindFan         Kind = "fan"
	KindPanelFan    Kind = "panel_fan" // physical 3-way AUTO/OFF/MANUAL panel switch
	KindPump        Kind = "pump"
	KindLight       Kind = "light"
	KindHeater      Kind = "heater"
	KindFeeder      Kind = "feeder"
	KindAuger       Kind = "auger"
	KindFogger      Kind = "fogger"
	KindDungScraper Kind = "dung_scraper"
)

// Capabilities selects which optional I/O branches of the reconciliation
// cycle apply to an equipment kind.
type Capabilities struct {
	// HasRunFeedback indicates an independent running-feedback input exists.
	// Without it, is_running mirrors the commanded coil state.
	HasRunFeedback bool

	// HasAutoManual indicates an AUTO/MANUAL selector point exists.
	HasAutoManual bool

	// HasTripSignal indicates a motor-protection trip input exists.
	HasTripSignal bool

	// AlwaysManual locks the equipment in Manual; it never enters Auto.
	AlwaysManual bool

	// ModeIsVirtual is true when the AUTO/MANUAL selector is a software
	// switch the controller may write. False means a read-only physical
	// panel switch: while it sits in MANUAL the controller has no
	// authority over the device and must not write the coil.
	ModeIsVirtual bool
}

// kindCapabilities is the per-kind capability catalog.
var kindCapabilities = map[Kind]Capabilities{
	KindFan:         {HasRunFeedback: true, HasAutoManual: true, HasTripSignal: true, ModeIsVirtual: true},
	KindPanelFan:    {HasRunFeedback: true, HasAutoManual: true, HasTripSignal: true, ModeIsVirtual: false},
	KindPump:        {HasRunFeedback: true, HasAutoManual: true, HasTripSignal: true, ModeIsVirtual: true},
	KindLight:       {HasAutoManual: true, ModeIsVirtual: true},
	KindHeater:      {HasAutoManual: true, ModeIsVirtual: true},
	KindFeeder:      {HasRunFeedback: true, HasAutoManual: true, HasTripSignal: true, ModeIsVirtual: true},
	KindAuger:       {HasRunFeedback: true, HasAutoManual: true, HasTripSignal: true, ModeIsVirtual: true},
	KindFogger:      {HasAutoManual: true, ModeIsVirtual: true},
	KindDungScraper: {HasRunFeedback: true, HasTripSignal: true, AlwaysManual: true},
}

// CapabilitiesFor returns the capability set for a kind.
func CapabilitiesFor(kind Kind) (Capabilities, error) {
	caps, ok := kindCapabilities[kind]
	if !ok {
		return Capabilities{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return caps, nil
}

// Kinds returns all known equipment kinds.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindCapabilities))
	for k := range kindCapabilities {
		kinds = append(kinds, k)
	}
	return kinds
}

// Equipment is the stored configuration for one controller instance.
type Equipment struct {
	// Name is the unique equipment instance key.
	Name string `json:"name" mapstructure:"name"`

	// Title is the display label, passed through to status snapshots.
	Title string `json:"title" mapstructure:"title"`

	// Kind selects the capability set.
	Kind Kind `json:"kind" mapstructure:"kind"`

	// OnOff is the logical digital output controlling the device.
	OnOff PointRef `json:"on_off" mapstructure:"on_off"`

	// RunFeedback confirms the motor is actually turning. Required when
	// the kind has running feedback, forbidden otherwise.
	RunFeedback PointRef `json:"run_feedback" mapstructure:"run_feedback"`

	// AutoManual selects AUTO (1) vs MANUAL (0).
	AutoManual PointRef `json:"auto_manual" mapstructure:"auto_manual"`

	// Trip signals a motor-protection trip.
	Trip PointRef `json:"trip" mapstructure:"trip"`

	// Inverted marks normally-closed coil wiring (failsafe-on-power-loss).
	// Translation happens in the gateway; this flag is informational.
	Inverted bool `json:"inverted" mapstructure:"inverted"`

	// PollInterval is how often the reconciliation cycle runs.
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
}

// DefaultPollInterval is applied when an equipment entry omits one.
const DefaultPollInterval = 500 * time.Millisecond

// MinPollInterval guards against intervals that would swamp the bus.
const MinPollInterval = 100 * time.Millisecond

// Capabilities returns the capability set for the equipment's kind.
// Unknown kinds yield the zero value; Validate catches them first.
func (e *Equipment) Capabilities() Capabilities {
	return kindCapabilities[e.Kind]
}

// Validate checks the equipment configuration against its kind's capability
// set. A capability declared present with no point configured is a
// programming-level misconfiguration and must fail at construction time,
// never at poll time.
func (e *Equipment) Validate() error {
	if e.Name == "" {
		return ErrNameRequired
	}
	caps, err := CapabilitiesFor(e.Kind)
	if err != nil {
		return err
	}
	if e.PollInterval == 0 {
		e.PollInterval = DefaultPollInterval
	}
	if e.PollInterval < MinPollInterval {
		return fmt.Errorf("%w: %s", ErrPollIntervalTooShort, e.PollInterval)
	}

	if e.OnOff.IsZero() {
		return fmt.Errorf("%w: equipment %q", ErrOnOffPointRequired, e.Name)
	}
	if caps.HasRunFeedback && e.RunFeedback.IsZero() {
		return fmt.Errorf("%w: equipment %q", ErrRunFeedbackPointRequired, e.Name)
	}
	if caps.HasAutoManual && e.AutoManual.IsZero() {
		return fmt.Errorf("%w: equipment %q", ErrAutoManualPointRequired, e.Name)
	}
	if caps.AlwaysManual && !e.AutoManual.IsZero() {
		return fmt.Errorf("%w: equipment %q is always-manual", ErrUnexpectedAutoManualPoint, e.Name)
	}
	if caps.HasTripSignal && e.Trip.IsZero() {
		return fmt.Errorf("%w: equipment %q", ErrTripPointRequired, e.Name)
	}

	for _, ref := range []PointRef{e.OnOff, e.RunFeedback, e.AutoManual, e.Trip} {
		if ref.IsZero() {
			continue
		}
		if err := ref.Validate(); err != nil {
			return fmt.Errorf("equipment %q: %w", e.Name, err)
		}
	}
	return nil
}
