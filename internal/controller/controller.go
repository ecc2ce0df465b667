// Package controller implements the per-equipment reconciliation engine: a
// periodic poll-and-reconcile cycle over the data point gateway, debounced
// fault detection, and the turn_on/turn_off/set_mode/status command surface
// exposed to supervisory callers.
package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
	"github.com/tankwanghow/pou-con-sub002/internal/metrics"
)

// DebounceThreshold is the number of consecutive qualifying polls before a
// state-mismatch fault is published. At the default 500ms poll interval this
// gives ~1.5s of grace for motor start-up lag.
const DebounceThreshold = 3

// Controller runs the reconciliation cycle for one piece of equipment.
//
// All state mutation happens under mu: the poll cycle and the command
// handlers are mutually exclusive per instance. Status reads come from a
// separately guarded snapshot so a hung gateway call delays only the next
// poll, never a status caller.
type Controller struct {
	eq     domain.Equipment
	caps   domain.Capabilities
	gw     domain.PointGateway
	oracle domain.InterlockOracle
	sink   domain.EventSink
	logger zerolog.Logger
	mreg   *metrics.Registry

	mu sync.Mutex // serializes reconcile and command handlers
	st record     // live state, owned exclusively by this controller

	snapMu   sync.RWMutex
	snapshot domain.State

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// record is the controller's private mutable state.
type record struct {
	commandedOn bool
	actualOn    bool
	isRunning   bool
	isTripped   bool
	mode        domain.Mode
	fault       domain.Fault
	interlocked bool
	errorCount  int
	lastPoll    time.Time
}

// New validates the equipment configuration and builds a controller.
// Misconfiguration (a capability declared present without its point) fails
// here, never at poll time.
func New(
	eq domain.Equipment,
	gw domain.PointGateway,
	oracle domain.InterlockOracle,
	sink domain.EventSink,
	logger zerolog.Logger,
	mreg *metrics.Registry,
) (*Controller, error) {
	if err := eq.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		eq:     eq,
		caps:   eq.Capabilities(),
		gw:     gw,
		oracle: oracle,
		sink:   sink,
		logger: logger.With().Str("component", "controller").Str("equipment", eq.Name).Logger(),
		mreg:   mreg,
	}
	c.st.mode = domain.ModeManual
	c.publishSnapshot()
	return c, nil
}

// Equipment returns the controller's configuration record.
func (c *Controller) Equipment() domain.Equipment {
	return c.eq
}

// Start runs the first reconciliation synchronously, then begins periodic
// polling. A caller invoking Status immediately after Start observes a
// post-poll snapshot, not a zero-initialized stub.
func (c *Controller) Start(ctx context.Context) error {
	if c.started.Load() {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started.Store(true)

	c.logger.Info().
		Str("kind", string(c.eq.Kind)).
		Dur("poll_interval", c.eq.PollInterval).
		Msg("Starting equipment controller")

	// Initial poll before the handle is considered ready.
	c.runCycle(runCtx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.eq.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.runCycle(runCtx)
			}
		}
	}()

	return nil
}

// Stop cancels polling and waits for any in-flight cycle to finish.
func (c *Controller) Stop() {
	if !c.started.Load() {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.started.Store(false)
	c.logger.Info().Msg("Equipment controller stopped")
}

// Status returns a copy of the current state. Safe for arbitrary concurrent
// callers at any time, including mid-poll.
func (c *Controller) Status() domain.State {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

// TurnOn requests the equipment be switched on. Silently ignored when
// software control is not permitted (physical panel switch in MANUAL) or
// when the interlock oracle blocks the start. Fire-and-forget: a command the
// device does not act on surfaces on a later poll as a debounced fault.
func (c *Controller) TurnOn(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.softwareControlAllowed() {
		c.logger.Debug().Msg("turn_on ignored: panel switch holds manual control")
		c.mreg.RecordCommand(c.eq.Name, "on", "ignored")
		return
	}

	if !c.oracle.MayStart(ctx, c.eq.Name) {
		c.st.interlocked = true
		c.publishSnapshot()
		c.logger.Warn().Msg("turn_on blocked by interlock")
		c.mreg.RecordInterlockBlock(c.eq.Name)
		c.mreg.RecordCommand(c.eq.Name, "on", "interlocked")
		return
	}
	c.st.interlocked = false

	if err := c.gw.Command(ctx, c.eq.OnOff, domain.ActionOn, 1); err != nil {
		c.logger.Error().Err(err).Msg("turn_on command failed")
		c.setFault(domain.FaultCommandFailed)
		c.publishSnapshot()
		c.mreg.RecordCommand(c.eq.Name, "on", "error")
		return
	}

	c.st.commandedOn = true
	c.publishSnapshot()
	c.logger.Info().Msg("Equipment commanded on")
	c.mreg.RecordCommand(c.eq.Name, "on", "ok")
}

// TurnOff requests the equipment be switched off. Never interlock-checked;
// stopping must always be possible.
func (c *Controller) TurnOff(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.softwareControlAllowed() {
		c.logger.Debug().Msg("turn_off ignored: panel switch holds manual control")
		c.mreg.RecordCommand(c.eq.Name, "off", "ignored")
		return
	}

	if err := c.gw.Command(ctx, c.eq.OnOff, domain.ActionOff, 0); err != nil {
		c.logger.Error().Err(err).Msg("turn_off command failed")
		c.setFault(domain.FaultCommandFailed)
		c.publishSnapshot()
		c.mreg.RecordCommand(c.eq.Name, "off", "error")
		return
	}

	c.st.commandedOn = false
	c.publishSnapshot()
	c.logger.Info().Msg("Equipment commanded off")
	c.mreg.RecordCommand(c.eq.Name, "off", "ok")
}

// SetMode writes the AUTO/MANUAL selector. Only meaningful for kinds whose
// selector is a virtual switch; always-manual and physical-panel kinds
// ignore it. Switching Manual to Auto forces commanded-off so automation
// never inherits a manual ON state.
func (c *Controller) SetMode(ctx context.Context, mode domain.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.caps.HasAutoManual || !c.caps.ModeIsVirtual {
		c.logger.Debug().Str("mode", string(mode)).Msg("set_mode ignored for this kind")
		c.mreg.RecordCommand(c.eq.Name, "set_mode", "ignored")
		return
	}
	if mode == c.st.mode {
		return
	}

	action := domain.ActionOff
	if mode == domain.ModeAuto {
		action = domain.ActionOn
	}
	if err := c.gw.Command(ctx, c.eq.AutoManual, action, 0); err != nil {
		c.logger.Error().Err(err).Str("mode", string(mode)).Msg("set_mode command failed")
		c.setFault(domain.FaultCommandFailed)
		c.publishSnapshot()
		c.mreg.RecordCommand(c.eq.Name, "set_mode", "error")
		return
	}

	prev := c.st.mode
	c.st.mode = mode
	if prev == domain.ModeManual && mode == domain.ModeAuto {
		c.autoOff(ctx)
	}
	c.publishSnapshot()
	c.logger.Info().Str("mode", string(mode)).Msg("Equipment mode changed")
	c.mreg.RecordCommand(c.eq.Name, "set_mode", "ok")
}

// softwareControlAllowed reports whether software commands may drive the
// on/off output. Only the physical-panel kind withdraws authority, and only
// while its switch sits in MANUAL.
func (c *Controller) softwareControlAllowed() bool {
	if c.caps.HasAutoManual && !c.caps.ModeIsVirtual {
		return c.st.mode == domain.ModeAuto
	}
	return true
}

// autoOff enforces the Manual-to-Auto policy: commanded state is cleared and,
// if the coil was observed on, a best-effort OFF is issued. Caller holds mu.
func (c *Controller) autoOff(ctx context.Context) {
	c.st.commandedOn = false
	if !c.st.actualOn {
		return
	}
	c.logger.Info().Msg("Mode switched manual->auto with output on, forcing off")
	if err := c.gw.Command(ctx, c.eq.OnOff, domain.ActionOff, 0); err != nil {
		// Best-effort: log and flag, do not abort the cycle.
		c.logger.Error().Err(err).Msg("Auto-off command failed")
		c.setFault(domain.FaultCommandFailed)
	}
}

// readings holds one cycle's raw point values.
type readings struct {
	onOff      domain.PointValue
	runFeed    domain.PointValue
	autoManual domain.PointValue
	trip       domain.PointValue
}

// runCycle executes one reconciliation cycle under the state lock.
func (c *Controller) runCycle(ctx context.Context) {
	started := time.Now()

	c.mu.Lock()
	c.reconcile(ctx)
	status := "success"
	if c.st.fault == domain.FaultTimeout || c.st.fault == domain.FaultInvalidData {
		status = "read_error"
	}
	c.mu.Unlock()

	c.mreg.RecordPoll(c.eq.Name, status, time.Since(started).Seconds())
}

// reconcile is the poll-and-reconcile algorithm. Caller holds mu.
//
// Read everything first: a failed read of any configured point aborts the
// cycle before any field is updated, so a partial set of good reads never
// leaks into the state (stale-but-labeled-unhealthy, never half fresh).
func (c *Controller) reconcile(ctx context.Context) {
	r, err := c.readPoints(ctx)
	if err != nil {
		fault := domain.FaultTimeout
		errType := "timeout"
		if errors.Is(err, domain.ErrPointInvalid) {
			fault = domain.FaultInvalidData
			errType = "invalid_data"
		}
		c.logger.Warn().Err(err).Msg("Point read failed, aborting cycle")
		c.mreg.RecordPollError(c.eq.Name, errType)
		c.setFault(fault)
		c.st.lastPoll = time.Now()
		c.publishSnapshot()
		return
	}

	prevMode := c.st.mode

	c.st.actualOn = r.onOff.On()
	if c.caps.HasRunFeedback {
		c.st.isRunning = r.runFeed.On()
	} else {
		c.st.isRunning = c.st.actualOn
	}
	if c.caps.HasAutoManual {
		if r.autoManual.On() {
			c.st.mode = domain.ModeAuto
		} else {
			c.st.mode = domain.ModeManual
		}
	} else {
		c.st.mode = domain.ModeManual
	}
	if c.caps.HasTripSignal {
		c.st.isTripped = r.trip.On()
	}

	// Mode edge: an operator flipping a panel (or virtual) switch from
	// MANUAL into AUTO must not hand automation a running machine.
	commandFailed := false
	if prevMode == domain.ModeManual && c.st.mode == domain.ModeAuto {
		before := c.st.fault
		c.autoOff(ctx)
		commandFailed = c.st.fault == domain.FaultCommandFailed && before != domain.FaultCommandFailed
	}

	c.detectFaults(commandFailed)

	// Interlock refresh is display-only; it gates future turn_on calls.
	c.st.interlocked = !c.oracle.MayStart(ctx, c.eq.Name)

	c.st.lastPoll = time.Now()
	c.publishSnapshot()
}

// readPoints reads every configured point. Any error aborts the rest.
func (c *Controller) readPoints(ctx context.Context) (readings, error) {
	var r readings
	var err error

	if r.onOff, err = c.gw.Read(ctx, c.eq.OnOff); err != nil {
		return r, err
	}
	if c.caps.HasRunFeedback {
		if r.runFeed, err = c.gw.Read(ctx, c.eq.RunFeedback); err != nil {
			return r, err
		}
	}
	if c.caps.HasAutoManual {
		if r.autoManual, err = c.gw.Read(ctx, c.eq.AutoManual); err != nil {
			return r, err
		}
	}
	if c.caps.HasTripSignal {
		if r.trip, err = c.gw.Read(ctx, c.eq.Trip); err != nil {
			return r, err
		}
	}
	return r, nil
}

// detectFaults evaluates the fault ladder for one cycle. Caller holds mu.
//
// Mismatch faults only count while the controller is the authority over the
// device: a physical panel switch in MANUAL bypasses software entirely, so
// commanded-vs-actual comparisons are meaningless there. Immediate faults
// (Tripped here; Timeout/InvalidData upstream) override debounced ones.
func (c *Controller) detectFaults(commandFailed bool) {
	next := domain.FaultNone

	switch {
	case !c.softwareControlAllowed():
		c.st.errorCount = 0

	case c.caps.HasTripSignal && c.st.isTripped:
		next = domain.FaultTripped
		c.st.errorCount = 0

	default:
		qualifying := domain.FaultNone
		if c.st.commandedOn && !c.st.isRunning {
			qualifying = domain.FaultOnButNotRunning
		} else if !c.st.commandedOn && c.st.isRunning {
			qualifying = domain.FaultOffButRunning
		}

		if qualifying == domain.FaultNone {
			c.st.errorCount = 0
		} else {
			if c.st.errorCount < DebounceThreshold {
				c.st.errorCount++
			}
			if c.st.errorCount >= DebounceThreshold {
				next = qualifying
			}
		}
	}

	if next == domain.FaultNone && commandFailed {
		next = domain.FaultCommandFailed
	}

	c.setFault(next)
}

// setFault publishes a fault value change, emitting a transition event for
// the audit log. Caller holds mu.
func (c *Controller) setFault(next domain.Fault) {
	if next == c.st.fault {
		return
	}
	old := c.st.fault
	c.st.fault = next

	c.logger.Info().
		Str("old", string(old)).
		Str("new", string(next)).
		Msg("Fault transition")
	c.mreg.RecordFaultTransition(c.eq.Name, string(next), next != domain.FaultNone)

	if c.sink != nil {
		c.sink.FaultTransition(domain.FaultEvent{
			ID:        uuid.NewString(),
			Equipment: c.eq.Name,
			Old:       old,
			New:       next,
			Timestamp: time.Now(),
		})
	}
}

// publishSnapshot copies the live record into the read-side snapshot.
// Caller holds mu.
func (c *Controller) publishSnapshot() {
	s := domain.State{
		Name:          c.eq.Name,
		Title:         c.eq.Title,
		Kind:          c.eq.Kind,
		CommandedOn:   c.st.commandedOn,
		ActualOn:      c.st.actualOn,
		IsRunning:     c.st.isRunning,
		IsTripped:     c.st.isTripped,
		Mode:          c.st.mode,
		Fault:         c.st.fault,
		ErrorMessage:  c.st.fault.Message(),
		Interlocked:   c.st.interlocked,
		ModeIsVirtual: c.caps.ModeIsVirtual && c.caps.HasAutoManual,
		Inverted:      c.eq.Inverted,
		ErrorCount:    c.st.errorCount,
		PollInterval:  c.eq.PollInterval,
		LastPoll:      c.st.lastPoll,
	}

	c.snapMu.Lock()
	c.snapshot = s
	c.snapMu.Unlock()
}
