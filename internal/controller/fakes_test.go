package controller

import (
	"context"
	"sync"
	"time"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

// fakeGateway is an in-memory PointGateway keyed by point address. Writes
// are applied to the store by default so a commanded coil reads back on,
// mirroring real equipment; tests flip applyWrites off to simulate outputs
// that ignore commands.
type fakeGateway struct {
	mu          sync.Mutex
	states      map[string]int
	readErrs    map[string]error
	cmdErrs     map[string]error
	commands    []issuedCommand
	applyWrites bool
}

type issuedCommand struct {
	address string
	action  domain.CommandAction
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		states:      make(map[string]int),
		readErrs:    make(map[string]error),
		cmdErrs:     make(map[string]error),
		applyWrites: true,
	}
}

func (g *fakeGateway) set(address string, state int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[address] = state
}

func (g *fakeGateway) failRead(address string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.readErrs, address)
		return
	}
	g.readErrs[address] = err
}

func (g *fakeGateway) Read(_ context.Context, ref domain.PointRef) (domain.PointValue, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.readErrs[ref.Address]; err != nil {
		return domain.PointValue{}, err
	}
	return domain.PointValue{State: g.states[ref.Address], Timestamp: time.Now()}, nil
}

func (g *fakeGateway) Command(_ context.Context, ref domain.PointRef, action domain.CommandAction, _ float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commands = append(g.commands, issuedCommand{address: ref.Address, action: action})
	if err := g.cmdErrs[ref.Address]; err != nil {
		return err
	}
	if g.applyWrites {
		switch action {
		case domain.ActionOn:
			g.states[ref.Address] = 1
		case domain.ActionOff:
			g.states[ref.Address] = 0
		}
	}
	return nil
}

func (g *fakeGateway) commandsFor(address string) []domain.CommandAction {
	g.mu.Lock()
	defer g.mu.Unlock()
	var actions []domain.CommandAction
	for _, c := range g.commands {
		if c.address == address {
			actions = append(actions, c.action)
		}
	}
	return actions
}

// stubOracle answers every interlock query with a fixed verdict.
type stubOracle struct {
	mu    sync.Mutex
	allow bool
}

func (o *stubOracle) MayStart(context.Context, string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.allow
}

func (o *stubOracle) setAllow(allow bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.allow = allow
}

// recordSink captures fault transitions in order.
type recordSink struct {
	mu     sync.Mutex
	events []domain.FaultEvent
}

func (s *recordSink) FaultTransition(ev domain.FaultEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) all() []domain.FaultEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.FaultEvent, len(s.events))
	copy(out, s.events)
	return out
}

const (
	addrCoil = "coil:0"
	addrRun  = "di:0"
	addrTrip = "di:1"
	addrAM   = "am"
)

func pointAt(address string) domain.PointRef {
	return domain.PointRef{Backend: domain.BackendVirtual, Address: address}
}

func pumpEquipment() domain.Equipment {
	return domain.Equipment{
		Name:        "pump-1",
		Title:       "Water Pump 1",
		Kind:        domain.KindPump,
		OnOff:       pointAt(addrCoil),
		RunFeedback: pointAt(addrRun),
		AutoManual:  pointAt(addrAM),
		Trip:        pointAt(addrTrip),
	}
}

func fanEquipment() domain.Equipment {
	eq := pumpEquipment()
	eq.Name = "fan-1"
	eq.Title = "Tunnel Fan 1"
	eq.Kind = domain.KindFan
	return eq
}

func panelFanEquipment() domain.Equipment {
	eq := pumpEquipment()
	eq.Name = "fan-panel-1"
	eq.Title = "Panel Fan 1"
	eq.Kind = domain.KindPanelFan
	return eq
}

func lightEquipment() domain.Equipment {
	return domain.Equipment{
		Name:       "light-1",
		Title:      "House Lights",
		Kind:       domain.KindLight,
		OnOff:      pointAt(addrCoil),
		AutoManual: pointAt(addrAM),
	}
}

func scraperEquipment() domain.Equipment {
	return domain.Equipment{
		Name:        "scraper-1",
		Title:       "Dung Scraper 1",
		Kind:        domain.KindDungScraper,
		OnOff:       pointAt(addrCoil),
		RunFeedback: pointAt(addrRun),
		Trip:        pointAt(addrTrip),
	}
}
