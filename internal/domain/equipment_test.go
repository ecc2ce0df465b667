package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

func onOff() domain.PointRef {
	return domain.PointRef{Backend: domain.BackendModbusTCP, Endpoint: "plc-1", Address: "coil:0"}
}

func input(addr string) domain.PointRef {
	return domain.PointRef{Backend: domain.BackendModbusTCP, Endpoint: "plc-1", Address: addr}
}

func TestEquipment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		eq      domain.Equipment
		wantErr error
	}{
		{
			name: "valid pump",
			eq: domain.Equipment{
				Name:        "pump-1",
				Title:       "Water Pump 1",
				Kind:        domain.KindPump,
				OnOff:       onOff(),
				RunFeedback: input("di:0"),
				AutoManual:  domain.PointRef{Backend: domain.BackendVirtual, Address: "pump-1/am"},
				Trip:        input("di:1"),
			},
			wantErr: nil,
		},
		{
			name: "valid light without feedback or trip",
			eq: domain.Equipment{
				Name:       "light-row-1",
				Kind:       domain.KindLight,
				OnOff:      onOff(),
				AutoManual: domain.PointRef{Backend: domain.BackendVirtual, Address: "light-row-1/am"},
			},
			wantErr: nil,
		},
		{
			name:    "missing name",
			eq:      domain.Equipment{Kind: domain.KindFan, OnOff: onOff()},
			wantErr: domain.ErrNameRequired,
		},
		{
			name:    "unknown kind",
			eq:      domain.Equipment{Name: "x", Kind: "belt_sander", OnOff: onOff()},
			wantErr: domain.ErrUnknownKind,
		},
		{
			name:    "missing on/off point",
			eq:      domain.Equipment{Name: "fan-1", Kind: domain.KindLight},
			wantErr: domain.ErrOnOffPointRequired,
		},
		{
			name: "fan missing run feedback",
			eq: domain.Equipment{
				Name:       "fan-1",
				Kind:       domain.KindFan,
				OnOff:      onOff(),
				AutoManual: domain.PointRef{Backend: domain.BackendVirtual, Address: "fan-1/am"},
				Trip:       input("di:2"),
			},
			wantErr: domain.ErrRunFeedbackPointRequired,
		},
		{
			name: "fan missing trip point",
			eq: domain.Equipment{
				Name:        "fan-1",
				Kind:        domain.KindFan,
				OnOff:       onOff(),
				RunFeedback: input("di:0"),
				AutoManual:  domain.PointRef{Backend: domain.BackendVirtual, Address: "fan-1/am"},
			},
			wantErr: domain.ErrTripPointRequired,
		},
		{
			name: "always-manual kind rejects auto/manual point",
			eq: domain.Equipment{
				Name:        "scraper-1",
				Kind:        domain.KindDungScraper,
				OnOff:       onOff(),
				RunFeedback: input("di:0"),
				Trip:        input("di:1"),
				AutoManual:  domain.PointRef{Backend: domain.BackendVirtual, Address: "scraper-1/am"},
			},
			wantErr: domain.ErrUnexpectedAutoManualPoint,
		},
		{
			name: "poll interval too short",
			eq: domain.Equipment{
				Name:         "light-1",
				Kind:         domain.KindLight,
				OnOff:        onOff(),
				AutoManual:   domain.PointRef{Backend: domain.BackendVirtual, Address: "light-1/am"},
				PollInterval: 20 * time.Millisecond,
			},
			wantErr: domain.ErrPollIntervalTooShort,
		},
		{
			name: "point without endpoint",
			eq: domain.Equipment{
				Name:       "light-1",
				Kind:       domain.KindLight,
				OnOff:      domain.PointRef{Backend: domain.BackendModbusTCP, Address: "coil:0"},
				AutoManual: domain.PointRef{Backend: domain.BackendVirtual, Address: "light-1/am"},
			},
			wantErr: domain.ErrPointEndpointRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.eq.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Equipment.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEquipment_Validate_DefaultPollInterval(t *testing.T) {
	eq := domain.Equipment{
		Name:       "light-1",
		Kind:       domain.KindLight,
		OnOff:      onOff(),
		AutoManual: domain.PointRef{Backend: domain.BackendVirtual, Address: "light-1/am"},
	}
	if err := eq.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if eq.PollInterval != domain.DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", eq.PollInterval, domain.DefaultPollInterval)
	}
}

func TestCapabilitiesFor(t *testing.T) {
	tests := []struct {
		kind domain.Kind
		want domain.Capabilities
	}{
		{domain.KindFan, domain.Capabilities{HasRunFeedback: true, HasAutoManual: true, HasTripSignal: true, ModeIsVirtual: true}},
		{domain.KindPanelFan, domain.Capabilities{HasRunFeedback: true, HasAutoManual: true, HasTripSignal: true, ModeIsVirtual: false}},
		{domain.KindLight, domain.Capabilities{HasAutoManual: true, ModeIsVirtual: true}},
		{domain.KindDungScraper, domain.Capabilities{HasRunFeedback: true, HasTripSignal: true, AlwaysManual: true}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := domain.CapabilitiesFor(tt.kind)
			if err != nil {
				t.Fatalf("CapabilitiesFor(%q) error = %v", tt.kind, err)
			}
			if got != tt.want {
				t.Errorf("CapabilitiesFor(%q) = %+v, want %+v", tt.kind, got, tt.want)
			}
		})
	}

	if _, err := domain.CapabilitiesFor("toaster"); !errors.Is(err, domain.ErrUnknownKind) {
		t.Errorf("CapabilitiesFor(unknown) error = %v, want ErrUnknownKind", err)
	}
}

func TestFault_Debounced(t *testing.T) {
	debounced := []domain.Fault{domain.FaultOnButNotRunning, domain.FaultOffButRunning}
	immediate := []domain.Fault{domain.FaultTimeout, domain.FaultInvalidData, domain.FaultTripped, domain.FaultCommandFailed, domain.FaultNone}

	for _, f := range debounced {
		if !f.Debounced() {
			t.Errorf("Fault(%q).Debounced() = false, want true", f)
		}
	}
	for _, f := range immediate {
		if f.Debounced() {
			t.Errorf("Fault(%q).Debounced() = true, want false", f)
		}
	}
}

func TestFault_Message(t *testing.T) {
	if domain.FaultNone.Message() != "" {
		t.Errorf("FaultNone.Message() = %q, want empty", domain.FaultNone.Message())
	}
	for _, f := range []domain.Fault{
		domain.FaultTimeout, domain.FaultInvalidData, domain.FaultCommandFailed,
		domain.FaultTripped, domain.FaultOnButNotRunning, domain.FaultOffButRunning,
	} {
		if f.Message() == "" {
			t.Errorf("Fault(%q).Message() is empty", f)
		}
	}
}
