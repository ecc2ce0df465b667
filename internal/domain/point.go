// Package domain contains core business entities.
package domain

import (
	"fmt"
	"time"
)

// Backend identifies which I/O backend serves a point.
type Backend string

const (
	BackendModbusTCP Backend = "modbus-tcp"
	BackendModbusRTU Backend = "modbus-rtu"
	BackendS7        Backend = "s7"
	BackendOPCUA     Backend = "opcua"
	BackendVirtual   Backend = "virtual"
)

// PointRef identifies one logical I/O point and carries its
// physical-to-logical translation parameters.
type PointRef struct {
	// Backend selects the serving I/O backend.
	Backend Backend `json:"backend" mapstructure:"backend"`

	// Endpoint is the backend endpoint key (a configured PLC / bus / the
	// virtual store). Not used by the virtual backend.
	Endpoint string `json:"endpoint,omitempty" mapstructure:"endpoint"`

	// Address is the backend-specific point address:
	// modbus "coil:12" / "di:3", s7 "DB2.DBX0.3", opcua "ns=2;s=Fan1.Run",
	// virtual any unique key.
	Address string `json:"address" mapstructure:"address"`

	// Inverted applies logical inversion for normally-closed wiring. The
	// gateway reconciles it on both reads and writes so controllers always
	// see logical 1=ON.
	Inverted bool `json:"inverted,omitempty" mapstructure:"inverted"`

	// Analog marks an engineering-value point (temperature probe etc.).
	// Digital equipment points leave this false.
	Analog bool `json:"analog,omitempty" mapstructure:"analog"`

	// Scale and Offset convert raw analog readings to engineering units.
	Scale  float64 `json:"scale,omitempty" mapstructure:"scale"`
	Offset float64 `json:"offset,omitempty" mapstructure:"offset"`
}

// IsZero reports whether the reference is unconfigured (capability absent).
func (p PointRef) IsZero() bool {
	return p.Backend == "" && p.Address == ""
}

// Validate checks the reference is complete enough to route.
func (p PointRef) Validate() error {
	switch p.Backend {
	case BackendModbusTCP, BackendModbusRTU, BackendS7, BackendOPCUA:
		if p.Endpoint == "" {
			return fmt.Errorf("%w: point %q", ErrPointEndpointRequired, p.Address)
		}
	case BackendVirtual:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, p.Backend)
	}
	if p.Address == "" {
		return ErrPointAddressRequired
	}
	return nil
}

// IsVirtual reports whether the point lives in the software point store and
// may therefore be written by the controller (virtual mode switches).
func (p PointRef) IsVirtual() bool {
	return p.Backend == BackendVirtual
}

// PointValue is one logical reading from the gateway.
type PointValue struct {
	// State is the logical digital state: 0=OFF, 1=ON.
	State int `json:"state"`

	// Value is the engineering-unit value for analog points.
	Value float64 `json:"value,omitempty"`

	// Analog distinguishes the two variants.
	Analog bool `json:"analog,omitempty"`

	// Timestamp is when the backend produced the reading.
	Timestamp time.Time `json:"ts"`
}

// On reports the logical ON state of a digital reading.
func (v PointValue) On() bool {
	return v.State == 1
}

// CommandAction is a gateway command verb.
type CommandAction string

const (
	ActionOn  CommandAction = "on"
	ActionOff CommandAction = "off"
	ActionSet CommandAction = "set" // analog setpoint write
)
