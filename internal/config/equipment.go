// Package config provides equipment catalog loading.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

// EquipmentFile is the YAML structure of the equipment catalog.
type EquipmentFile struct {
	Equipment []EquipmentEntry `yaml:"equipment"`
}

// EquipmentEntry is one catalog row.
type EquipmentEntry struct {
	Name         string     `yaml:"name"`
	Title        string     `yaml:"title"`
	Kind         string     `yaml:"kind"`
	Inverted     bool       `yaml:"inverted,omitempty"`
	PollInterval string     `yaml:"poll_interval,omitempty"`
	OnOff        PointEntry `yaml:"on_off"`
	RunFeedback  PointEntry `yaml:"run_feedback,omitempty"`
	AutoManual   PointEntry `yaml:"auto_manual,omitempty"`
	Trip         PointEntry `yaml:"trip,omitempty"`
}

// PointEntry is one point reference in YAML.
type PointEntry struct {
	Backend  string  `yaml:"backend"`
	Endpoint string  `yaml:"endpoint,omitempty"`
	Address  string  `yaml:"address"`
	Inverted bool    `yaml:"inverted,omitempty"`
	Analog   bool    `yaml:"analog,omitempty"`
	Scale    float64 `yaml:"scale,omitempty"`
	Offset   float64 `yaml:"offset,omitempty"`
}

// LoadEquipment reads and validates the equipment catalog. Every entry must
// validate against its kind's capability set; one bad entry fails the load
// so a typo cannot silently drop a fan from the house.
func LoadEquipment(path string) ([]domain.Equipment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading equipment catalog: %w", err)
	}

	var file EquipmentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing equipment catalog: %w", err)
	}
	if len(file.Equipment) == 0 {
		return nil, fmt.Errorf("equipment catalog %q is empty", path)
	}

	seen := make(map[string]bool, len(file.Equipment))
	out := make([]domain.Equipment, 0, len(file.Equipment))
	for i, entry := range file.Equipment {
		eq, err := entry.toDomain()
		if err != nil {
			return nil, fmt.Errorf("equipment entry %d (%q): %w", i, entry.Name, err)
		}
		if seen[eq.Name] {
			return nil, fmt.Errorf("equipment entry %d: duplicate name %q", i, eq.Name)
		}
		seen[eq.Name] = true
		out = append(out, eq)
	}
	return out, nil
}

func (e EquipmentEntry) toDomain() (domain.Equipment, error) {
	eq := domain.Equipment{
		Name:        e.Name,
		Title:       e.Title,
		Kind:        domain.Kind(e.Kind),
		Inverted:    e.Inverted,
		OnOff:       e.OnOff.toDomain(),
		RunFeedback: e.RunFeedback.toDomain(),
		AutoManual:  e.AutoManual.toDomain(),
		Trip:        e.Trip.toDomain(),
	}

	if e.PollInterval != "" {
		d, err := time.ParseDuration(e.PollInterval)
		if err != nil {
			return domain.Equipment{}, fmt.Errorf("poll_interval %q: %w", e.PollInterval, err)
		}
		eq.PollInterval = d
	}

	if err := eq.Validate(); err != nil {
		return domain.Equipment{}, err
	}
	return eq, nil
}

func (p PointEntry) toDomain() domain.PointRef {
	return domain.PointRef{
		Backend:  domain.Backend(p.Backend),
		Endpoint: p.Endpoint,
		Address:  p.Address,
		Inverted: p.Inverted,
		Analog:   p.Analog,
		Scale:    p.Scale,
		Offset:   p.Offset,
	}
}
