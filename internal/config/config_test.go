package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	// Run from an empty directory so a developer's config.yaml cannot leak in.
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "pou/events", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "", cfg.Interlock.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Gateway.PointTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Polling.DefaultInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			HTTP:    HTTPConfig{Port: 8080},
			Polling: PollingConfig{DefaultInterval: 500 * time.Millisecond},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := base()
		cfg.HTTP.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("mqtt enabled without broker", func(t *testing.T) {
		cfg := base()
		cfg.MQTT.Enabled = true
		assert.Error(t, cfg.Validate())
	})

	t.Run("modbus endpoint missing address", func(t *testing.T) {
		cfg := base()
		cfg.Gateway.Modbus = map[string]ModbusEndpoint{"plc1": {SlaveID: 1}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("modbus slave id out of range", func(t *testing.T) {
		cfg := base()
		cfg.Gateway.Modbus = map[string]ModbusEndpoint{"plc1": {Address: "h:502", SlaveID: 300}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("s7 endpoint missing address", func(t *testing.T) {
		cfg := base()
		cfg.Gateway.S7 = map[string]S7Endpoint{"plc2": {}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("opcua endpoint missing url", func(t *testing.T) {
		cfg := base()
		cfg.Gateway.OPCUA = map[string]OPCUAEndpoint{"srv1": {}}
		assert.Error(t, cfg.Validate())
	})
}

const sampleCatalog = `
equipment:
  - name: fan-1
    title: Tunnel Fan 1
    kind: fan
    poll_interval: 250ms
    on_off: {backend: modbus-tcp, endpoint: plc1, address: "coil:0"}
    run_feedback: {backend: modbus-tcp, endpoint: plc1, address: "di:0"}
    auto_manual: {backend: virtual, address: "fan-1.am"}
    trip: {backend: modbus-tcp, endpoint: plc1, address: "di:1", inverted: true}
  - name: scraper-1
    title: Dung Scraper
    kind: dung_scraper
    on_off: {backend: s7, endpoint: plc2, address: "DB2.DBX0.0"}
    run_feedback: {backend: s7, endpoint: plc2, address: "DB2.DBX0.1"}
    trip: {backend: s7, endpoint: plc2, address: "DB2.DBX0.2"}
`

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "equipment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEquipment(t *testing.T) {
	eqs, err := LoadEquipment(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)
	require.Len(t, eqs, 2)

	fan := eqs[0]
	assert.Equal(t, "fan-1", fan.Name)
	assert.Equal(t, domain.KindFan, fan.Kind)
	assert.Equal(t, 250*time.Millisecond, fan.PollInterval)
	assert.Equal(t, domain.BackendModbusTCP, fan.OnOff.Backend)
	assert.Equal(t, "plc1", fan.OnOff.Endpoint)
	assert.True(t, fan.Trip.Inverted)

	scraper := eqs[1]
	assert.Equal(t, domain.KindDungScraper, scraper.Kind)
	assert.Equal(t, domain.DefaultPollInterval, scraper.PollInterval, "omitted interval defaults")
	assert.True(t, scraper.AutoManual.IsZero())
}

func TestLoadEquipment_Failures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadEquipment(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("empty catalog", func(t *testing.T) {
		_, err := LoadEquipment(writeCatalog(t, "equipment: []\n"))
		assert.Error(t, err)
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := LoadEquipment(writeCatalog(t, `
equipment:
  - name: light-1
    kind: light
    on_off: {backend: virtual, address: "l1"}
    auto_manual: {backend: virtual, address: "l1.am"}
  - name: light-1
    kind: light
    on_off: {backend: virtual, address: "l2"}
    auto_manual: {backend: virtual, address: "l2.am"}
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate name")
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := LoadEquipment(writeCatalog(t, `
equipment:
  - name: mystery-1
    kind: centrifuge
    on_off: {backend: virtual, address: "m1"}
`))
		assert.ErrorIs(t, err, domain.ErrUnknownKind)
	})

	t.Run("missing capability point", func(t *testing.T) {
		_, err := LoadEquipment(writeCatalog(t, `
equipment:
  - name: fan-1
    kind: fan
    on_off: {backend: virtual, address: "f1"}
    auto_manual: {backend: virtual, address: "f1.am"}
    trip: {backend: virtual, address: "f1.trip"}
`))
		assert.ErrorIs(t, err, domain.ErrRunFeedbackPointRequired)
	})

	t.Run("bad poll interval", func(t *testing.T) {
		_, err := LoadEquipment(writeCatalog(t, `
equipment:
  - name: light-1
    kind: light
    poll_interval: fast
    on_off: {backend: virtual, address: "l1"}
    auto_manual: {backend: virtual, address: "l1.am"}
`))
		assert.Error(t, err)
	})
}
