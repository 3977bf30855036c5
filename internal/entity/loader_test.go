package entity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMappingYAML = `
entities:
  - entity_id: light_ceiling
    kind: light
    source_message: DC_DIMMER_STATUS_3
    source_instance: 1
    signal_field: load_status
    device_id: ceiling_light
    supports_brightness: true
    rvc:
      load_instance: 1
  - entity_id: bus_voltage
    kind: sensor
    source_message: DC_DIMMER_STATUS_3
    signal_field: voltage
    device_id: chassis
    transform: "voltage / 10"
`

func TestLoadMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testMappingYAML), 0o600))

	idx, err := LoadMapping(path)
	require.NoError(t, err)

	light, ok := idx.ByEntityID("light_ceiling")
	require.True(t, ok)
	assert.Equal(t, KindLight, light.Kind)
	require.NotNil(t, light.RVC.LoadInstance)
	assert.EqualValues(t, 1, *light.RVC.LoadInstance)

	sensor, ok := idx.ByEntityID("bus_voltage")
	require.True(t, ok)
	require.NotNil(t, sensor.Transform)
	out, err := sensor.Transform.Eval(map[string]float64{"voltage": 120})
	require.NoError(t, err)
	assert.Equal(t, 12.0, out)
}

func TestLoadMapping_MissingFile(t *testing.T) {
	_, err := LoadMapping(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
