package rvcdecode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/serebryakov7/rvcbridge/internal/rvcspec"
)

// specDocument mirrors rvcspec's unexported schemaDocument shape so
// tests can write a spec file without reaching into that package's
// internals.
type specDocument struct {
	DGNs  []rvcspec.DgnDef  `yaml:"dgns"`
	Enums []rvcspec.EnumDef `yaml:"enums"`
}

func mustRegistry(t *testing.T, dgnDefs []rvcspec.DgnDef, enums []rvcspec.EnumDef) *rvcspec.Registry {
	t.Helper()
	raw, err := yaml.Marshal(specDocument{DGNs: dgnDefs, Enums: enums})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	reg, err := rvcspec.Load(path)
	require.NoError(t, err)
	return reg
}

func TestParseIdentifier(t *testing.T) {
	// priority 6, DGN 0x1FEDB, source 0x63 (99): the DC-dimmer command id.
	arbID := uint32(0x19FEDB63)
	priority, dgn, source := ParseIdentifier(arbID)
	assert.EqualValues(t, 6, priority)
	assert.EqualValues(t, 0x1FEDB, dgn)
	assert.EqualValues(t, 0x63, source)
}

func TestDecode_UnknownDGN(t *testing.T) {
	reg := mustRegistry(t, nil, nil)
	d := New(reg)
	_, err := d.Decode(RawFrame{ArbID: 0x19FEDB63, Data: make([]byte, 8)})
	assert.ErrorIs(t, err, ErrUnknownDGN)
}

func TestDecode_InstanceFallsBackToFirstPayloadByte(t *testing.T) {
	reg := mustRegistry(t, []rvcspec.DgnDef{
		{DGN: 0x1FEDB, Name: "DC_DIMMER_COMMAND_2", Signals: []rvcspec.SignalDef{
			{Name: "brightness", ByteOffset: 2, BitLength: 8, Kind: rvcspec.KindUint},
		}},
	}, nil)
	d := New(reg)
	msg, err := d.Decode(RawFrame{ArbID: 0x19FEDB63, Data: []byte{5, 0xFF, 200, 0, 0, 0, 0, 0}})
	require.NoError(t, err)
	assert.EqualValues(t, 5, msg.Instance)
	assert.Equal(t, "DC_DIMMER_COMMAND_2", msg.DGNName)
	v, ok := msg.Signals["brightness"]
	require.True(t, ok)
	assert.EqualValues(t, 200, v.Int)
}

func TestDecode_TruncatedFrameIsInvalid(t *testing.T) {
	reg := mustRegistry(t, []rvcspec.DgnDef{
		{DGN: 1, Name: "X", Signals: []rvcspec.SignalDef{
			{Name: "f", ByteOffset: 6, BitLength: 16, Kind: rvcspec.KindUint},
		}},
	}, nil)
	d := New(reg)
	// 7 data bytes: the declared signal needs bytes 6..7.
	_, err := d.Decode(RawFrame{ArbID: 0x18000100, Data: []byte{0, 0, 0, 0, 0, 0, 0}, Length: 7})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}
