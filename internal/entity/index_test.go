package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u8(v uint8) *uint8 { return &v }

func TestBuild_RejectsDuplicateEntityID(t *testing.T) {
	descs := []Descriptor{
		{EntityID: "light_ceiling", Kind: KindLight, SourceMessage: "DC_DIMMER_STATUS_3", SourceInstance: u8(1)},
		{EntityID: "light_ceiling", Kind: KindLight, SourceMessage: "DC_DIMMER_STATUS_3", SourceInstance: u8(2)},
	}
	_, err := Build(descs)
	assert.Error(t, err)
}

func TestLookup_ExactInstanceAndWildcard(t *testing.T) {
	exact := Descriptor{EntityID: "light_ceiling", Kind: KindLight, SourceMessage: "DC_DIMMER_STATUS_3", SourceInstance: u8(1)}
	wildcard := Descriptor{EntityID: "bus_voltage", Kind: KindSensor, SourceMessage: "DC_DIMMER_STATUS_3"}
	idx, err := Build([]Descriptor{exact, wildcard})
	require.NoError(t, err)

	got := idx.Lookup("DC_DIMMER_STATUS_3", 1)
	require.Len(t, got, 2)

	got = idx.Lookup("DC_DIMMER_STATUS_3", 2)
	require.Len(t, got, 1)
	assert.Equal(t, "bus_voltage", got[0].EntityID)
}

func TestByEntityID(t *testing.T) {
	idx, err := Build([]Descriptor{{EntityID: "x", Kind: KindSensor, SourceMessage: "M"}})
	require.NoError(t, err)

	d, ok := idx.ByEntityID("x")
	require.True(t, ok)
	assert.Equal(t, KindSensor, d.Kind)

	_, ok = idx.ByEntityID("missing")
	assert.False(t, ok)
}
