package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serebryakov7/rvcbridge/internal/rvcdecode"
	"github.com/serebryakov7/rvcbridge/internal/rvcspec"
)

func TestProject_Sensor(t *testing.T) {
	idx, err := Build([]Descriptor{
		{EntityID: "coolant_temp", Kind: KindSensor, SourceMessage: "ENGINE_TEMP", SignalField: "temp"},
	})
	require.NoError(t, err)
	p := NewProjector(idx)

	msg := rvcdecode.DecodedMessage{
		DGNName:  "ENGINE_TEMP",
		Instance: 0,
		Signals:  map[string]rvcspec.Value{"temp": {Kind: rvcspec.ValueFloat, Float: 185.0}},
	}
	events := p.Project(msg)
	require.Len(t, events, 1)
	assert.Equal(t, "coolant_temp", events[0].EntityID)
	assert.Equal(t, DefaultChannel, events[0].Channel)
	assert.Equal(t, 185.0, events[0].Value)
}

func TestProject_SensorSkipsUnavailable(t *testing.T) {
	idx, err := Build([]Descriptor{
		{EntityID: "coolant_temp", Kind: KindSensor, SourceMessage: "ENGINE_TEMP", SignalField: "temp"},
	})
	require.NoError(t, err)
	p := NewProjector(idx)

	msg := rvcdecode.DecodedMessage{
		DGNName: "ENGINE_TEMP",
		Signals: map[string]rvcspec.Value{"temp": {Kind: rvcspec.ValueUnavailable}},
	}
	assert.Empty(t, p.Project(msg))
}

func TestProject_BinarySensorOnOff(t *testing.T) {
	idx, err := Build([]Descriptor{
		{EntityID: "door_open", Kind: KindBinarySensor, SourceMessage: "DOOR_STATUS", SignalField: "state", OnLabel: "open", OffLabel: "closed"},
	})
	require.NoError(t, err)
	p := NewProjector(idx)

	onMsg := rvcdecode.DecodedMessage{DGNName: "DOOR_STATUS", Signals: map[string]rvcspec.Value{"state": {Kind: rvcspec.ValueEnumLabel, Label: "open"}}}
	events := p.Project(onMsg)
	require.Len(t, events, 1)
	assert.Equal(t, "ON", events[0].Value)

	offMsg := rvcdecode.DecodedMessage{DGNName: "DOOR_STATUS", Signals: map[string]rvcspec.Value{"state": {Kind: rvcspec.ValueEnumLabel, Label: "closed"}}}
	events = p.Project(offMsg)
	require.Len(t, events, 1)
	assert.Equal(t, "OFF", events[0].Value)
}

func TestProject_LightOnWithBrightness(t *testing.T) {
	idx, err := Build([]Descriptor{
		{EntityID: "light_ceiling", Kind: KindLight, SourceMessage: "DC_DIMMER_STATUS_3", SignalField: "load_status", SupportsBrightness: true},
	})
	require.NoError(t, err)
	p := NewProjector(idx)

	msg := rvcdecode.DecodedMessage{DGNName: "DC_DIMMER_STATUS_3", Signals: map[string]rvcspec.Value{"load_status": {Kind: rvcspec.ValueInteger, Int: 200}}}
	events := p.Project(msg)
	require.Len(t, events, 2)
	assert.Equal(t, DefaultChannel, events[0].Channel)
	assert.Equal(t, "ON", events[0].Value)
	assert.Equal(t, Channel("brightness"), events[1].Channel)
	assert.Equal(t, 100, events[1].Value)
}

func TestProject_LightOff(t *testing.T) {
	idx, err := Build([]Descriptor{
		{EntityID: "light_ceiling", Kind: KindLight, SourceMessage: "DC_DIMMER_STATUS_3", SignalField: "load_status"},
	})
	require.NoError(t, err)
	p := NewProjector(idx)

	msg := rvcdecode.DecodedMessage{DGNName: "DC_DIMMER_STATUS_3", Signals: map[string]rvcspec.Value{"load_status": {Kind: rvcspec.ValueInteger, Int: 0}}}
	events := p.Project(msg)
	require.Len(t, events, 1)
	assert.Equal(t, "OFF", events[0].Value)
}

func TestProject_ClimatePublishesOnlyPresentChannels(t *testing.T) {
	idx, err := Build([]Descriptor{
		{
			EntityID: "main_thermostat", Kind: KindClimate, SourceMessage: "THERMOSTAT_STATUS",
			ModeField: "mode", CurrentTempField: "current_temp",
		},
	})
	require.NoError(t, err)
	p := NewProjector(idx)

	msg := rvcdecode.DecodedMessage{
		DGNName: "THERMOSTAT_STATUS",
		Signals: map[string]rvcspec.Value{
			"mode":         {Kind: rvcspec.ValueEnumLabel, Label: "cool"},
			"current_temp": {Kind: rvcspec.ValueFloat, Float: 72.5},
		},
	}
	events := p.Project(msg)
	require.Len(t, events, 2)

	byChannel := map[Channel]any{}
	for _, e := range events {
		byChannel[e.Channel] = e.Value
	}
	assert.Equal(t, "cool", byChannel[ChannelMode])
	assert.Equal(t, 72.5, byChannel[ChannelCurrentTemp])
	_, hasSetpoint := byChannel[ChannelSetpointTemp]
	assert.False(t, hasSetpoint)
}
