package entity

import (
	"math"
	"strings"

	"github.com/serebryakov7/rvcbridge/internal/rvcdecode"
	"github.com/serebryakov7/rvcbridge/internal/rvcspec"
)

// Channel names the published sub-state for an entity. Sensors, binary
// sensors and switches publish on DefaultChannel; lights publish on
// DefaultChannel plus a "brightness" channel when they support it;
// climate publishes on up to four.
type Channel string

const (
	DefaultChannel          Channel = "state"
	ChannelMode             Channel = "mode"
	ChannelCurrentTemp      Channel = "current_temperature"
	ChannelSetpointTemp     Channel = "setpoint_temperature"
	ChannelFanMode          Channel = "fan_mode"
)

// StateEvent is one projected entity update, handed to the publisher.
type StateEvent struct {
	EntityID string
	Kind     Kind
	Channel  Channel
	Value    any
}

// Projector turns DecodedMessages into StateEvents using a built Index.
type Projector struct {
	index *Index
}

// NewProjector wraps an already-built Index.
func NewProjector(index *Index) *Projector {
	return &Projector{index: index}
}

// Project applies every descriptor matching msg's (DGNName, Instance) and
// returns zero or more state updates. Duplicate suppression is not
// performed here; that is the publisher's responsibility.
func (p *Projector) Project(msg rvcdecode.DecodedMessage) []StateEvent {
	var events []StateEvent
	for _, d := range p.index.Lookup(msg.DGNName, msg.Instance) {
		events = append(events, projectOne(d, msg)...)
	}
	return events
}

func projectOne(d Descriptor, msg rvcdecode.DecodedMessage) []StateEvent {
	switch d.Kind {
	case KindSensor:
		return projectSensor(d, msg)
	case KindBinarySensor, KindSwitch:
		return projectBinary(d, msg)
	case KindLight:
		return projectLight(d, msg)
	case KindClimate:
		return projectClimate(d, msg)
	default:
		return nil
	}
}

// fieldValue resolves signalField out of msg, applying d.Transform if
// configured. ok is false if the signal is absent.
func fieldValue(d Descriptor, signalField string, msg rvcdecode.DecodedMessage) (rvcspec.Value, bool) {
	v, ok := msg.Signals[signalField]
	if !ok {
		return rvcspec.Value{}, false
	}
	if d.Transform == nil {
		return v, true
	}
	fields := make(map[string]float64, len(msg.Signals))
	for name, sv := range msg.Signals {
		fields[name] = numeric(sv)
	}
	out, err := d.Transform.Eval(fields)
	if err != nil {
		return rvcspec.Value{}, false
	}
	return rvcspec.Value{Kind: rvcspec.ValueFloat, Float: out}, true
}

func numeric(v rvcspec.Value) float64 {
	switch v.Kind {
	case rvcspec.ValueInteger:
		return float64(v.Int)
	case rvcspec.ValueFloat:
		return v.Float
	case rvcspec.ValueBoolean:
		if v.Bool {
			return 1
		}
		return 0
	case rvcspec.ValueRaw:
		return float64(v.Raw)
	default:
		return 0
	}
}

func projectSensor(d Descriptor, msg rvcdecode.DecodedMessage) []StateEvent {
	v, ok := fieldValue(d, d.SignalField, msg)
	if !ok || v.Kind == rvcspec.ValueUnavailable {
		return nil
	}
	return []StateEvent{{EntityID: d.EntityID, Kind: d.Kind, Channel: DefaultChannel, Value: scalarOf(v)}}
}

// scalarOf converts a decoded Value to the plain Go scalar the publisher
// marshals: numeric kinds stay numbers, labels and raw bytes become
// strings.
func scalarOf(v rvcspec.Value) any {
	switch v.Kind {
	case rvcspec.ValueInteger:
		return v.Int
	case rvcspec.ValueFloat:
		return v.Float
	case rvcspec.ValueBoolean:
		return v.Bool
	case rvcspec.ValueEnumLabel:
		return v.Label
	case rvcspec.ValueRaw:
		return v.Raw
	default:
		return nil
	}
}

// isOn implements the binary_sensor/switch ON test: equals
// on_label for strings, truthy (!= 0) for numerics.
func isOn(v rvcspec.Value, onLabel string) bool {
	switch v.Kind {
	case rvcspec.ValueEnumLabel:
		return onLabel != "" && strings.EqualFold(v.Label, onLabel)
	case rvcspec.ValueBoolean:
		return v.Bool
	case rvcspec.ValueInteger:
		return v.Int != 0
	case rvcspec.ValueFloat:
		return v.Float != 0
	case rvcspec.ValueRaw:
		return v.Raw != 0
	default:
		return false
	}
}

func isOff(v rvcspec.Value, offLabel string) bool {
	switch v.Kind {
	case rvcspec.ValueEnumLabel:
		return offLabel != "" && strings.EqualFold(v.Label, offLabel)
	case rvcspec.ValueBoolean:
		return !v.Bool
	case rvcspec.ValueInteger:
		return v.Int == 0
	case rvcspec.ValueFloat:
		return v.Float == 0
	case rvcspec.ValueRaw:
		return v.Raw == 0
	default:
		return false
	}
}

func projectBinary(d Descriptor, msg rvcdecode.DecodedMessage) []StateEvent {
	v, ok := fieldValue(d, d.SignalField, msg)
	if !ok || v.Kind == rvcspec.ValueUnavailable {
		return nil
	}
	switch {
	case isOn(v, d.OnLabel):
		return []StateEvent{{EntityID: d.EntityID, Kind: d.Kind, Channel: DefaultChannel, Value: "ON"}}
	case isOff(v, d.OffLabel):
		return []StateEvent{{EntityID: d.EntityID, Kind: d.Kind, Channel: DefaultChannel, Value: "OFF"}}
	default:
		return nil
	}
}

// projectLight emits the light state: ON/OFF from a non-zero
// brightness field, plus a halved, round-to-nearest 0..100 brightness
// channel when the descriptor supports it.
func projectLight(d Descriptor, msg rvcdecode.DecodedMessage) []StateEvent {
	v, ok := fieldValue(d, d.SignalField, msg)
	if !ok || v.Kind == rvcspec.ValueUnavailable {
		return nil
	}
	raw := numeric(v)
	var events []StateEvent
	if raw != 0 {
		events = append(events, StateEvent{EntityID: d.EntityID, Kind: d.Kind, Channel: DefaultChannel, Value: "ON"})
	} else {
		events = append(events, StateEvent{EntityID: d.EntityID, Kind: d.Kind, Channel: DefaultChannel, Value: "OFF"})
	}
	if d.SupportsBrightness {
		brightness := int(math.Round(raw / 2))
		events = append(events, StateEvent{EntityID: d.EntityID, Kind: d.Kind, Channel: "brightness", Value: brightness})
	}
	return events
}

// projectClimate emits up to four independent climate channels,
// each sourced from its own signal and only published when present.
func projectClimate(d Descriptor, msg rvcdecode.DecodedMessage) []StateEvent {
	var events []StateEvent
	add := func(field string, channel Channel) {
		if field == "" {
			return
		}
		v, ok := fieldValue(d, field, msg)
		if !ok || v.Kind == rvcspec.ValueUnavailable {
			return
		}
		events = append(events, StateEvent{EntityID: d.EntityID, Kind: d.Kind, Channel: channel, Value: scalarOf(v)})
	}
	add(d.ModeField, ChannelMode)
	add(d.CurrentTempField, ChannelCurrentTemp)
	add(d.SetpointField, ChannelSetpointTemp)
	add(d.FanModeField, ChannelFanMode)
	return events
}
