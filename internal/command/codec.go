package command

import (
	"math"

	"github.com/serebryakov7/rvcbridge/internal/entity"
)

// DGNs used by the codec.
const (
	dgnDCDimmer   uint32 = 0x1FEDB
	dgnThermostat uint32 = 0x1FEF9
)

const codecPriority uint8 = 6

// DC Dimmer command codes.
const (
	dimmerSetLevel     = 0
	dimmerOnDuration   = 2
	dimmerOffDelay     = 3
	dimmerStop         = 4
	dimmerToggle       = 5
	dimmerRampLevel    = 17
	dimmerRampUpOrDown = 21
)

// Frame is one CAN frame of a FrameSequence: its arbitration id, 8-byte
// payload, and the minimum delay to observe before writing it.
type Frame struct {
	ArbID    uint32
	Payload  [8]byte
	PreDelay uint32 // milliseconds
}

// FrameSequence is the codec's output: zero or more frames to write to
// the bus in order, each respecting its own PreDelay.
type FrameSequence struct {
	Frames []Frame
}

func arbID(dgn uint32, source uint8) uint32 {
	return (uint32(codecPriority)&7)<<26 | (dgn&0x1FFFF)<<8 | uint32(source)
}

// Codec turns a NormalizedCommand plus its resolved entity descriptor
// into a FrameSequence.
type Codec struct {
	sourceAddress uint8
}

// NewCodec builds a Codec using sourceAddress as the default source for
// frames that don't specify a dedicated one.
func NewCodec(sourceAddress uint8) *Codec {
	return &Codec{sourceAddress: sourceAddress}
}

// Encode dispatches on (family, action) to the family-specific encoder.
func (c *Codec) Encode(cmd NormalizedCommand, desc entity.Descriptor) (FrameSequence, error) {
	switch cmd.Family {
	case FamilyLight:
		return c.encodeLight(cmd, desc)
	case FamilySwitch:
		return c.encodeSwitch(cmd, desc)
	case FamilyClimate:
		return c.encodeClimate(cmd, desc)
	default:
		return FrameSequence{}, encoderErr("no encoder for family %q", cmd.Family)
	}
}

func dimmerFrame(source, instance uint8, level uint8, code uint8, duration uint8) Frame {
	return Frame{
		ArbID: arbID(dgnDCDimmer, source),
		Payload: [8]byte{
			instance, 0xFF, level, code, duration, 0x00, 0xFF, 0xFF,
		},
	}
}

func (c *Codec) loadInstance(desc entity.Descriptor) (uint8, error) {
	if desc.RVC.LoadInstance == nil {
		return 0, encoderErr("entity %q has no load_instance mapping", desc.EntityID)
	}
	return *desc.RVC.LoadInstance, nil
}

func (c *Codec) encodeLight(cmd NormalizedCommand, desc entity.Descriptor) (FrameSequence, error) {
	instance, err := c.loadInstance(desc)
	if err != nil {
		return FrameSequence{}, err
	}
	source := c.sourceAddress

	switch cmd.Action {
	case ActionState:
		on, _ := cmd.Value.(bool)
		if on {
			return lightOnSequence(source, instance, 0xC8), nil
		}
		return FrameSequence{Frames: []Frame{dimmerFrame(source, instance, 0x00, dimmerOffDelay, 0xFF)}}, nil

	case ActionBrightness:
		b, _ := cmd.Value.(int)
		raw := clampU8(b*2, 0, 200)
		return lightOnSequence(source, instance, uint8(raw)), nil

	default:
		return FrameSequence{}, encoderErr("light has no action %q", cmd.Action)
	}
}

// lightOnSequence implements the three-frame set-level/ramp/stop
// cleanup pattern mandated for light ON and brightness commands:
// set-level at the requested brightness, then after 5 ms a ramp-up-or-
// down at level 0, then an immediate stop.
func lightOnSequence(source, instance, level uint8) FrameSequence {
	ramp := dimmerFrame(source, instance, 0x00, dimmerRampUpOrDown, 0x00)
	ramp.PreDelay = 5
	return FrameSequence{Frames: []Frame{
		dimmerFrame(source, instance, level, dimmerSetLevel, 0xFF),
		ramp,
		dimmerFrame(source, instance, 0x00, dimmerStop, 0x00),
	}}
}

func (c *Codec) encodeSwitch(cmd NormalizedCommand, desc entity.Descriptor) (FrameSequence, error) {
	if desc.RVC.CeilingFanPair != nil {
		return c.encodeCeilingFan(cmd, desc)
	}

	instance, err := c.loadInstance(desc)
	if err != nil {
		return FrameSequence{}, err
	}

	source := c.sourceAddress
	if desc.RVC.VentInstance != nil {
		source = 96
		instance = *desc.RVC.VentInstance
	}

	on, _ := cmd.Value.(bool)
	level := uint8(0x00)
	code := uint8(dimmerOffDelay)
	if on {
		level = 0xC8
		code = dimmerOnDuration
	}
	return FrameSequence{Frames: []Frame{dimmerFrame(source, instance, level, code, 0xFF)}}, nil
}

// encodeCeilingFan implements the ceiling-fan speed choreography:
// at speed 0 both members are turned off; above 0 the non-selected
// member is turned off first, then the selected member is turned on.
func (c *Codec) encodeCeilingFan(cmd NormalizedCommand, desc entity.Descriptor) (FrameSequence, error) {
	pair := desc.RVC.CeilingFanPair
	speed, ok := cmd.Value.(int)
	if !ok {
		speed = 0
		if on, ok := cmd.Value.(bool); ok && on {
			speed = 1
		}
	}
	source := uint8(96)
	primary, secondary := pair[0], pair[1]

	if speed <= 0 {
		return FrameSequence{Frames: []Frame{
			dimmerFrame(source, primary, 0x00, dimmerOffDelay, 0xFF),
			dimmerFrame(source, secondary, 0x00, dimmerOffDelay, 0xFF),
		}}, nil
	}

	selected, other := primary, secondary
	if speed == 2 {
		selected, other = secondary, primary
	}
	return FrameSequence{Frames: []Frame{
		dimmerFrame(source, other, 0x00, dimmerOffDelay, 0xFF),
		dimmerFrame(source, selected, 0xC8, dimmerOnDuration, 0xFF),
	}}, nil
}

func clampU8(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (c *Codec) zoneInstance(desc entity.Descriptor) (uint8, error) {
	if desc.RVC.ZoneInstance == nil {
		return 0, encoderErr("entity %q has no zone_instance mapping", desc.EntityID)
	}
	return *desc.RVC.ZoneInstance, nil
}

func (c *Codec) encodeClimate(cmd NormalizedCommand, desc entity.Descriptor) (FrameSequence, error) {
	zone, err := c.zoneInstance(desc)
	if err != nil {
		return FrameSequence{}, err
	}
	source := c.sourceAddress

	switch cmd.Action {
	case ActionMode:
		mode, _ := cmd.Value.(string)
		var b1 byte
		switch mode {
		case "off":
			b1 = 0xC0
		case "cool":
			b1 = 0xC1
		case "heat":
			b1 = 0xC2
		case "auto":
			b1 = 0xCF
		default:
			return FrameSequence{}, encoderErr("climate mode %q has no RV-C encoding", mode)
		}
		return thermostatFrame(source, zone, [7]byte{b1, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}), nil

	case ActionFanMode:
		fanMode, _ := cmd.Value.(string)
		var level byte
		switch fanMode {
		case "low":
			level = 0x64
		case "high":
			level = 0xC8
		default:
			return FrameSequence{}, encoderErr("climate fan_mode %q has no RV-C encoding", fanMode)
		}
		// The command code (0xDF running vs 0xD4 fan-only) depends on
		// the thermostat's active operating mode, which a fan_mode
		// command does not carry; the running-mode code is used. A
		// deployment needing the fan-only variant sends an explicit
		// mode command first.
		return thermostatFrame(source, zone, [7]byte{0xDF, level, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}), nil

	case ActionTemperature:
		f, err := floatValue(cmd.Value)
		if err != nil {
			return FrameSequence{}, err
		}
		raw := temperatureRaw(f)
		lo, hi := byte(raw), byte(raw>>8)
		payload := [7]byte{0xFF, 0xFF, lo, hi, lo, hi, 0xFF}
		frames := []Frame{{ArbID: arbID(dgnThermostat, source), Payload: thermoPayload(zone, payload)}}
		if zone%2 == 0 {
			frames = append(frames, Frame{ArbID: arbID(dgnThermostat, source), Payload: thermoPayload(zone+3, payload)})
		}
		return FrameSequence{Frames: frames}, nil

	default:
		return FrameSequence{}, encoderErr("climate has no action %q", cmd.Action)
	}
}

func thermostatFrame(source, zone uint8, rest [7]byte) FrameSequence {
	return FrameSequence{Frames: []Frame{{ArbID: arbID(dgnThermostat, source), Payload: thermoPayload(zone, rest)}}}
}

func thermoPayload(zone uint8, rest [7]byte) [8]byte {
	var p [8]byte
	p[0] = zone
	copy(p[1:], rest[:])
	return p
}

func floatValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, encoderErr("temperature value has unexpected type %T", v)
	}
}

// temperatureRaw converts a Fahrenheit setpoint to the RV-C raw u16
// encoding: Kelvin in units of 1/32 K, rounded by adding 0.999 before
// truncation.
func temperatureRaw(f float64) uint16 {
	k := (f-32)*5/9 + 273
	raw := math.Floor(k/0.03125 + 0.999)
	if raw < 0 {
		raw = 0
	}
	if raw > math.MaxUint16 {
		raw = math.MaxUint16
	}
	return uint16(raw)
}
