// Package rvcdecode turns raw CAN frames into DecodedMessage values by
// dispatching the 29-bit arbitration id's DGN against an *rvcspec.Registry
// and extracting each declared signal. It is stateless and reentrant:
// callers may invoke Decode from multiple goroutines over the same
// Decoder.
package rvcdecode

import (
	"errors"
	"time"

	"github.com/serebryakov7/rvcbridge/internal/rvcspec"
)

// RawFrame is the transport-independent result of parsing one line off the
// SLCAN wire: a single extended CAN frame. Non-extended ("t"-prefix)
// frames never reach this type; the transport discards them.
type RawFrame struct {
	ArbID  uint32
	Data   []byte
	Length int
	RxTS   time.Time
}

// Arbitration-id layout: 3 priority bits, 1 reserved-zero bit, 17
// DGN bits, 8 source-address bits, MSB to LSB within the 29-bit field.
const (
	priorityShift = 26
	priorityMask  = 0x7
	dgnShift      = 8
	dgnMask       = 0x1FFFF
	sourceMask    = 0xFF
)

// ErrUnknownDGN reports that the arbitration id's DGN has no entry in the
// registry; the caller drops the frame and may log an UnknownDgn event.
var ErrUnknownDGN = errors.New("unknown dgn")

// ErrInvalidFrame reports that a signal the DGN definition declares could
// not be extracted from the frame, typically because the payload is too
// short for it.
var ErrInvalidFrame = errors.New("invalid frame")

// DecodedMessage is one successfully decoded CAN frame, projected against
// its DGN's signal list.
type DecodedMessage struct {
	DGN        uint32
	DGNName    string
	Priority   uint8
	Instance   uint8
	SourceAddr uint8
	Signals    map[string]rvcspec.Value
	RxTS       time.Time
}

// Decoder resolves arbitration ids against a Registry and extracts
// signals. It holds no mutable state of its own.
type Decoder struct {
	registry *rvcspec.Registry
}

// New builds a Decoder over the given, already-loaded registry.
func New(registry *rvcspec.Registry) *Decoder {
	return &Decoder{registry: registry}
}

// ParseIdentifier splits a 29-bit arbitration id into its priority, DGN,
// and source-address fields. The DGN is always treated as a
// single 17-bit integer; the "DGN_HI"/"DGN_LO" nibble split seen in
// RV-C documentation is cosmetic and never used for lookup.
func ParseIdentifier(arbID uint32) (priority uint8, dgn uint32, source uint8) {
	priority = uint8((arbID >> priorityShift) & priorityMask)
	dgn = (arbID >> dgnShift) & dgnMask
	source = uint8(arbID & sourceMask)
	return
}

// Decode extracts a DecodedMessage from a raw extended CAN frame. A
// malformed or truncated frame, or a frame whose DGN is not in the
// registry, returns a sentinel-wrapped error; one bad frame never stops
// the caller from decoding the next.
func (d *Decoder) Decode(frame RawFrame) (DecodedMessage, error) {
	priority, dgn, source := ParseIdentifier(frame.ArbID)

	def, ok := d.registry.LookupByDGN(dgn)
	if !ok {
		return DecodedMessage{}, ErrUnknownDGN
	}

	signals := make(map[string]rvcspec.Value, len(def.Signals))
	for _, sig := range def.Signals {
		val, err := rvcspec.Decode(sig, frame.Data, d.registry.Enums())
		if err != nil {
			return DecodedMessage{}, errJoin(ErrInvalidFrame, err)
		}
		signals[sig.Name] = val
	}

	instance := instanceOf(def, signals, frame.Data)

	return DecodedMessage{
		DGN:        dgn,
		DGNName:    def.Name,
		Priority:   priority,
		Instance:   instance,
		SourceAddr: source,
		Signals:    signals,
		RxTS:       frame.RxTS,
	}, nil
}

// instanceOf resolves the canonical instance value: the named instance
// signal's decoded integer if present, otherwise the raw first payload
// byte.
func instanceOf(def rvcspec.DgnDef, signals map[string]rvcspec.Value, payload []byte) uint8 {
	name := def.InstanceSignal()
	if v, ok := signals[name]; ok {
		switch v.Kind {
		case rvcspec.ValueInteger:
			return uint8(v.Int)
		case rvcspec.ValueRaw:
			return uint8(v.Raw)
		}
	}
	if len(payload) > 0 {
		return payload[0]
	}
	return 0
}

func errJoin(sentinel, cause error) error {
	return &decodeError{sentinel: sentinel, cause: cause}
}

type decodeError struct {
	sentinel error
	cause    error
}

func (e *decodeError) Error() string { return e.sentinel.Error() + ": " + e.cause.Error() }
func (e *decodeError) Unwrap() []error { return []error{e.sentinel, e.cause} }
