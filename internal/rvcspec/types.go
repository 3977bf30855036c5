// Package rvcspec loads the declarative RV-C data dictionary (DGN and
// signal definitions plus named enumerations) and exposes a read-only,
// constant-time lookup index for the rest of the bridge.
package rvcspec

import "fmt"

// SignalKind is the decoded type of a SignalDef.
type SignalKind string

const (
	KindUint SignalKind = "uint"
	KindInt  SignalKind = "int"
	KindBool SignalKind = "bool"
	KindEnum SignalKind = "enum"
	KindRaw  SignalKind = "raw"
)

// SignalDef describes how to extract and decode one signal from a DGN's
// 8-byte payload.
type SignalDef struct {
	Name       string     `yaml:"name"`
	ByteOffset uint8      `yaml:"byte_offset"`
	BitOffset  uint8      `yaml:"bit_offset"`
	BitLength  uint8      `yaml:"bit_length"`
	Kind       SignalKind `yaml:"kind"`
	Unit       string     `yaml:"unit,omitempty"`
	Scale      *float64   `yaml:"scale,omitempty"`
	Offset     *float64   `yaml:"offset,omitempty"`
	Resolution *float64   `yaml:"resolution,omitempty"`
	Lookup     string     `yaml:"lookup,omitempty"`
}

// bitStart is the absolute bit offset of the signal within the payload,
// counting byte 0 bit 0 as the origin.
func (s SignalDef) bitStart() int {
	return int(s.ByteOffset)*8 + int(s.BitOffset)
}

// DgnDef is one Data Group Number definition: its numeric key, a human
// name, and the ordered list of signals packed into its payload.
type DgnDef struct {
	DGN     uint32      `yaml:"dgn"`
	Name    string      `yaml:"name"`
	Signals []SignalDef `yaml:"signals"`
}

// InstanceSignal returns the name of the signal that carries the DGN's
// instance value. This is byte 0 unless the definition names a
// different signal explicitly (a signal literally called "instance").
func (d DgnDef) InstanceSignal() string {
	for _, s := range d.Signals {
		if s.Name == "instance" {
			return s.Name
		}
	}
	return "instance"
}

// EnumDef names an integer-to-label mapping referenced by SignalDef.Lookup.
type EnumDef struct {
	Name   string         `yaml:"name"`
	Values map[int64]string `yaml:"values"`
}

// SpecLoadError reports a fatal, startup-time failure to load the spec
// document: duplicate DGNs, a signal straddling byte 8, or a dangling
// enum reference.
type SpecLoadError struct {
	Kind string
	Msg  string
}

func (e *SpecLoadError) Error() string {
	return fmt.Sprintf("spec load error (%s): %s", e.Kind, e.Msg)
}

func newSpecLoadError(kind, format string, args ...any) *SpecLoadError {
	return &SpecLoadError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
