// Package command implements the outbound pipeline: a
// staged validator, a per-device-family codec, a three-budget rate
// limiter, and a retrying transmitter.
package command

import "time"

// Family is the entity category a command targets.
type Family string

const (
	FamilyLight   Family = "light"
	FamilyClimate Family = "climate"
	FamilySwitch  Family = "switch"
)

// Action distinguishes the sub-operation within a family. Present iff the
// family has more than one.
type Action string

const (
	ActionState       Action = "state"
	ActionBrightness  Action = "brightness"
	ActionMode        Action = "mode"
	ActionTemperature Action = "temperature"
	ActionFanMode     Action = "fan_mode"
)

// CandidateCommand is the raw, as-received command: a CandidateCommand
// record off the MQTT subscriber channel, not yet validated.
type CandidateCommand struct {
	EntityID string
	Family   Family
	Action   Action // zero value means "not supplied"
	Value    any
}

// NormalizedCommand is the result of a fully successful validation
// pass: the entity_id, family, action, and a value whose concrete type
// is determined by (family, action).
type NormalizedCommand struct {
	EntityID    string
	Family      Family
	Action      Action
	Value       any
	TSEnqueued  time.Time
}

// CommandAck is emitted on the feedback channel for every accepted
// command that the transmitter successfully wrote to the bus.
type CommandAck struct {
	EntityID  string `json:"entity_id"`
	Family    Family `json:"family"`
	Action    Action `json:"action"`
	Value     any    `json:"value"`
	LatencyMs int64  `json:"latency_ms"`
}

// CommandError is emitted on the feedback channel for every rejected
// or failed command — exactly one per offending command.
type CommandError struct {
	EntityID string `json:"entity_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}
