package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/serebryakov7/rvcbridge/internal/entity"
)

// Policy is the Stage 4 configuration: an optional denylist, an
// optional allowlist (non-empty restricts to exactly those ids), and an
// optional set of allowed families.
type Policy struct {
	Denylist       map[string]bool
	Allowlist      map[string]bool
	AllowedFamilies map[Family]bool
}

// actionCounts lists how many actions each family supports; a family with
// more than one requires its Action field to be set.
var actionCounts = map[Family]int{
	FamilyLight:   2, // state, brightness
	FamilyClimate: 3, // mode, temperature, fan_mode
	FamilySwitch:  1, // state
}

var familyToEntityKind = map[Family]entity.Kind{
	FamilyLight:   entity.KindLight,
	FamilyClimate: entity.KindClimate,
	FamilySwitch:  entity.KindSwitch,
}

// Validator runs five ordered validation stages over a CandidateCommand:
// schema, entity, range, policy, rate.
// Stages 1–4 are pure functions of the input, the entity index, and
// Policy; they are safe to call concurrently for distinct commands. Stage
// 5 delegates to a RateLimiter, which is not safe to call concurrently for
// the same entity without its own internal synchronization (which
// RateLimiter provides).
type Validator struct {
	index   *entity.Index
	policy  Policy
	limiter *RateLimiter
	now     func() time.Time
}

// NewValidator builds a Validator over an entity index, policy
// configuration, and rate limiter. now defaults to time.Now; tests may
// override it for deterministic rate-limit scenarios.
func NewValidator(index *entity.Index, policy Policy, limiter *RateLimiter) *Validator {
	return &Validator{index: index, policy: policy, limiter: limiter, now: time.Now}
}

// Validate runs all five stages in order, short-circuiting on the first
// failure. On success it returns a NormalizedCommand ready for the
// codec.
func (v *Validator) Validate(c CandidateCommand) (NormalizedCommand, error) {
	if err := stageSchema(c); err != nil {
		return NormalizedCommand{}, err
	}

	desc, err := stageEntity(v.index, c)
	if err != nil {
		return NormalizedCommand{}, err
	}

	value, err := stageRange(c, desc)
	if err != nil {
		return NormalizedCommand{}, err
	}

	if err := stagePolicy(v.policy, c); err != nil {
		return NormalizedCommand{}, err
	}

	action := c.Action
	if action == "" {
		action = ActionState
	}
	now := v.now()
	if v.limiter != nil {
		if err := v.limiter.Admit(c.EntityID, now); err != nil {
			return NormalizedCommand{}, err
		}
	}

	return NormalizedCommand{
		EntityID:   c.EntityID,
		Family:     c.Family,
		Action:     action,
		Value:      value,
		TSEnqueued: now,
	}, nil
}

// Stage 1 — schema: required fields and action-required-iff-multi-action.
func stageSchema(c CandidateCommand) error {
	if c.EntityID == "" {
		return validatorErr(ErrMissingField, "missing entity_id")
	}
	if c.Family == "" {
		return validatorErr(ErrMissingField, "missing family")
	}
	if c.Value == nil {
		return validatorErr(ErrMissingField, "missing value")
	}
	if n := actionCounts[c.Family]; n > 1 && c.Action == "" {
		return validatorErr(ErrMissingAction, "family %q requires an action", c.Family)
	}
	return nil
}

// Stage 2 — entity: entity_id resolves, and family matches its kind.
func stageEntity(index *entity.Index, c CandidateCommand) (entity.Descriptor, error) {
	desc, ok := index.ByEntityID(c.EntityID)
	if !ok {
		return entity.Descriptor{}, validatorErr(ErrUnknownEntity, "unknown entity %q", c.EntityID)
	}
	want, ok := familyToEntityKind[c.Family]
	if !ok || desc.Kind != want {
		return entity.Descriptor{}, validatorErr(ErrWrongFamily, "entity %q is kind %q, not family %q", c.EntityID, desc.Kind, c.Family)
	}
	return desc, nil
}

// Stage 3 — range: type and domain check per (family, action).
func stageRange(c CandidateCommand, desc entity.Descriptor) (any, error) {
	action := c.Action
	if action == "" {
		action = ActionState
	}

	switch {
	case (c.Family == FamilyLight || c.Family == FamilySwitch) && action == ActionState:
		return onOffValue(c.Value)

	case c.Family == FamilyLight && action == ActionBrightness:
		return intInRange(c.Value, 0, 100)

	case c.Family == FamilyClimate && action == ActionMode:
		return enumValue(c.Value, []string{"off", "heat", "cool", "auto"})

	case c.Family == FamilyClimate && action == ActionTemperature:
		return floatInRange(c.Value, 50.0, 100.0)

	case c.Family == FamilyClimate && action == ActionFanMode:
		return enumValue(c.Value, []string{"auto", "low", "high"})

	default:
		return nil, validatorErr(ErrWrongFamily, "unsupported action %q for family %q", action, c.Family)
	}
}

func onOffValue(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, validatorErr(ErrWrongType, "expected string ON/OFF, got %T", v)
	}
	switch strings.ToUpper(s) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	default:
		return nil, validatorErr(ErrNotEnumerated, "value %q is not one of ON, OFF", s)
	}
}

func enumValue(v any, allowed []string) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, validatorErr(ErrWrongType, "expected string, got %T", v)
	}
	lower := strings.ToLower(s)
	for _, a := range allowed {
		if lower == a {
			return lower, nil
		}
	}
	return nil, validatorErr(ErrNotEnumerated, "value %q is not one of %v", s, allowed)
}

func intInRange(v any, min, max int) (any, error) {
	n, ok := asInt(v)
	if !ok {
		return nil, validatorErr(ErrWrongType, "expected integer, got %T", v)
	}
	if n < min {
		return nil, validatorErr(ErrBelowMinimum, "%d below minimum %d", n, min)
	}
	if n > max {
		return nil, validatorErr(ErrAboveMaximum, "%d above maximum %d", n, max)
	}
	return n, nil
}

func floatInRange(v any, min, max float64) (any, error) {
	f, ok := asFloat(v)
	if !ok {
		return nil, validatorErr(ErrWrongType, "expected number, got %T", v)
	}
	if f < min {
		return nil, validatorErr(ErrBelowMinimum, "%g below minimum %g", f, min)
	}
	if f > max {
		return nil, validatorErr(ErrAboveMaximum, "%g above maximum %g", f, max)
	}
	return f, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Stage 4 — policy: denylist, allowlist, allowed-families.
func stagePolicy(p Policy, c CandidateCommand) error {
	if p.Denylist != nil && p.Denylist[c.EntityID] {
		return validatorErr(ErrDenylisted, "entity %q is denylisted", c.EntityID)
	}
	if len(p.Allowlist) > 0 && !p.Allowlist[c.EntityID] {
		return validatorErr(ErrNotAllowlisted, "entity %q is not in the allowlist", c.EntityID)
	}
	if len(p.AllowedFamilies) > 0 && !p.AllowedFamilies[c.Family] {
		return validatorErr(ErrFamilyNotAllowed, "family %q is not allowed", c.Family)
	}
	return nil
}
