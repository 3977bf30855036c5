package entity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mappingDocument is the on-disk shape of the entity mapping file.
type mappingDocument struct {
	Entities []mappingEntity `yaml:"entities"`
}

type mappingRVCBinding struct {
	LoadInstance   *uint8   `yaml:"load_instance,omitempty"`
	VentInstance   *uint8   `yaml:"vent_instance,omitempty"`
	CeilingFanPair *[2]uint8 `yaml:"ceiling_fan_pair,omitempty"`
	ZoneInstance   *uint8   `yaml:"zone_instance,omitempty"`
}

type mappingEntity struct {
	EntityID           string             `yaml:"entity_id"`
	Kind               Kind               `yaml:"kind"`
	SourceMessage      string             `yaml:"source_message"`
	SourceInstance     *uint8             `yaml:"source_instance,omitempty"`
	SignalField        string             `yaml:"signal_field"`
	Transform          string             `yaml:"transform,omitempty"`
	DeviceID           string             `yaml:"device_id"`
	OnLabel            string             `yaml:"on_label,omitempty"`
	OffLabel           string             `yaml:"off_label,omitempty"`
	AllowedMin         *float64           `yaml:"allowed_min,omitempty"`
	AllowedMax         *float64           `yaml:"allowed_max,omitempty"`
	AllowedValues      []string           `yaml:"allowed_values,omitempty"`
	SupportsBrightness bool               `yaml:"supports_brightness,omitempty"`
	ModeField          string             `yaml:"mode_field,omitempty"`
	CurrentTempField   string             `yaml:"current_temperature_field,omitempty"`
	SetpointField      string             `yaml:"setpoint_temperature_field,omitempty"`
	FanModeField       string             `yaml:"fan_mode_field,omitempty"`
	RVC                *mappingRVCBinding `yaml:"rvc,omitempty"`
}

// LoadMapping parses the entity mapping file at path and builds the
// constant-time Index over its descriptors. It is total for the
// entities the deployment intends to publish.
func LoadMapping(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading entity mapping %s: %w", path, err)
	}

	var doc mappingDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing entity mapping %s: %w", path, err)
	}

	descs := make([]Descriptor, 0, len(doc.Entities))
	for _, e := range doc.Entities {
		d, err := toDescriptor(e)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.EntityID, err)
		}
		descs = append(descs, d)
	}

	return Build(descs)
}

func toDescriptor(e mappingEntity) (Descriptor, error) {
	d := Descriptor{
		EntityID:           e.EntityID,
		Kind:               e.Kind,
		SourceMessage:      e.SourceMessage,
		SourceInstance:     e.SourceInstance,
		SignalField:        e.SignalField,
		DeviceID:           e.DeviceID,
		OnLabel:            e.OnLabel,
		OffLabel:           e.OffLabel,
		AllowedValues:      e.AllowedValues,
		SupportsBrightness: e.SupportsBrightness,
		ModeField:          e.ModeField,
		CurrentTempField:   e.CurrentTempField,
		SetpointField:      e.SetpointField,
		FanModeField:       e.FanModeField,
	}
	if e.AllowedMin != nil && e.AllowedMax != nil {
		d.AllowedRange = &Range{Min: *e.AllowedMin, Max: *e.AllowedMax}
	}
	if e.Transform != "" {
		t, err := ParseTransform(e.Transform)
		if err != nil {
			return Descriptor{}, err
		}
		d.Transform = t
	}
	if e.RVC != nil {
		d.RVC = RVCBinding{
			LoadInstance:   e.RVC.LoadInstance,
			VentInstance:   e.RVC.VentInstance,
			CeilingFanPair: e.RVC.CeilingFanPair,
			ZoneInstance:   e.RVC.ZoneInstance,
		}
	}
	return d, nil
}
