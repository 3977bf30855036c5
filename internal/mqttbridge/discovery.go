package mqttbridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/serebryakov7/rvcbridge/internal/entity"
)

// discoveryDoc is the home-automation discovery payload published once
// per entity at startup, letting the broker-side integration
// auto-register entities rather than requiring static configuration
// on the consumer side.
type discoveryDoc struct {
	Name              string `json:"name"`
	UniqueID          string `json:"unique_id"`
	StateTopic        string `json:"state_topic"`
	CommandTopic      string `json:"command_topic,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	BrightnessCommand string `json:"brightness_command_topic,omitempty"`
	Device            struct {
		Identifiers []string `json:"identifiers"`
	} `json:"device"`
}

// deviceClassOf maps a descriptor's kind to a discovery device_class
// hint, matching the common home-automation vocabulary. Sensors carry
// no fixed class here since their physical unit varies per signal.
func deviceClassOf(d entity.Descriptor) string {
	switch d.Kind {
	case entity.KindBinarySensor:
		return "motion"
	default:
		return ""
	}
}

// PublishDiscovery announces every descriptor in idx under
// <discoveryPrefix>/<kind>/<entity_id>/config, retained, so a home-
// automation broker can auto-register entities without static
// configuration.
func (c *Client) PublishDiscovery(idx *entity.Index, discoveryPrefix string) error {
	for _, d := range idx.All() {
		doc := discoveryDoc{
			Name:        d.EntityID,
			UniqueID:    d.EntityID,
			StateTopic:  fmt.Sprintf("%s/%s/state", strings.TrimSuffix(c.cfg.StateTopic, "/"), d.EntityID),
			DeviceClass: deviceClassOf(d),
		}
		doc.Device.Identifiers = []string{d.DeviceID}
		if d.Kind == entity.KindLight || d.Kind == entity.KindSwitch || d.Kind == entity.KindClimate {
			doc.CommandTopic = c.cfg.CommandTopic
		}
		if d.Kind == entity.KindLight && d.SupportsBrightness {
			doc.BrightnessCommand = c.cfg.CommandTopic
		}

		payload, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/%s/%s/config", strings.TrimSuffix(discoveryPrefix, "/"), d.Kind, d.EntityID)
		token := c.client.Publish(topic, 0, true, payload)
		token.Wait()
		if token.Error() != nil {
			c.log.Warn("discovery publish failed", zap.String("entity_id", d.EntityID), zap.Error(token.Error()))
		}
	}
	return nil
}
