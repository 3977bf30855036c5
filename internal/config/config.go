// Package config reads the bridge's INI configuration file: the
// recognized options governing transport addresses, topics, retry
// policy, and the command pipeline's rate and policy settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Config is the fully-resolved, defaulted configuration surface.
type Config struct {
	SLCANAddress string

	MQTTBroker       string
	MQTTClientID     string
	MQTTStateTopic   string
	MQTTCommandTopic string
	MQTTAckTopic     string
	MQTTErrorTopic   string
	DiscoveryPrefix  string

	SpecFile    string
	MappingFile string
	CacheFile   string

	SourceAddress     uint8
	RetryCount        int
	RetryDelayMs      time.Duration
	GlobalRate        int
	EntityRate        int
	EntityCooldownMs  time.Duration

	Denylist        map[string]bool
	Allowlist       map[string]bool
	AllowedFamilies map[string]bool

	AuditLogPath string
}

// defaults are the values applied for any option the file omits.
func defaults() Config {
	return Config{
		SLCANAddress:     "localhost:5000",
		MQTTBroker:       "tcp://localhost:1883",
		MQTTClientID:     "rvcbridge",
		MQTTStateTopic:   "rvc/state",
		MQTTCommandTopic: "rvc/command",
		MQTTAckTopic:     "rvc/ack",
		MQTTErrorTopic:   "rvc/error",
		DiscoveryPrefix:  "homeassistant",
		SpecFile:         "rvc-spec.yaml",
		MappingFile:      "entities.yaml",
		CacheFile:        "rvcbridge-cache.db",
		SourceAddress:    99,
		RetryCount:       3,
		RetryDelayMs:     100 * time.Millisecond,
		GlobalRate:       10,
		EntityRate:       2,
		EntityCooldownMs: 500 * time.Millisecond,
		Denylist:         map[string]bool{},
		Allowlist:        map[string]bool{},
		AllowedFamilies:  map[string]bool{"light": true, "climate": true, "switch": true},
		AuditLogPath:     "rvcbridge-audit.log",
	}
}

// Load parses the INI file at path, filling unspecified keys with
// defaults.
func Load(path string) (Config, error) {
	cfg := defaults()

	f, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	sec := f.Section("")

	cfg.SLCANAddress = sec.Key("slcan_address").MustString(cfg.SLCANAddress)
	cfg.MQTTBroker = sec.Key("mqtt_broker").MustString(cfg.MQTTBroker)
	cfg.MQTTClientID = sec.Key("mqtt_client_id").MustString(cfg.MQTTClientID)
	cfg.MQTTStateTopic = sec.Key("mqtt_state_topic").MustString(cfg.MQTTStateTopic)
	cfg.MQTTCommandTopic = sec.Key("mqtt_command_topic").MustString(cfg.MQTTCommandTopic)
	cfg.MQTTAckTopic = sec.Key("mqtt_ack_topic").MustString(cfg.MQTTAckTopic)
	cfg.MQTTErrorTopic = sec.Key("mqtt_error_topic").MustString(cfg.MQTTErrorTopic)
	cfg.DiscoveryPrefix = sec.Key("discovery_prefix").MustString(cfg.DiscoveryPrefix)

	cfg.SpecFile = sec.Key("spec_file").MustString(cfg.SpecFile)
	cfg.MappingFile = sec.Key("mapping_file").MustString(cfg.MappingFile)
	cfg.CacheFile = sec.Key("cache_file").MustString(cfg.CacheFile)

	cfg.SourceAddress = uint8(sec.Key("source_address").MustInt(int(cfg.SourceAddress)))
	cfg.RetryCount = sec.Key("retry_count").MustInt(cfg.RetryCount)
	cfg.RetryDelayMs = time.Duration(sec.Key("retry_delay_ms").MustInt(100)) * time.Millisecond
	cfg.GlobalRate = sec.Key("global_rate").MustInt(cfg.GlobalRate)
	cfg.EntityRate = sec.Key("entity_rate").MustInt(cfg.EntityRate)
	cfg.EntityCooldownMs = time.Duration(sec.Key("entity_cooldown_ms").MustInt(500)) * time.Millisecond

	cfg.Denylist = toSet(sec.Key("denylist").Strings(","))
	if allow := sec.Key("allowlist").Strings(","); len(allow) > 0 {
		cfg.Allowlist = toSet(allow)
	}
	if families := sec.Key("allowed_families").Strings(","); len(families) > 0 {
		cfg.AllowedFamilies = toSet(families)
	}

	cfg.AuditLogPath = sec.Key("audit_log_path").MustString(cfg.AuditLogPath)

	return cfg, nil
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out[v] = true
		}
	}
	return out
}
