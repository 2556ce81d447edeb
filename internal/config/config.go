// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/controller_manager/internal/controlmode"
)

// Transports accepted by TRANSPORT.
const (
	TransportMQTT   = "mqtt"
	TransportNATS   = "nats"
	TransportMemory = "memory"
)

// Config holds all application configuration values.
type Config struct {
	// Transport
	Transport    string
	MQTTBroker   string
	MQTTClientID string
	NATSURL      string
	Namespace    string

	// Negotiation
	UseBypass           bool
	PreferredOutputMode controlmode.Code // 0 = no preference

	// Timing (milliseconds)
	ControlPeriodMs          int
	PlatformRequestTimeoutMs int
	PlatformStatusTimeoutMs  int // 0 trusts the last platform status indefinitely
	NoticeIntervalMs         int

	// State synchronization
	SyncQueueSize int
	SyncMaxSkewMs int // 0 pairs the closest stamps whatever their skew

	// Plugin
	PluginName       string
	PluginConfigFile string

	// Web Server (0 disables)
	WebServerPort int

	// Logging
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogDebug      bool

	// Platform simulator
	SimClientID        string
	SimControlModes    []controlmode.Code
	SimStateIntervalMs int
	SimInfoIntervalMs  int
	SimArmed           bool
	SimOffboard        bool
}

// Package-level singleton, set once by InitGlobal and read through Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value set.
func Default() *Config {
	return &Config{
		Transport:                TransportMQTT,
		MQTTClientID:             "controller-manager",
		ControlPeriodMs:          10,
		PlatformRequestTimeoutMs: 1000,
		PlatformStatusTimeoutMs:  1000,
		NoticeIntervalMs:         1000,
		SyncQueueSize:            5,
		SyncMaxSkewMs:            0,
		LogMaxSizeMB:             50,
		LogMaxBackups:            3,
		LogMaxAgeDays:            14,
		SimClientID:              "platform-sim",
		SimStateIntervalMs:       20,
		SimInfoIntervalMs:        100,
		SimArmed:                 true,
		SimOffboard:              true,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r on top of Default().
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Transport
	case "TRANSPORT":
		c.Transport = strings.ToLower(value)
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "NATS_URL":
		c.NATSURL = value
	case "NAMESPACE":
		c.Namespace = value

	// Negotiation
	case "USE_BYPASS":
		c.UseBypass, err = parseBool(key, value)
	case "PREFERRED_OUTPUT_MODE":
		c.PreferredOutputMode, err = parseCode(key, value)

	// Timing
	case "CONTROL_PERIOD_MS":
		c.ControlPeriodMs, err = parseInt(key, value, 1)
	case "PLATFORM_REQUEST_TIMEOUT_MS":
		c.PlatformRequestTimeoutMs, err = parseInt(key, value, 1)
	case "PLATFORM_STATUS_TIMEOUT_MS":
		c.PlatformStatusTimeoutMs, err = parseInt(key, value, 0)
	case "NOTICE_INTERVAL_MS":
		c.NoticeIntervalMs, err = parseInt(key, value, 0)

	// State synchronization
	case "SYNC_QUEUE_SIZE":
		c.SyncQueueSize, err = parseInt(key, value, 1)
	case "SYNC_MAX_SKEW_MS":
		c.SyncMaxSkewMs, err = parseInt(key, value, 0)

	// Plugin
	case "PLUGIN_NAME":
		c.PluginName = value
	case "PLUGIN_CONFIG_FILE":
		c.PluginConfigFile = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 0)

	// Logging
	case "LOG_FILE":
		c.LogFile = value
	case "LOG_MAX_SIZE_MB":
		c.LogMaxSizeMB, err = parseInt(key, value, 1)
	case "LOG_MAX_BACKUPS":
		c.LogMaxBackups, err = parseInt(key, value, 0)
	case "LOG_MAX_AGE_DAYS":
		c.LogMaxAgeDays, err = parseInt(key, value, 0)
	case "LOG_DEBUG":
		c.LogDebug, err = parseBool(key, value)

	// Platform simulator
	case "SIM_CLIENT_ID":
		c.SimClientID = value
	case "SIM_CONTROL_MODES":
		c.SimControlModes, err = parseCodeList(key, value)
	case "SIM_STATE_INTERVAL_MS":
		c.SimStateIntervalMs, err = parseInt(key, value, 1)
	case "SIM_INFO_INTERVAL_MS":
		c.SimInfoIntervalMs, err = parseInt(key, value, 1)
	case "SIM_ARMED":
		c.SimArmed, err = parseBool(key, value)
	case "SIM_OFFBOARD":
		c.SimOffboard, err = parseBool(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseInt(key, value string, min int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min {
		return 0, fmt.Errorf("%s must be >= %d, got %d", key, min, v)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// parseCode accepts decimal, hex (0x48) or binary (0b01001000) codes.
func parseCode(key, value string) (controlmode.Code, error) {
	v, err := strconv.ParseUint(value, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return controlmode.Code(v), nil
}

func parseCodeList(key, value string) ([]controlmode.Code, error) {
	var codes []controlmode.Code
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		c, err := parseCode(key, field)
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	switch c.Transport {
	case TransportMQTT:
		if c.MQTTBroker == "" {
			return fmt.Errorf("MQTT_BROKER is required when TRANSPORT=mqtt")
		}
	case TransportNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when TRANSPORT=nats")
		}
	case TransportMemory:
	default:
		return fmt.Errorf("TRANSPORT must be one of mqtt, nats, memory, got %q", c.Transport)
	}
	if c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	return nil
}

// ControlPeriod returns the control loop period.
func (c *Config) ControlPeriod() time.Duration {
	return time.Duration(c.ControlPeriodMs) * time.Millisecond
}

// PlatformRequestTimeout bounds each outbound platform request.
func (c *Config) PlatformRequestTimeout() time.Duration {
	return time.Duration(c.PlatformRequestTimeoutMs) * time.Millisecond
}

// PlatformStatusTimeout is the age after which platform status is ignored.
func (c *Config) PlatformStatusTimeout() time.Duration {
	return time.Duration(c.PlatformStatusTimeoutMs) * time.Millisecond
}

// NoticeInterval rate-limits repeated waiting notices.
func (c *Config) NoticeInterval() time.Duration {
	return time.Duration(c.NoticeIntervalMs) * time.Millisecond
}

// SyncMaxSkew is the largest pose/twist stamp difference joined into one sample.
func (c *Config) SyncMaxSkew() time.Duration {
	return time.Duration(c.SyncMaxSkewMs) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
