// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

// Package config provides configuration management for the recirculation
// controller daemon.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts "48h" style strings. Bare
// integers are read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the application configuration.
type Config struct {
	Control       ControlConfig       `yaml:"control"`
	Sensors       SensorsConfig       `yaml:"sensors"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Storage       StorageConfig       `yaml:"storage"`
	Discovery     DiscoveryConfig     `yaml:"discovery"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ControlConfig holds the control loop tuning parameters. The threshold
// ranges keep the controller inside physically sensible territory for a
// domestic loop.
type ControlConfig struct {
	OutletRise             float64  `yaml:"outlet_rise" validate:"min=0.1,max=5.0"`
	ReturnRise             float64  `yaml:"return_rise" validate:"min=0.1,max=10.0"`
	DisinfectionTempRise   float64  `yaml:"disinfection_temp_rise" validate:"min=5.0,max=20.0"`
	MinReturnTemp          float64  `yaml:"min_return_temp" validate:"min=20.0,max=45.0"`
	PumpFlowRate           float64  `yaml:"pump_flow_rate" validate:"min=0.5,max=50.0"`
	AntiStagnationInterval Duration `yaml:"anti_stagnation_interval"`
	AntiStagnationRuntime  Duration `yaml:"anti_stagnation_runtime"`
	TickInterval           Duration `yaml:"tick_interval"`
	LearningEnabled        *bool    `yaml:"learning_enabled"`
}

// LearningOn reports whether usage-pattern learning is enabled. Defaults
// to true when unset.
func (c *ControlConfig) LearningOn() bool {
	return c.LearningEnabled == nil || *c.LearningEnabled
}

// SensorConfig identifies one temperature sensor endpoint. Either URL
// points directly at the sensor's REST endpoint, or Node names an mDNS
// instance that discovery resolves, with ID naming the sensor on that node.
type SensorConfig struct {
	URL  string `yaml:"url"`
	Node string `yaml:"node"`
	ID   string `yaml:"id"`
}

// SensorsConfig holds the two loop sensors and their polling behavior.
type SensorsConfig struct {
	Outlet       SensorConfig `yaml:"outlet"`
	Return       SensorConfig `yaml:"return"`
	PollInterval Duration     `yaml:"poll_interval"`
	Staleness    Duration     `yaml:"staleness"`
}

// MQTTConfig holds the broker connection and topic layout for the pump,
// LEDs, button and event stream.
type MQTTConfig struct {
	Broker   string     `yaml:"broker"`
	ClientID string     `yaml:"client_id"`
	Username string     `yaml:"username"`
	Password string     `yaml:"password"`
	Topics   MQTTTopics `yaml:"topics"`
}

// MQTTTopics maps the controller's roles onto broker topics. The LED and
// button topics are optional; an empty topic leaves the binding absent.
type MQTTTopics struct {
	Pump      string `yaml:"pump"`
	GreenLED  string `yaml:"green_led"`
	YellowLED string `yaml:"yellow_led"`
	Button    string `yaml:"button"`
	Events    string `yaml:"events"`
}

// InfluxDBConfig holds InfluxDB connection settings.
type InfluxDBConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// StorageConfig holds local persistence paths.
type StorageConfig struct {
	CacheDir  string `yaml:"cache_dir"`
	StateFile string `yaml:"state_file"`
}

// DiscoveryConfig holds mDNS discovery settings for sensor nodes.
type DiscoveryConfig struct {
	Enabled      bool     `yaml:"enabled"`
	ServiceType  string   `yaml:"service_type"`
	Domain       string   `yaml:"domain"`
	ScanInterval Duration `yaml:"scan_interval"`
}

// NotificationsConfig holds alerting settings. An empty webhook URL
// disables notifications.
type NotificationsConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides, defaults and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the
// configuration. Secrets in particular are expected to arrive this way.
func (c *Config) applyEnvironmentOverrides() {
	if url := os.Getenv("INFLUXDB_URL"); url != "" {
		c.InfluxDB.URL = url
	}
	if token := os.Getenv("INFLUXDB_TOKEN"); token != "" {
		c.InfluxDB.Token = token
	}
	if org := os.Getenv("INFLUXDB_ORG"); org != "" {
		c.InfluxDB.Organization = org
	}
	if bucket := os.Getenv("INFLUXDB_BUCKET"); bucket != "" {
		c.InfluxDB.Bucket = bucket
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
	}
	if user := os.Getenv("MQTT_USERNAME"); user != "" {
		c.MQTT.Username = user
	}
	if pass := os.Getenv("MQTT_PASSWORD"); pass != "" {
		c.MQTT.Password = pass
	}
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		c.Notifications.SlackWebhookURL = webhook
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if stateFile := os.Getenv("HOTCIRC_STATE_FILE"); stateFile != "" {
		c.Storage.StateFile = stateFile
	}
}

// setDefaults sets default values for configuration fields if not provided.
func (c *Config) setDefaults() {
	if c.Control.OutletRise == 0 {
		c.Control.OutletRise = 1.5
	}
	if c.Control.ReturnRise == 0 {
		c.Control.ReturnRise = 2.0
	}
	if c.Control.DisinfectionTempRise == 0 {
		c.Control.DisinfectionTempRise = 10.0
	}
	if c.Control.MinReturnTemp == 0 {
		c.Control.MinReturnTemp = 35.0
	}
	if c.Control.PumpFlowRate == 0 {
		c.Control.PumpFlowRate = 6.0
	}
	if c.Control.AntiStagnationInterval == 0 {
		c.Control.AntiStagnationInterval = Duration(48 * time.Hour)
	}
	if c.Control.AntiStagnationRuntime == 0 {
		c.Control.AntiStagnationRuntime = Duration(15 * time.Second)
	}
	if c.Control.TickInterval == 0 {
		c.Control.TickInterval = Duration(time.Second)
	}

	if c.Sensors.PollInterval == 0 {
		c.Sensors.PollInterval = Duration(time.Second)
	}
	if c.Sensors.Staleness == 0 {
		c.Sensors.Staleness = Duration(10 * time.Second)
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "hotcirc"
	}
	if c.MQTT.Topics.Pump == "" {
		c.MQTT.Topics.Pump = "hotcirc/pump/set"
	}
	if c.MQTT.Topics.Events == "" {
		c.MQTT.Topics.Events = "hotcirc/events"
	}

	if c.Storage.CacheDir == "" {
		c.Storage.CacheDir = "cache"
	}
	if c.Storage.StateFile == "" {
		c.Storage.StateFile = "state.json"
	}

	if c.Discovery.ServiceType == "" {
		c.Discovery.ServiceType = "_esphomelib._tcp"
	}
	if c.Discovery.Domain == "" {
		c.Discovery.Domain = "local."
	}
	if c.Discovery.ScanInterval == 0 {
		c.Discovery.ScanInterval = Duration(5 * time.Minute)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.validateControl(); err != nil {
		return err
	}
	if err := c.validateSensors(); err != nil {
		return err
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	if err := c.validateInfluxDB(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// validateControl checks the control thresholds against their physical
// ranges and the durations by hand.
func (c *Config) validateControl() error {
	v := validator.New()
	if err := v.Struct(c.Control); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("control.%s is out of range (%s=%s, value %v)",
				snakeCase(fe.Field()), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("control validation failed: %w", err)
	}

	if c.Control.AntiStagnationInterval.Std() < time.Minute {
		return fmt.Errorf("control.anti_stagnation_interval must be at least 1 minute")
	}
	if c.Control.AntiStagnationInterval.Std() > 14*24*time.Hour {
		return fmt.Errorf("control.anti_stagnation_interval must not exceed 14 days")
	}
	if c.Control.AntiStagnationRuntime.Std() < 5*time.Second {
		return fmt.Errorf("control.anti_stagnation_runtime must be at least 5 seconds")
	}
	if c.Control.AntiStagnationRuntime.Std() > 8*time.Minute {
		return fmt.Errorf("control.anti_stagnation_runtime must not exceed 8 minutes")
	}
	if c.Control.TickInterval.Std() < 100*time.Millisecond {
		return fmt.Errorf("control.tick_interval must be at least 100ms")
	}
	if c.Control.TickInterval.Std() > time.Minute {
		return fmt.Errorf("control.tick_interval must not exceed 1 minute")
	}
	return nil
}

// validateSensors requires each sensor to be reachable: either directly by
// URL, or by discovered node name plus sensor id.
func (c *Config) validateSensors() error {
	for _, s := range []struct {
		name string
		cfg  SensorConfig
	}{
		{"sensors.outlet", c.Sensors.Outlet},
		{"sensors.return", c.Sensors.Return},
	} {
		if s.cfg.URL == "" && s.cfg.Node == "" {
			return fmt.Errorf("%s needs either url or node", s.name)
		}
		if s.cfg.URL != "" {
			if _, err := url.Parse(s.cfg.URL); err != nil {
				return fmt.Errorf("%s.url is not a valid URL: %w", s.name, err)
			}
		}
		if s.cfg.Node != "" {
			if s.cfg.ID == "" {
				return fmt.Errorf("%s.id is required when node is used", s.name)
			}
			if !c.Discovery.Enabled {
				return fmt.Errorf("%s.node requires discovery.enabled", s.name)
			}
		}
	}

	if c.Sensors.PollInterval.Std() < 100*time.Millisecond {
		return fmt.Errorf("sensors.poll_interval must be at least 100ms")
	}
	if c.Sensors.Staleness < c.Sensors.PollInterval {
		return fmt.Errorf("sensors.staleness must be at least sensors.poll_interval")
	}
	return nil
}

// validateMQTT checks the broker URL and topic layout.
func (c *Config) validateMQTT() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	parsed, err := url.Parse(c.MQTT.Broker)
	if err != nil {
		return fmt.Errorf("mqtt.broker is not a valid URL: %w", err)
	}
	switch parsed.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("mqtt.broker scheme %q is not supported", parsed.Scheme)
	}
	if c.MQTT.Topics.Pump == "" {
		return fmt.Errorf("mqtt.topics.pump is required")
	}
	return nil
}

// validateInfluxDB validates the InfluxDB configuration.
func (c *Config) validateInfluxDB() error {
	if c.InfluxDB.URL == "" {
		return fmt.Errorf("influxdb.url is required")
	}

	parsedURL, parseErr := url.Parse(c.InfluxDB.URL)
	if parseErr != nil {
		return fmt.Errorf("influxdb.url is not a valid URL: %w", parseErr)
	}
	if securityErr := validateURLSecurity(parsedURL); securityErr != nil {
		return securityErr
	}

	if c.InfluxDB.Token == "" {
		return fmt.Errorf("influxdb.token is required")
	}
	if len(c.InfluxDB.Token) < 8 {
		return fmt.Errorf("influxdb.token must be at least 8 characters long")
	}
	if c.InfluxDB.Organization == "" {
		return fmt.Errorf("influxdb.organization is required")
	}
	if c.InfluxDB.Bucket == "" {
		return fmt.Errorf("influxdb.bucket is required")
	}
	return nil
}

// validateURLSecurity checks if the URL uses HTTPS for non-local
// connections.
func validateURLSecurity(parsedURL *url.URL) error {
	if parsedURL.Scheme != "http" {
		return nil
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	isLocal := hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasPrefix(hostname, "192.168.") ||
		strings.HasPrefix(hostname, "10.") ||
		strings.HasPrefix(hostname, "172.")

	if !isLocal {
		return fmt.Errorf("influxdb.url must use HTTPS for non-local connections (got %s). Using HTTP transmits credentials in plaintext", parsedURL.Scheme)
	}
	return nil
}

// snakeCase converts a Go field name to its yaml key form.
func snakeCase(field string) string {
	var b strings.Builder
	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validateLogging validates the logging configuration.
func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"warning": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, fatal, panic")
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be console or json")
	}
	return nil
}
