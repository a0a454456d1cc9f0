package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendCSV    = "csv"
	BackendXLSX   = "xlsx"
	BackendSQLite = "sqlite"
)

// Artifact payload encodings.
const (
	EncodingBase64  = "base64"
	EncodingRaw     = "raw"
	EncodingMsgpack = "msgpack"
)

// Config is the full runtime configuration of both programs.
type Config struct {
	CameraDevice       string  `yaml:"camera_device"`
	ModelPath          string  `yaml:"model_path"`
	ModelConfigPath    string  `yaml:"model_config_path"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	LabelFilter        string  `yaml:"label_filter"`

	MQTT MQTTConfig `yaml:"mqtt"`

	FastInterval   time.Duration `yaml:"fast_interval"`
	MediumInterval time.Duration `yaml:"medium_interval"`
	SlowInterval   time.Duration `yaml:"slow_interval"`
	HistoryWindow  int           `yaml:"history_window"`

	ArtifactEncoding     string        `yaml:"artifact_encoding"`
	ArtifactSaveInterval time.Duration `yaml:"artifact_save_interval"`
	ArtifactDirectory    string        `yaml:"artifact_dir"`

	Store StoreConfig `yaml:"store"`

	DisplayPort  int    `yaml:"display_port"`
	StaticDir    string `yaml:"static_dir"`
	LogDirectory string `yaml:"log_dir"`

	Light LightConfig `yaml:"light"`
}

// MQTTConfig holds broker address and topic names.
type MQTTConfig struct {
	Broker           string          `yaml:"broker"`
	Port             int             `yaml:"port"`
	ClientID         string          `yaml:"client_id"`
	RetryInterval    time.Duration   `yaml:"retry_interval"`
	ObservationTopic string          `yaml:"observation_topic"`
	ArtifactTopic    string          `yaml:"artifact_topic"`
	Channels         []ChannelConfig `yaml:"channels"`
}

// ChannelConfig binds an external reading channel to its topic and store column.
type ChannelConfig struct {
	Name   string `yaml:"name"`
	Topic  string `yaml:"topic"`
	Column string `yaml:"column"`
}

// StoreConfig selects the durable recorder backend.
type StoreConfig struct {
	Backend           string `yaml:"backend"`
	Path              string `yaml:"path"`
	DatabasePath      string `yaml:"database_path"`
	TimestampColumn   string `yaml:"timestamp_column"`
	ObservationColumn string `yaml:"observation_column"`
}

// LightConfig configures the indicator light watcher.
type LightConfig struct {
	SourceURL      string        `yaml:"source_url"`
	Topic          string        `yaml:"topic"`
	Interval       time.Duration `yaml:"interval"`
	PixelThreshold int           `yaml:"pixel_threshold"`
}

// Address returns the broker address in host:port form.
func (m MQTTConfig) Address() string {
	return fmt.Sprintf("%s:%d", m.Broker, m.Port)
}

// Channel returns the channel config with the given name.
func (m MQTTConfig) Channel(name string) (ChannelConfig, bool) {
	for _, ch := range m.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CameraDevice:       "0",
		ModelPath:          filepath.Join(".", "models", "frozen_inference_graph.pb"),
		ModelConfigPath:    filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt"),
		DetectionThreshold: 0.5,
		LabelFilter:        "person",
		MQTT: MQTTConfig{
			Broker:           "broker.hivemq.com",
			Port:             1883,
			RetryInterval:    500 * time.Millisecond,
			ObservationTopic: "camera_detect_topic/6538",
			ArtifactTopic:    "camera_detect_topic/image1",
			Channels: []ChannelConfig{
				{Name: "temperature", Topic: "temp_sensor_topic/6552", Column: "Temp Sensor"},
				{Name: "humidity", Topic: "humidity_sensor_topic/6552", Column: "Humidity Sensor"},
			},
		},
		FastInterval:         500 * time.Millisecond,
		MediumInterval:       time.Second,
		SlowInterval:         5 * time.Second,
		HistoryWindow:        25,
		ArtifactEncoding:     EncodingBase64,
		ArtifactSaveInterval: 5 * time.Second,
		ArtifactDirectory:    filepath.Join(".", "image"),
		Store: StoreConfig{
			Backend:           BackendCSV,
			Path:              filepath.Join(".", "average_count.csv"),
			DatabasePath:      filepath.Join(".", "data", "edgecounter.db"),
			TimestampColumn:   "Timestamp",
			ObservationColumn: "Average Count",
		},
		DisplayPort:  8080,
		StaticDir:    "static",
		LogDirectory: filepath.Join(".", "logs"),
		Light: LightConfig{
			SourceURL:      "http://172.20.10.5/capture",
			Topic:          "esp_cam_air/6552",
			Interval:       5 * time.Second,
			PixelThreshold: 50,
		},
	}
}

// Load builds the configuration from .env, an optional YAML file and the environment.
// configPath may be empty, in which case CONFIG_FILE is consulted.
func Load(configPath string) (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := Default()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_FILE")
	}
	if configPath != "" {
		if err := cfg.loadYAML(configPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.CameraDevice = getEnv("CAMERA_DEVICE", c.CameraDevice)
	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.ModelConfigPath = getEnv("MODEL_CONFIG_PATH", c.ModelConfigPath)
	c.DetectionThreshold = getEnvAsFloat("DETECTION_THRESHOLD", c.DetectionThreshold)
	c.LabelFilter = getEnv("LABEL_FILTER", c.LabelFilter)

	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Port = getEnvAsInt("MQTT_PORT", c.MQTT.Port)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.RetryInterval = getEnvAsDuration("MQTT_RETRY_INTERVAL", c.MQTT.RetryInterval)
	c.MQTT.ObservationTopic = getEnv("OBSERVATION_TOPIC", c.MQTT.ObservationTopic)
	c.MQTT.ArtifactTopic = getEnv("ARTIFACT_TOPIC", c.MQTT.ArtifactTopic)
	for i := range c.MQTT.Channels {
		switch c.MQTT.Channels[i].Name {
		case "temperature":
			c.MQTT.Channels[i].Topic = getEnv("TEMPERATURE_TOPIC", c.MQTT.Channels[i].Topic)
		case "humidity":
			c.MQTT.Channels[i].Topic = getEnv("HUMIDITY_TOPIC", c.MQTT.Channels[i].Topic)
		}
	}

	c.FastInterval = getEnvAsDuration("FAST_INTERVAL", c.FastInterval)
	c.MediumInterval = getEnvAsDuration("MEDIUM_INTERVAL", c.MediumInterval)
	c.SlowInterval = getEnvAsDuration("SLOW_INTERVAL", c.SlowInterval)
	c.HistoryWindow = getEnvAsInt("HISTORY_WINDOW", c.HistoryWindow)

	c.ArtifactEncoding = getEnv("ARTIFACT_ENCODING", c.ArtifactEncoding)
	c.ArtifactSaveInterval = getEnvAsDuration("ARTIFACT_SAVE_INTERVAL", c.ArtifactSaveInterval)
	c.ArtifactDirectory = getEnv("ARTIFACT_DIR", c.ArtifactDirectory)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.Path = getEnv("STORE_PATH", c.Store.Path)
	c.Store.DatabasePath = getEnv("DATABASE_PATH", c.Store.DatabasePath)

	c.DisplayPort = getEnvAsInt("DISPLAY_PORT", c.DisplayPort)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)

	c.Light.SourceURL = getEnv("LIGHT_SOURCE_URL", c.Light.SourceURL)
	c.Light.Topic = getEnv("LIGHT_TOPIC", c.Light.Topic)
	c.Light.Interval = getEnvAsDuration("LIGHT_INTERVAL", c.Light.Interval)
	c.Light.PixelThreshold = getEnvAsInt("LIGHT_PIXEL_THRESHOLD", c.Light.PixelThreshold)
}

// Validate checks the configuration and fills derived defaults.
func Validate(cfg *Config) error {
	if cfg.CameraDevice == "" {
		return fmt.Errorf("camera_device is required")
	}
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.MQTT.Port <= 0 || cfg.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port must be in 1..65535, got %d", cfg.MQTT.Port)
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "edgecounter-" + uuid.NewString()
	}
	if cfg.MQTT.RetryInterval < 0 {
		return fmt.Errorf("mqtt.retry_interval must be >= 0")
	}

	seen := make(map[string]bool, len(cfg.MQTT.Channels))
	for i, ch := range cfg.MQTT.Channels {
		if ch.Name == "" || ch.Topic == "" {
			return fmt.Errorf("mqtt.channels[%d]: name and topic are required", i)
		}
		for _, col := range []string{"id", "timestamp", "smoothed"} {
			if strings.EqualFold(ch.Name, col) {
				return fmt.Errorf("mqtt.channels[%d]: %q is reserved for the record store", i, ch.Name)
			}
		}
		if seen[ch.Name] {
			return fmt.Errorf("mqtt.channels[%d]: duplicate channel %q", i, ch.Name)
		}
		seen[ch.Name] = true
		if ch.Column == "" {
			cfg.MQTT.Channels[i].Column = ch.Name
		}
	}

	for name, d := range map[string]time.Duration{
		"fast_interval":          cfg.FastInterval,
		"medium_interval":        cfg.MediumInterval,
		"slow_interval":          cfg.SlowInterval,
		"artifact_save_interval": cfg.ArtifactSaveInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if cfg.ArtifactSaveInterval < time.Second {
		return fmt.Errorf("artifact_save_interval must be >= 1s, got %v", cfg.ArtifactSaveInterval)
	}
	if cfg.HistoryWindow < 1 {
		return fmt.Errorf("history_window must be >= 1, got %d", cfg.HistoryWindow)
	}

	switch cfg.ArtifactEncoding {
	case EncodingBase64, EncodingRaw, EncodingMsgpack:
	default:
		return fmt.Errorf("unknown artifact_encoding %q", cfg.ArtifactEncoding)
	}

	switch cfg.Store.Backend {
	case BackendCSV, BackendXLSX, BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q (must be csv, xlsx or sqlite)", cfg.Store.Backend)
	}
	if cfg.Store.Backend != BackendSQLite && cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required for the %s backend", cfg.Store.Backend)
	}
	if cfg.Store.Backend == BackendXLSX && filepath.Ext(cfg.Store.Path) == ".csv" {
		cfg.Store.Path = cfg.Store.Path[:len(cfg.Store.Path)-len(".csv")] + ".xlsx"
	}
	if cfg.Store.TimestampColumn == "" {
		cfg.Store.TimestampColumn = "Timestamp"
	}
	if cfg.Store.ObservationColumn == "" {
		cfg.Store.ObservationColumn = "Average Count"
	}

	if cfg.DisplayPort <= 0 || cfg.DisplayPort > 65535 {
		return fmt.Errorf("display_port must be in 1..65535, got %d", cfg.DisplayPort)
	}

	if cfg.Light.Interval <= 0 {
		cfg.Light.Interval = 5 * time.Second
	}
	if cfg.Light.PixelThreshold < 0 {
		return fmt.Errorf("light.pixel_threshold must be >= 0")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("500ms") or bare milliseconds ("500").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
