package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points ENV_FILE at a file that does not exist so a developer .env never leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("CONFIG_FILE", "")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.FastInterval != 500*time.Millisecond {
		t.Errorf("Expected fast interval 500ms, got %v", cfg.FastInterval)
	}
	if cfg.MediumInterval != time.Second {
		t.Errorf("Expected medium interval 1s, got %v", cfg.MediumInterval)
	}
	if cfg.SlowInterval != 5*time.Second {
		t.Errorf("Expected slow interval 5s, got %v", cfg.SlowInterval)
	}
	if cfg.MQTT.RetryInterval != 500*time.Millisecond {
		t.Errorf("Expected retry interval 500ms, got %v", cfg.MQTT.RetryInterval)
	}
	if cfg.HistoryWindow != 25 {
		t.Errorf("Expected history window 25, got %d", cfg.HistoryWindow)
	}
	if cfg.MQTT.Address() != "broker.hivemq.com:1883" {
		t.Errorf("Unexpected broker address %s", cfg.MQTT.Address())
	}
	if !strings.HasPrefix(cfg.MQTT.ClientID, "edgecounter-") {
		t.Errorf("Expected generated client id, got %q", cfg.MQTT.ClientID)
	}
	if len(cfg.MQTT.Channels) != 2 {
		t.Fatalf("Expected 2 channels, got %d", len(cfg.MQTT.Channels))
	}
	if ch, ok := cfg.MQTT.Channel("humidity"); !ok || ch.Column != "Humidity Sensor" {
		t.Errorf("Unexpected humidity channel: %+v (found=%v)", ch, ok)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("MQTT_BROKER", "localhost")
	t.Setenv("MQTT_PORT", "1884")
	t.Setenv("FAST_INTERVAL", "250ms")
	t.Setenv("MEDIUM_INTERVAL", "2000")
	t.Setenv("HISTORY_WINDOW", "10")
	t.Setenv("TEMPERATURE_TOPIC", "lab/temp")
	t.Setenv("STORE_BACKEND", "xlsx")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MQTT.Address() != "localhost:1884" {
		t.Errorf("Expected localhost:1884, got %s", cfg.MQTT.Address())
	}
	if cfg.FastInterval != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", cfg.FastInterval)
	}
	if cfg.MediumInterval != 2*time.Second {
		t.Errorf("Expected bare millisecond value to parse as 2s, got %v", cfg.MediumInterval)
	}
	if cfg.HistoryWindow != 10 {
		t.Errorf("Expected 10, got %d", cfg.HistoryWindow)
	}
	if ch, _ := cfg.MQTT.Channel("temperature"); ch.Topic != "lab/temp" {
		t.Errorf("Expected lab/temp, got %s", ch.Topic)
	}
	if cfg.Store.Backend != BackendXLSX {
		t.Errorf("Expected xlsx backend, got %s", cfg.Store.Backend)
	}
	if filepath.Ext(cfg.Store.Path) != ".xlsx" {
		t.Errorf("Expected default store path to switch to .xlsx, got %s", cfg.Store.Path)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := isolate(t)

	yamlPath := filepath.Join(dir, "edgecounter.yaml")
	content := `
camera_device: "rtsp://cam.local/stream"
slow_interval: 10s
mqtt:
  broker: mqtt.local
  port: 1883
  channels:
    - name: co2
      topic: office/co2
store:
  backend: sqlite
`
	if err := os.WriteFile(yamlPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write yaml: %v", err)
	}
	t.Setenv("SLOW_INTERVAL", "7s")

	cfg, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CameraDevice != "rtsp://cam.local/stream" {
		t.Errorf("Unexpected camera device %q", cfg.CameraDevice)
	}
	if cfg.SlowInterval != 7*time.Second {
		t.Errorf("Expected env to win over yaml (7s), got %v", cfg.SlowInterval)
	}
	if len(cfg.MQTT.Channels) != 1 || cfg.MQTT.Channels[0].Column != "co2" {
		t.Errorf("Expected single co2 channel with derived column, got %+v", cfg.MQTT.Channels)
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("Expected sqlite backend, got %s", cfg.Store.Backend)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("LABEL_FILTER=car\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Setenv("ENV_FILE", envPath)
	t.Setenv("CONFIG_FILE", "")
	// godotenv never overrides a variable that is already set; t.Setenv registers the
	// restore and Unsetenv leaves the key free for the .env file.
	t.Setenv("LABEL_FILTER", "placeholder")
	os.Unsetenv("LABEL_FILTER")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LabelFilter != "car" {
		t.Errorf("Expected label filter from .env, got %q", cfg.LabelFilter)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fast interval", func(c *Config) { c.FastInterval = 0 }},
		{"negative slow interval", func(c *Config) { c.SlowInterval = -time.Second }},
		{"zero window", func(c *Config) { c.HistoryWindow = 0 }},
		{"bad port", func(c *Config) { c.MQTT.Port = 70000 }},
		{"empty broker", func(c *Config) { c.MQTT.Broker = "" }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "parquet" }},
		{"unknown encoding", func(c *Config) { c.ArtifactEncoding = "hex" }},
		{"duplicate channel", func(c *Config) {
			c.MQTT.Channels = append(c.MQTT.Channels, c.MQTT.Channels[0])
		}},
		{"channel without topic", func(c *Config) { c.MQTT.Channels[0].Topic = "" }},
		{"sub-second artifact interval", func(c *Config) { c.ArtifactSaveInterval = 500 * time.Millisecond }},
		{"channel named timestamp", func(c *Config) { c.MQTT.Channels[0].Name = "Timestamp" }},
		{"channel named id", func(c *Config) { c.MQTT.Channels[1].Name = "id" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}

func TestGetEnvAsDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("SOME_INTERVAL", "soon")
	if got := getEnvAsDuration("SOME_INTERVAL", 3*time.Second); got != 3*time.Second {
		t.Errorf("Expected default 3s, got %v", got)
	}
}
