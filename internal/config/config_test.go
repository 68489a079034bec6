package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/sle/session"
)

const minimalConfig = `
sle:
  provider:
    address: "127.0.0.1:5100"
    responder_port: "TMPORT"
  user:
    initiator_id: "LSE"
  rcf:
    service_instance_id: "sagr=1.spack=VST-PASS0001.rsl-fg=1.rcf=onlc1"
    spacecraft_id: 185
    frame_version: 1
    virtual_channel: 0
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Provider.HeartbeatInterval != 25*time.Second {
		t.Errorf("Expected heartbeat 25s, got %v", cfg.Provider.HeartbeatInterval)
	}
	if cfg.Provider.DeadFactor != 5 {
		t.Errorf("Expected dead factor 5, got %d", cfg.Provider.DeadFactor)
	}
	if cfg.RCF.Version != 5 {
		t.Errorf("Expected bind version 5, got %d", cfg.RCF.Version)
	}
	if cfg.User.AuthLevel != "none" {
		t.Errorf("Expected auth level none, got %s", cfg.User.AuthLevel)
	}
	if !cfg.Frame.FECF {
		t.Error("Expected FECF enabled by default")
	}
	if cfg.Forwarding.BatchTimeout != 50*time.Millisecond {
		t.Errorf("Expected batch timeout 50ms, got %v", cfg.Forwarding.BatchTimeout)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Expected info/json logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if len(cfg.Sinks) != 0 {
		t.Errorf("Expected no sinks, got %v", cfg.Sinks)
	}
	if cfg.RCF.SpacecraftID == nil || *cfg.RCF.SpacecraftID != 185 {
		t.Errorf("Expected spacecraft id 185, got %v", cfg.RCF.SpacecraftID)
	}
	if cfg.RCF.VirtualChannel == nil || *cfg.RCF.VirtualChannel != 0 {
		t.Errorf("Expected virtual channel 0, got %v", cfg.RCF.VirtualChannel)
	}
}

func TestLoadFullConfig(t *testing.T) {
	content := `
sle:
  provider:
    address: "provider.example:5100"
    heartbeat_interval: 0s
    username: "PROVIDER"
    password: "0a0b"
  user:
    initiator_id: "LSE"
    password: "deadbeef"
    auth_level: "all"
  rcf:
    service_instance_id: "sagr=1.spack=VST-PASS0001.rsl-fg=1.rcf=onlc1"
    master_channel: true
    start_time: "2024-03-01T00:00:00Z"
    stop_time: "2024-03-02T00:00:00Z"
    status_report:
      type: periodically
      cycle: 30
  sinks:
    - type: udp
      address: "127.0.0.1:4000"
    - type: kafka
      brokers: ["k1:9092"]
      topic: frames
  log:
    level: debug
    format: text
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	sc := cfg.SessionConfig()
	if sc.AuthLevel != session.AuthAll {
		t.Errorf("Expected auth all, got %v", sc.AuthLevel)
	}
	if string(sc.Password) != "\xde\xad\xbe\xef" {
		t.Errorf("Unexpected user password %x", sc.Password)
	}
	if sc.PeerUsername != "PROVIDER" || len(sc.PeerPassword) != 2 {
		t.Errorf("Unexpected peer identity %s %x", sc.PeerUsername, sc.PeerPassword)
	}
	if sc.HeartbeatInterval != 0 {
		t.Errorf("Expected heartbeats disabled, got %v", sc.HeartbeatInterval)
	}

	req := cfg.StartRequest()
	if !req.MasterChannel {
		t.Error("Expected master channel")
	}
	if !req.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected start %v", req.Start)
	}

	if len(cfg.Sinks) != 2 || cfg.Sinks[1]["type"] != "kafka" {
		t.Errorf("Unexpected sinks %v", cfg.Sinks)
	}
	bp := cfg.BindParams()
	if bp.ServiceInstanceID.String() != "sagr=1.spack=VST-PASS0001.rsl-fg=1.rcf=onlc1" {
		t.Errorf("Unexpected service instance %s", bp.ServiceInstanceID)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SLE_PROVIDER_ADDRESS", "10.0.0.1:5200")
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Provider.Address != "10.0.0.1:5200" {
		t.Errorf("Expected env override, got %s", cfg.Provider.Address)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidation(t *testing.T) {
	valid := func() Config {
		return Config{
			Provider: ProviderConfig{Address: "127.0.0.1:5100", DeadFactor: 5},
			User:     UserConfig{AuthLevel: "none"},
			RCF:      RCFConfig{ServiceInstanceID: "sagr=1.rcf=onlc1"},
			Metrics:  MetricsConfig{Enabled: true, Listen: ":9091"},
			Log:      LogConfig{Level: "info", Format: "json"},
		}
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"missing address", func(c *Config) { c.Provider.Address = "" }},
		{"zero dead factor", func(c *Config) { c.Provider.DeadFactor = 0 }},
		{"bad auth level", func(c *Config) { c.User.AuthLevel = "bind" }},
		{"bad password", func(c *Config) { c.User.Password = "xyz" }},
		{"bad service instance", func(c *Config) { c.RCF.ServiceInstanceID = "nope" }},
		{"bad start time", func(c *Config) { c.RCF.StartTime = "yesterday" }},
		{"stop before start", func(c *Config) {
			c.RCF.StartTime = "2024-03-02T00:00:00Z"
			c.RCF.StopTime = "2024-03-01T00:00:00Z"
		}},
		{"bad report type", func(c *Config) { c.RCF.StatusReport.Type = "bogus" }},
		{"report stop", func(c *Config) { c.RCF.StatusReport.Type = "stop" }},
		{"periodic without cycle", func(c *Config) { c.RCF.StatusReport.Type = "periodically" }},
		{"sink without type", func(c *Config) { c.Sinks = []map[string]any{{"address": "x"}} }},
		{"metrics without listen", func(c *Config) { c.Metrics.Listen = "" }},
	}

	base := valid()
	if err := base.ValidateAndApplyDefaults(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.ValidateAndApplyDefaults()
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}
