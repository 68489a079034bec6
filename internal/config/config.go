// Package config handles configuration loading using viper.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/rcf"
	"firestige.xyz/sle/internal/sle/pdu"
	"firestige.xyz/sle/internal/sle/session"
)

// Config represents the top-level configuration.
// Maps to the `sle:` root key in YAML.
type Config struct {
	Provider   ProviderConfig   `mapstructure:"provider" yaml:"provider"`
	User       UserConfig       `mapstructure:"user" yaml:"user"`
	RCF        RCFConfig        `mapstructure:"rcf" yaml:"rcf"`
	Frame      FrameConfig      `mapstructure:"frame" yaml:"frame"`
	Sinks      []map[string]any `mapstructure:"sinks" yaml:"sinks"`
	Forwarding ForwardingConfig `mapstructure:"forwarding" yaml:"forwarding"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// ─── Provider ───

// ProviderConfig describes the SLE provider endpoint and its identity.
type ProviderConfig struct {
	Address           string        `mapstructure:"address" yaml:"address"` // host:port
	ResponderPort     string        `mapstructure:"responder_port" yaml:"responder_port"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"` // 0 disables
	DeadFactor        int           `mapstructure:"dead_factor" yaml:"dead_factor"`
	MaxPDULength      uint32        `mapstructure:"max_pdu_length" yaml:"max_pdu_length"`
	// Peer identity; provider credentials are verified only when Username is set.
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"` // hex
}

// ─── User ───

// UserConfig is the local identity presented to the provider.
type UserConfig struct {
	InitiatorID string `mapstructure:"initiator_id" yaml:"initiator_id"`
	Password    string `mapstructure:"password" yaml:"password"`     // hex
	AuthLevel   string `mapstructure:"auth_level" yaml:"auth_level"` // none | all
}

// ─── RCF ───

// RCFConfig selects the service instance and the data to request.
type RCFConfig struct {
	ServiceInstanceID string `mapstructure:"service_instance_id" yaml:"service_instance_id"`
	Version           int    `mapstructure:"version" yaml:"version"`

	// Session defaults for the requested GVCID.
	SpacecraftID   *int `mapstructure:"spacecraft_id" yaml:"spacecraft_id,omitempty"`
	FrameVersion   *int `mapstructure:"frame_version" yaml:"frame_version,omitempty"`
	MasterChannel  bool `mapstructure:"master_channel" yaml:"master_channel"`
	VirtualChannel *int `mapstructure:"virtual_channel" yaml:"virtual_channel,omitempty"`

	// RFC 3339; empty leaves the bound undefined.
	StartTime string `mapstructure:"start_time" yaml:"start_time,omitempty"`
	StopTime  string `mapstructure:"stop_time" yaml:"stop_time,omitempty"`

	StatusReport    StatusReportConfig `mapstructure:"status_report" yaml:"status_report"`
	ReturnTimeout   time.Duration      `mapstructure:"return_timeout" yaml:"return_timeout"`
	StopOnEndOfData bool               `mapstructure:"stop_on_end_of_data" yaml:"stop_on_end_of_data"`

	startAt time.Time
	stopAt  time.Time
}

// StatusReportConfig schedules provider status reports after start.
type StatusReportConfig struct {
	Type  string `mapstructure:"type" yaml:"type,omitempty"` // immediately | periodically | empty
	Cycle *int   `mapstructure:"cycle" yaml:"cycle,omitempty"`
}

// ─── Frame ───

// FrameConfig describes the transfer frames carried by the service.
type FrameConfig struct {
	FECF                  bool `mapstructure:"fecf" yaml:"fecf"`
	AOSOCF                bool `mapstructure:"aos_ocf" yaml:"aos_ocf"`
	AOSHeaderErrorControl bool `mapstructure:"aos_header_error_control" yaml:"aos_header_error_control"`
}

// ─── Forwarding ───

// ForwardingConfig tunes the per-sink batching queue.
type ForwardingConfig struct {
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `sle: ...`.
type configRoot struct {
	SLE Config `mapstructure:"sle"`
}

// Load loads configuration from file.
// The YAML file uses `sle:` as root key; env vars map through the key
// replacer (e.g. key "sle.provider.address" → env "SLE_PROVIDER_ADDRESS").
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.SLE

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values; all keys use the "sle." prefix.
func setDefaults(v *viper.Viper) {
	// Provider defaults
	v.SetDefault("sle.provider.dial_timeout", "10s")
	v.SetDefault("sle.provider.write_timeout", "10s")
	v.SetDefault("sle.provider.heartbeat_interval", "25s")
	v.SetDefault("sle.provider.dead_factor", 5)
	v.SetDefault("sle.provider.max_pdu_length", 16*1024*1024)

	// User defaults
	v.SetDefault("sle.user.auth_level", "none")

	// RCF defaults
	v.SetDefault("sle.rcf.version", pdu.DefaultBindVersion)
	v.SetDefault("sle.rcf.return_timeout", "30s")
	v.SetDefault("sle.rcf.stop_on_end_of_data", false)

	// Frame defaults
	v.SetDefault("sle.frame.fecf", true)
	v.SetDefault("sle.frame.aos_ocf", false)
	v.SetDefault("sle.frame.aos_header_error_control", false)

	// Forwarding defaults
	v.SetDefault("sle.forwarding.batch_size", 64)
	v.SetDefault("sle.forwarding.batch_timeout", "50ms")
	v.SetDefault("sle.forwarding.queue_size", 4096)

	// Metrics defaults
	v.SetDefault("sle.metrics.enabled", true)
	v.SetDefault("sle.metrics.listen", ":9091")
	v.SetDefault("sle.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("sle.log.level", "info")
	v.SetDefault("sle.log.format", "json")
	v.SetDefault("sle.log.outputs.file.enabled", false)
	v.SetDefault("sle.log.outputs.file.path", "/var/log/sle/sle.log")
	v.SetDefault("sle.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("sle.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("sle.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("sle.log.outputs.file.rotation.compress", true)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

// ValidateAndApplyDefaults validates configuration and resolves derived
// values (times, report schedule).
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("log level %q (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("log format %q (must be json/text)", cfg.Log.Format)
	}

	// ── Provider ──
	if cfg.Provider.Address == "" {
		return invalid("provider.address is required")
	}
	if cfg.Provider.DeadFactor <= 0 {
		return invalid("provider.dead_factor must be positive")
	}
	if _, err := decodeHex(cfg.Provider.Password); err != nil {
		return invalid("provider.password: %v", err)
	}

	// ── User ──
	if _, err := session.ParseAuthLevel(cfg.User.AuthLevel); err != nil {
		return invalid("user.auth_level: %v", err)
	}
	if _, err := decodeHex(cfg.User.Password); err != nil {
		return invalid("user.password: %v", err)
	}

	// ── RCF ──
	if _, err := pdu.ParseServiceInstanceID(cfg.RCF.ServiceInstanceID); err != nil {
		return invalid("rcf.service_instance_id: %v", err)
	}
	var err error
	if cfg.RCF.startAt, err = parseTime(cfg.RCF.StartTime); err != nil {
		return invalid("rcf.start_time: %v", err)
	}
	if cfg.RCF.stopAt, err = parseTime(cfg.RCF.StopTime); err != nil {
		return invalid("rcf.stop_time: %v", err)
	}
	if !cfg.RCF.startAt.IsZero() && !cfg.RCF.stopAt.IsZero() && cfg.RCF.stopAt.Before(cfg.RCF.startAt) {
		return invalid("rcf.stop_time before rcf.start_time")
	}
	if t := cfg.RCF.StatusReport.Type; t != "" {
		if t == "stop" {
			return invalid("rcf.status_report.type %q cannot be scheduled at start", t)
		}
		if _, err := rcf.ParseReportRequest(t, cfg.RCF.StatusReport.Cycle); err != nil {
			return invalid("rcf.status_report: %v", err)
		}
	}

	// ── Sinks ──
	for i, s := range cfg.Sinks {
		if typ, _ := s["type"].(string); typ == "" {
			return invalid("sinks[%d].type is required", i)
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	return nil
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// ─── Derived settings ───

// SessionConfig returns the session settings.
func (cfg *Config) SessionConfig() session.Config {
	auth, _ := session.ParseAuthLevel(cfg.User.AuthLevel)
	userPw, _ := decodeHex(cfg.User.Password)
	peerPw, _ := decodeHex(cfg.Provider.Password)
	return session.Config{
		Address:           cfg.Provider.Address,
		DialTimeout:       cfg.Provider.DialTimeout,
		WriteTimeout:      cfg.Provider.WriteTimeout,
		HeartbeatInterval: cfg.Provider.HeartbeatInterval,
		DeadFactor:        cfg.Provider.DeadFactor,
		MaxPDULength:      cfg.Provider.MaxPDULength,
		AuthLevel:         auth,
		Username:          cfg.User.InitiatorID,
		Password:          userPw,
		PeerUsername:      cfg.Provider.Username,
		PeerPassword:      peerPw,
	}
}

// BindParams returns the bind parameters of the configured service instance.
func (cfg *Config) BindParams() rcf.BindParams {
	sii, _ := pdu.ParseServiceInstanceID(cfg.RCF.ServiceInstanceID)
	return rcf.BindParams{
		InitiatorID:       cfg.User.InitiatorID,
		ResponderPortID:   cfg.Provider.ResponderPort,
		ServiceInstanceID: sii,
		Version:           cfg.RCF.Version,
	}
}

// Defaults returns the session level GVCID fallbacks.
func (cfg *Config) Defaults() rcf.Defaults {
	return rcf.Defaults{SpacecraftID: cfg.RCF.SpacecraftID, FrameVersion: cfg.RCF.FrameVersion}
}

// StartRequest returns the start request built from the rcf section.
func (cfg *Config) StartRequest() rcf.StartRequest {
	return rcf.StartRequest{
		Start:          cfg.RCF.startAt,
		Stop:           cfg.RCF.stopAt,
		MasterChannel:  cfg.RCF.MasterChannel,
		VirtualChannel: cfg.RCF.VirtualChannel,
	}
}
