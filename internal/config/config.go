// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/dgcap/internal/core"
)

// Config is the top-level configuration, mapped from the `dgcap:` root key.
type Config struct {
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Hardware HardwareConfig `mapstructure:"hardware" yaml:"hardware"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ─── Capture ───

// CaptureConfig contains capture loop and receive queue settings.
type CaptureConfig struct {
	BurstSize    int           `mapstructure:"burst_size" yaml:"burst_size"`
	BufferSize   int           `mapstructure:"buffer_size" yaml:"buffer_size"` // bytes per pooled buffer
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`     // buffers per queue
	Ports        int           `mapstructure:"ports" yaml:"ports"`             // TAP ports per device
	LockOSThread bool          `mapstructure:"lock_os_thread" yaml:"lock_os_thread"`
	DumpLimit    int           `mapstructure:"dump_limit" yaml:"dump_limit"`
	WarnLimit    int           `mapstructure:"warn_limit" yaml:"warn_limit"`
	WarnWindow   time.Duration `mapstructure:"warn_window" yaml:"warn_window"`
	Queues       []QueueConfig `mapstructure:"queues" yaml:"queues"`
}

// Queue types.
const (
	QueueAFPacket = "afpacket"
	QueuePcap     = "pcap"
)

// QueueConfig describes one receive queue.
type QueueConfig struct {
	Name          string        `mapstructure:"name" yaml:"name"`
	Type          string        `mapstructure:"type" yaml:"type"` // afpacket | pcap
	Interface     string        `mapstructure:"interface" yaml:"interface,omitempty"`
	File          string        `mapstructure:"file" yaml:"file,omitempty"`
	Encapsulation string        `mapstructure:"encapsulation" yaml:"encapsulation"` // raw | ethernet | udp
	UDPPort       uint16        `mapstructure:"udp_port" yaml:"udp_port,omitempty"`
	BPFFilter     string        `mapstructure:"bpf_filter" yaml:"bpf_filter,omitempty"`
	FanoutID      uint16        `mapstructure:"fanout_id" yaml:"fanout_id,omitempty"`
	SnapLen       int           `mapstructure:"snap_len" yaml:"snap_len,omitempty"`
	BlockSize     int           `mapstructure:"block_size" yaml:"block_size,omitempty"`
	NumBlocks     int           `mapstructure:"num_blocks" yaml:"num_blocks,omitempty"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout,omitempty"`
}

// ─── Hardware ───

// HardwareConfig locates the TAP register window.
type HardwareConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Device          string `mapstructure:"device" yaml:"device"`
	MapSize         int    `mapstructure:"map_size" yaml:"map_size"`
	MapOffset       int64  `mapstructure:"map_offset" yaml:"map_offset"`
	GeneratorOffset int    `mapstructure:"generator_offset" yaml:"generator_offset"`
	PortOffset      int    `mapstructure:"port_offset" yaml:"port_offset"`
	PortStride      int    `mapstructure:"port_stride" yaml:"port_stride"`
}

// ─── Report ───

// ReportConfig controls the periodic and final reports.
type ReportConfig struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	Format      string        `mapstructure:"format" yaml:"format"` // text | json
	ClearScreen bool          `mapstructure:"clear_screen" yaml:"clear_screen"`
	Kafka       KafkaConfig   `mapstructure:"kafka" yaml:"kafka"`
}

// KafkaConfig configures report publishing to Kafka.
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers     []string `mapstructure:"brokers" yaml:"brokers"`
	Topic       string   `mapstructure:"topic" yaml:"topic"`
	Compression string   `mapstructure:"compression" yaml:"compression"` // none|gzip|snappy|lz4|zstd
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

// configRoot is the top-level wrapper matching the YAML structure `dgcap: ...`.
type configRoot struct {
	DGCap Config `mapstructure:"dgcap"`
}

// Load loads configuration from file. An empty path loads defaults only.
// The YAML file uses `dgcap:` as root key; env vars map through the key
// replacer (e.g. key "dgcap.log.level" → env "DGCAP_LOG_LEVEL").
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.DGCap

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values. All keys use the "dgcap." prefix.
func setDefaults(v *viper.Viper) {
	// Capture defaults
	v.SetDefault("dgcap.capture.burst_size", 16)
	v.SetDefault("dgcap.capture.buffer_size", 16384)
	v.SetDefault("dgcap.capture.pool_size", 8191)
	v.SetDefault("dgcap.capture.ports", 4)
	v.SetDefault("dgcap.capture.lock_os_thread", true)
	v.SetDefault("dgcap.capture.dump_limit", 256)
	v.SetDefault("dgcap.capture.warn_limit", 10)
	v.SetDefault("dgcap.capture.warn_window", "10s")

	// Hardware defaults
	v.SetDefault("dgcap.hardware.enabled", true)
	v.SetDefault("dgcap.hardware.device", "/dev/uio0")
	v.SetDefault("dgcap.hardware.map_size", 4<<20)
	v.SetDefault("dgcap.hardware.map_offset", 4096)
	v.SetDefault("dgcap.hardware.generator_offset", 12288)
	v.SetDefault("dgcap.hardware.port_offset", 16384)
	v.SetDefault("dgcap.hardware.port_stride", 4096)

	// Report defaults
	v.SetDefault("dgcap.report.interval", "1s")
	v.SetDefault("dgcap.report.format", "text")
	v.SetDefault("dgcap.report.clear_screen", true)
	v.SetDefault("dgcap.report.kafka.enabled", false)
	v.SetDefault("dgcap.report.kafka.topic", "dgcap-reports")
	v.SetDefault("dgcap.report.kafka.compression", "snappy")

	// Metrics defaults
	v.SetDefault("dgcap.metrics.enabled", false)
	v.SetDefault("dgcap.metrics.listen", ":9091")
	v.SetDefault("dgcap.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("dgcap.log.level", "info")
	v.SetDefault("dgcap.log.format", "text")
	v.SetDefault("dgcap.log.outputs.file.enabled", false)
	v.SetDefault("dgcap.log.outputs.file.path", "/var/log/dgcap/dgcap.log")
	v.SetDefault("dgcap.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("dgcap.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("dgcap.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("dgcap.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and fills per-queue defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Capture validation ──
	c := &cfg.Capture
	if c.BurstSize <= 0 {
		return invalid("capture.burst_size must be positive, got %d", c.BurstSize)
	}
	if c.BufferSize < 8 {
		return invalid("capture.buffer_size must hold at least a datagram header, got %d", c.BufferSize)
	}
	if c.PoolSize < c.BurstSize {
		return invalid("capture.pool_size %d is smaller than burst_size %d", c.PoolSize, c.BurstSize)
	}
	if c.Ports <= 0 || c.Ports > 256 {
		return invalid("capture.ports must be in 1..256, got %d", c.Ports)
	}

	names := make(map[string]bool, len(c.Queues))
	for i := range c.Queues {
		q := &c.Queues[i]
		if q.Name == "" {
			q.Name = fmt.Sprintf("q%d", i)
		}
		if names[q.Name] {
			return invalid("duplicate queue name %q", q.Name)
		}
		names[q.Name] = true

		if q.Type == "" {
			q.Type = QueueAFPacket
		}
		if q.Encapsulation == "" {
			q.Encapsulation = "raw"
		}
		switch q.Encapsulation {
		case "raw", "ethernet", "udp":
		default:
			return invalid("queue %q: unknown encapsulation %q (must be raw/ethernet/udp)", q.Name, q.Encapsulation)
		}

		switch q.Type {
		case QueueAFPacket:
			if q.Interface == "" {
				return invalid("queue %q: interface is required for afpacket", q.Name)
			}
			if q.SnapLen <= 0 {
				q.SnapLen = c.BufferSize
			}
		case QueuePcap:
			if q.File == "" {
				return invalid("queue %q: file is required for pcap", q.Name)
			}
		default:
			return invalid("queue %q: unknown type %q (must be afpacket/pcap)", q.Name, q.Type)
		}
	}

	// ── Hardware validation ──
	if cfg.Hardware.Enabled && cfg.Hardware.Device == "" {
		return invalid("hardware.device is required when hardware.enabled=true")
	}

	// ── Report validation ──
	if cfg.Report.Format != "text" && cfg.Report.Format != "json" {
		return invalid("invalid report format: %s (must be text/json)", cfg.Report.Format)
	}
	if cfg.Report.Interval < 0 {
		return invalid("report.interval must not be negative")
	}
	if cfg.Report.Kafka.Enabled && len(cfg.Report.Kafka.Brokers) == 0 {
		return invalid("report.kafka.brokers is required when report.kafka.enabled=true")
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
