package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/dgcap/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dgcap.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
dgcap:
  capture:
    burst_size: 32
    lock_os_thread: false
    warn_window: 30s
    queues:
      - name: tap0
        type: afpacket
        interface: eth1
        encapsulation: udp
        udp_port: 4789
        fanout_id: 7
        poll_timeout: 5ms
      - type: pcap
        file: /tmp/replay.pcapng
  hardware:
    enabled: false
  report:
    interval: 2s
    format: json
    kafka:
      enabled: true
      brokers: ["localhost:9092"]
  metrics:
    enabled: true
  log:
    level: debug
    format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Capture.BurstSize)
	assert.Equal(t, 16384, cfg.Capture.BufferSize)
	assert.Equal(t, 8191, cfg.Capture.PoolSize)
	assert.Equal(t, 4, cfg.Capture.Ports)
	assert.False(t, cfg.Capture.LockOSThread)
	assert.Equal(t, 30*time.Second, cfg.Capture.WarnWindow)

	require.Len(t, cfg.Capture.Queues, 2)
	q0 := cfg.Capture.Queues[0]
	assert.Equal(t, "tap0", q0.Name)
	assert.Equal(t, "udp", q0.Encapsulation)
	assert.EqualValues(t, 4789, q0.UDPPort)
	assert.EqualValues(t, 7, q0.FanoutID)
	assert.Equal(t, 5*time.Millisecond, q0.PollTimeout)
	assert.Equal(t, 16384, q0.SnapLen, "snap_len follows buffer_size")

	q1 := cfg.Capture.Queues[1]
	assert.Equal(t, "q1", q1.Name)
	assert.Equal(t, QueuePcap, q1.Type)
	assert.Equal(t, "raw", q1.Encapsulation)

	assert.False(t, cfg.Hardware.Enabled)
	assert.Equal(t, "/dev/uio0", cfg.Hardware.Device)
	assert.Equal(t, 2*time.Second, cfg.Report.Interval)
	assert.Equal(t, "json", cfg.Report.Format)
	assert.Equal(t, "dgcap-reports", cfg.Report.Kafka.Topic)
	assert.Equal(t, "snappy", cfg.Report.Kafka.Compression)
	assert.Equal(t, ":9091", cfg.Metrics.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Capture.BurstSize)
	assert.Equal(t, 10, cfg.Capture.WarnLimit)
	assert.Equal(t, 10*time.Second, cfg.Capture.WarnWindow)
	assert.True(t, cfg.Hardware.Enabled)
	assert.Equal(t, 4<<20, cfg.Hardware.MapSize)
	assert.EqualValues(t, 4096, cfg.Hardware.MapOffset)
	assert.Equal(t, 12288, cfg.Hardware.GeneratorOffset)
	assert.Equal(t, 16384, cfg.Hardware.PortOffset)
	assert.Equal(t, 4096, cfg.Hardware.PortStride)
	assert.Equal(t, time.Second, cfg.Report.Interval)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Capture.Queues)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DGCAP_LOG_LEVEL", "warn")
	t.Setenv("DGCAP_CAPTURE_BURST_SIZE", "64")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 64, cfg.Capture.BurstSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "dgcap:\n  log:\n    level: verbose\n"},
		{"log format", "dgcap:\n  log:\n    format: xml\n"},
		{"burst size", "dgcap:\n  capture:\n    burst_size: 0\n"},
		{"pool smaller than burst", "dgcap:\n  capture:\n    pool_size: 4\n"},
		{"ports", "dgcap:\n  capture:\n    ports: 0\n"},
		{"queue type", "dgcap:\n  capture:\n    queues:\n      - type: dpdk\n"},
		{"afpacket interface", "dgcap:\n  capture:\n    queues:\n      - type: afpacket\n"},
		{"pcap file", "dgcap:\n  capture:\n    queues:\n      - type: pcap\n"},
		{"encapsulation", "dgcap:\n  capture:\n    queues:\n      - interface: eth0\n        encapsulation: gre\n"},
		{"duplicate names", "dgcap:\n  capture:\n    queues:\n      - {name: a, interface: eth0}\n      - {name: a, interface: eth1}\n"},
		{"report format", "dgcap:\n  report:\n    format: html\n"},
		{"kafka brokers", "dgcap:\n  report:\n    kafka:\n      enabled: true\n"},
		{"hardware device", "dgcap:\n  hardware:\n    device: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}
