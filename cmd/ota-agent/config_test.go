package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
	"github.com/uptime-industries/ota-agent/pkg/transport"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "unix:///tmp/ota-agent.sock", cfg.Listen.GRPC)
	assert.Equal(t, transport.KindSpidev, cfg.Agent.Transport.Kind)
	assert.Equal(t, transport.FrameLenSPI2, cfg.Agent.Transport.FrameLen)
	assert.Equal(t, uint8(transport.DefaultMode), cfg.Agent.Transport.Mode)
	assert.Equal(t, transport.DefaultBaudRate, cfg.Agent.Transport.BaudRate)
	assert.Equal(t, checkpoint.DefaultPath, cfg.Agent.Checkpoint.Path)
	assert.Equal(t, 6, cfg.Agent.Mcu.Retry.Attempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Agent.Mcu.Retry.Interval)
	assert.Equal(t, 3, cfg.Agent.Mcu.SequenceAttempts)
	assert.Equal(t, []string{"dpkg", "-i"}, cfg.Agent.Soc.DebCommand)
	assert.Equal(t, 5*time.Second, cfg.Agent.RebootSettle)
	assert.False(t, cfg.Agent.ResetLine.Enabled())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
transport:
  kind: serial
  device: /dev/ttyS3
  frame_len: 200
checkpoint:
  format: cbor
mcu:
  retry:
    attempts: 10
    interval: 20ms
reset_line:
  chip: gpiochip0
  offset: 17
reboot_settle: 2s
`), 0o644))
	t.Setenv("OTA_AGENT_LISTEN_HTTP", "127.0.0.1:9000")
	t.Setenv("OTA_AGENT_TRANSPORT_DEVICE", "/dev/ttyS4")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen.HTTP)
	assert.Equal(t, transport.KindSerial, cfg.Agent.Transport.Kind)
	assert.Equal(t, "/dev/ttyS4", cfg.Agent.Transport.Device)
	assert.Equal(t, transport.FrameLenSPI1, cfg.Agent.Transport.FrameLen)
	assert.Equal(t, checkpoint.FormatCBOR, cfg.Agent.Checkpoint.Format)
	assert.Equal(t, 10, cfg.Agent.Mcu.Retry.Attempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Agent.Mcu.Retry.Interval)
	assert.Equal(t, 6, cfg.Agent.Mcu.ConfirmRetry.Attempts)
	assert.Equal(t, "gpiochip0", cfg.Agent.ResetLine.Chip)
	assert.Equal(t, 17, cfg.Agent.ResetLine.Offset)
	assert.Equal(t, 2*time.Second, cfg.Agent.RebootSettle)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
