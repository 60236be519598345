package main

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
	"github.com/uptime-industries/ota-agent/internal/agent"
	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
	"github.com/uptime-industries/ota-agent/pkg/exchange"
	"github.com/uptime-industries/ota-agent/pkg/hal"
	"github.com/uptime-industries/ota-agent/pkg/log"
	"github.com/uptime-industries/ota-agent/pkg/mcuupdate"
	"github.com/uptime-industries/ota-agent/pkg/transport"
)

type listenConfig struct {
	// GRPC is a unix://path or host:port address
	GRPC string `mapstructure:"grpc"`
	// Http serves /metrics and /ws/status
	HTTP string `mapstructure:"http"`
}

type config struct {
	Log    log.Config   `mapstructure:"log"`
	Listen listenConfig `mapstructure:"listen"`

	Agent agent.OtaAgentConfig `mapstructure:",squash"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("listen.grpc", "unix:///tmp/ota-agent.sock")
	v.SetDefault("listen.http", ":9667")

	v.SetDefault("transport.kind", string(transport.KindSpidev))
	v.SetDefault("transport.device", "/dev/spidev2.0")
	v.SetDefault("transport.frame_len", transport.FrameLenSPI2)
	v.SetDefault("transport.speed_hz", transport.DefaultSpeedHz)
	v.SetDefault("transport.mode", transport.DefaultMode)
	v.SetDefault("transport.bits_per_word", transport.DefaultBitsPerWord)
	v.SetDefault("transport.baud_rate", transport.DefaultBaudRate)
	v.SetDefault("transport.read_timeout", transport.DefaultReadTimeout)

	v.SetDefault("checkpoint.path", checkpoint.DefaultPath)
	v.SetDefault("checkpoint.format", string(checkpoint.FormatJSON))

	v.SetDefault("mcu.retry.attempts", exchange.DefaultAttempts)
	v.SetDefault("mcu.retry.interval", exchange.DefaultInterval)
	v.SetDefault("mcu.confirm_retry.attempts", exchange.DefaultAttempts)
	v.SetDefault("mcu.confirm_retry.interval", exchange.DefaultInterval)
	v.SetDefault("mcu.sequence_attempts", mcuupdate.DefaultSequenceAttempts)
	v.SetDefault("mcu.chunk_size", mcuupdate.ChunkSize)

	v.SetDefault("reset_line.chip", "")
	v.SetDefault("reset_line.offset", 0)
	v.SetDefault("reset_line.active_low", true)
	v.SetDefault("reset_line.pulse", hal.DefaultResetPulse)

	v.SetDefault("soc.deb_command", []string{"dpkg", "-i"})
	v.SetDefault("soc.image_command", []string{})

	v.SetDefault("simulator.version", "1.0.0")
	v.SetDefault("simulator.boot_version", "")
	v.SetDefault("simulator.erase_busy_polls", 2)
	v.SetDefault("simulator.erase_ng", false)

	v.SetDefault("reboot_settle", agent.DefaultRebootSettle)
}

// loadConfig merges defaults, the optional config file and OTA_AGENT_*
// environment variables.
func loadConfig(path string) (config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OTA_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ota-agent")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/ota-agent")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return config{}, err
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}
