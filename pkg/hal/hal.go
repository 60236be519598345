package hal

import (
	"context"
	"time"
)

const DefaultResetPulse = 100 * time.Millisecond

// ResetLineConfig describes the GPIO wired to the MCU reset pin.
type ResetLineConfig struct {
	// Chip is the gpiochip name, e.g. "gpiochip0". An empty chip disables the reset line.
	Chip      string        `mapstructure:"chip"`
	Offset    int           `mapstructure:"offset"`
	ActiveLow bool          `mapstructure:"active_low"`
	Pulse     time.Duration `mapstructure:"pulse"`
}

// Enabled reports whether a hardware reset line is configured.
func (c ResetLineConfig) Enabled() bool {
	return c.Chip != ""
}

// ResetLine drives the MCU reset pin. It is the fallback when the MCU does not
// accept the reset command after flashing.
type ResetLine interface {
	// Pulse asserts the reset pin for the configured width and releases it.
	Pulse(ctx context.Context) error
	Close() error
}
