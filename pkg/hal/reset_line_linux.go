//go:build linux && !tinygo

package hal

import (
	"context"
	"errors"

	"github.com/uptime-industries/ota-agent/pkg/log"
	"github.com/uptime-industries/ota-agent/pkg/util"
	"github.com/warthog618/gpiod"
	"go.uber.org/zap"
)

type gpioResetLine struct {
	chip     *gpiod.Chip
	line     *gpiod.Line
	active   int
	inactive int
	cfg      ResetLineConfig
	clock    util.Clock
}

// NewResetLine requests the reset GPIO as an output driven to its inactive level.
func NewResetLine(ctx context.Context, cfg ResetLineConfig) (ResetLine, error) {
	if cfg.Pulse <= 0 {
		cfg.Pulse = DefaultResetPulse
	}

	active, inactive := 1, 0
	if cfg.ActiveLow {
		active, inactive = 0, 1
	}

	chip, err := gpiod.NewChip(cfg.Chip, gpiod.WithConsumer("ota-agent"))
	if err != nil {
		return nil, err
	}

	line, err := chip.RequestLine(cfg.Offset, gpiod.AsOutput(inactive))
	if err != nil {
		return nil, errors.Join(err, chip.Close())
	}

	log.FromContext(ctx).Info("Requested MCU reset line",
		zap.String("chip", cfg.Chip), zap.Int("offset", cfg.Offset), zap.Bool("active_low", cfg.ActiveLow))
	resetLineConfigured.Set(1)

	return &gpioResetLine{
		chip:     chip,
		line:     line,
		active:   active,
		inactive: inactive,
		cfg:      cfg,
		clock:    util.RealClock{},
	}, nil
}

func (g *gpioResetLine) Pulse(ctx context.Context) error {
	log.FromContext(ctx).Warn("Pulsing MCU reset line", zap.Duration("width", g.cfg.Pulse))
	resetPulseCount.Inc()

	if err := g.line.SetValue(g.active); err != nil {
		return err
	}
	sleepErr := util.Sleep(ctx, g.clock, g.cfg.Pulse)
	// always release the pin, even when interrupted
	return errors.Join(sleepErr, g.line.SetValue(g.inactive))
}

func (g *gpioResetLine) Close() error {
	return errors.Join(g.line.Close(), g.chip.Close())
}
