package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrFrameTooLong = errors.New("frame exceeds transport exchange length")
	ErrTimeout      = errors.New("transport read timeout")
	ErrUnsupported  = errors.New("transport not supported on this platform")
	ErrUnknownKind  = errors.New("unknown transport kind")
)

// Kind selects the physical link used to talk to the MCU.
type Kind string

const (
	KindSpidev    Kind = "spidev"
	KindSerial    Kind = "serial"
	KindSimulated Kind = "simulated"
)

const (
	// FrameLenSPI1 and FrameLenSPI2 are the fixed exchange lengths of the two SPI buses.
	FrameLenSPI1 = 200
	FrameLenSPI2 = 174

	DefaultSpeedHz     = 10_000_000
	DefaultMode        = 3
	DefaultBitsPerWord = 8

	DefaultBaudRate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

// Transport is a half-duplex synchronous link. Every Exchange clocks out
// exactly FrameLen bytes and clocks in the same amount.
type Transport interface {
	// Exchange sends tx, zero padded to FrameLen, and returns the FrameLen bytes received in the same exchange.
	Exchange(ctx context.Context, tx []byte) ([]byte, error)
	// FrameLen returns the fixed number of bytes per exchange.
	FrameLen() int
	// Close releases the underlying device.
	Close() error
}

// Config describes how to open a transport.
type Config struct {
	Kind        Kind          `mapstructure:"kind"`
	Device      string        `mapstructure:"device"`
	FrameLen    int           `mapstructure:"frame_len"`
	SpeedHz     uint32        `mapstructure:"speed_hz"`
	Mode        uint8         `mapstructure:"mode"`
	BitsPerWord uint8         `mapstructure:"bits_per_word"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// WithDefaults fills unset numeric fields. Mode is left as is since SPI mode 0
// is a valid setting.
func (c Config) WithDefaults() Config {
	if c.FrameLen <= 0 {
		c.FrameLen = FrameLenSPI2
	}
	if c.SpeedHz == 0 {
		c.SpeedHz = DefaultSpeedHz
	}
	if c.BitsPerWord == 0 {
		c.BitsPerWord = DefaultBitsPerWord
	}
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// Open returns a transport for the given hardware configuration. The simulated
// kind is not handled here, see internal/mcusim.
func Open(cfg Config) (Transport, error) {
	cfg = cfg.WithDefaults()

	switch cfg.Kind {
	case KindSpidev:
		dev, err := OpenSpidev(cfg.Device, cfg.Mode, cfg.BitsPerWord, cfg.SpeedHz)
		if err != nil {
			return nil, err
		}
		return NewBusTransport(dev, cfg.FrameLen, string(KindSpidev), dev.Close), nil
	case KindSerial:
		return OpenSerial(cfg.Device, cfg.BaudRate, cfg.ReadTimeout, cfg.FrameLen)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// pad copies tx into a zero filled buffer of frameLen bytes.
func pad(tx []byte, frameLen int) ([]byte, error) {
	if len(tx) > frameLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLong, len(tx), frameLen)
	}
	buf := make([]byte, frameLen)
	copy(buf, tx)
	return buf, nil
}
