package transport

import (
	"context"

	"tinygo.org/x/drivers"
)

type busTransport struct {
	bus      drivers.SPI
	frameLen int
	label    string
	closer   func() error
}

// NewBusTransport wraps a SPI bus into a fixed length transport. closer may be nil.
func NewBusTransport(bus drivers.SPI, frameLen int, label string, closer func() error) Transport {
	return &busTransport{
		bus:      bus,
		frameLen: frameLen,
		label:    label,
		closer:   closer,
	}
}

func (b *busTransport) Exchange(ctx context.Context, tx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, err := pad(tx, b.frameLen)
	if err != nil {
		return nil, err
	}
	r := make([]byte, b.frameLen)

	if err := b.bus.Tx(w, r); err != nil {
		exchangeErrors.WithLabelValues(b.label).Inc()
		return nil, err
	}

	exchangeCount.WithLabelValues(b.label).Inc()
	return r, nil
}

func (b *busTransport) FrameLen() int {
	return b.frameLen
}

func (b *busTransport) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}
