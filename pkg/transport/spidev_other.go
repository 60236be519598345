//go:build !linux

package transport

import "tinygo.org/x/drivers"

// fails if Spidev does not implement drivers.SPI
var _ drivers.SPI = &Spidev{}

// Spidev is only available on linux.
type Spidev struct{}

func OpenSpidev(_ string, _, _ uint8, _ uint32) (*Spidev, error) {
	return nil, ErrUnsupported
}

func (*Spidev) Tx(_, _ []byte) error {
	return ErrUnsupported
}

func (*Spidev) Transfer(byte) (byte, error) {
	return 0, ErrUnsupported
}

func (*Spidev) Close() error {
	return nil
}
