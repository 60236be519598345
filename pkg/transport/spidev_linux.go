//go:build linux

package transport

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"
)

// fails if Spidev does not implement drivers.SPI
var _ drivers.SPI = &Spidev{}

// ioctl request numbers from linux/spi/spidev.h
const (
	spiIocWrMode         = 0x40016B01
	spiIocWrBitsPerWord  = 0x40016B03
	spiIocWrMaxSpeedHz   = 0x40046B04
	spiIocMessageOneXfer = 0x40206B00
)

// spiIocTransfer mirrors struct spi_ioc_transfer (32 bytes).
type spiIocTransfer struct {
	txBuf          uint64
	rxBuf          uint64
	length         uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNbits        uint8
	rxNbits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// Spidev is a userspace SPI master on top of /dev/spidevB.C.
type Spidev struct {
	mu          sync.Mutex
	file        *os.File
	speedHz     uint32
	bitsPerWord uint8
}

// OpenSpidev opens and configures a spidev device node.
func OpenSpidev(path string, mode, bitsPerWord uint8, speedHz uint32) (*Spidev, error) {
	if bitsPerWord == 0 {
		bitsPerWord = DefaultBitsPerWord
	}
	if speedHz == 0 {
		speedHz = DefaultSpeedHz
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	dev := &Spidev{file: f, speedHz: speedHz, bitsPerWord: bitsPerWord}
	if err := dev.ioctl(spiIocWrMode, unsafe.Pointer(&mode)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set spi mode %d: %w", mode, err)
	}
	if err := dev.ioctl(spiIocWrBitsPerWord, unsafe.Pointer(&bitsPerWord)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set bits per word %d: %w", bitsPerWord, err)
	}
	if err := dev.ioctl(spiIocWrMaxSpeedHz, unsafe.Pointer(&speedHz)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set speed %d Hz: %w", speedHz, err)
	}

	return dev, nil
}

func (s *Spidev) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, s.file.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Tx performs one full duplex transfer. w and r must have equal length, either may be nil.
func (s *Spidev) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(w)
	if n == 0 {
		n = len(r)
	}
	if n == 0 {
		return nil
	}
	if w != nil && r != nil && len(w) != len(r) {
		return fmt.Errorf("spidev: tx length %d does not match rx length %d", len(w), len(r))
	}

	xfer := spiIocTransfer{
		length:      uint32(n),
		speedHz:     s.speedHz,
		bitsPerWord: s.bitsPerWord,
	}
	if w != nil {
		xfer.txBuf = uint64(uintptr(unsafe.Pointer(&w[0])))
	}
	if r != nil {
		xfer.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}

	err := s.ioctl(spiIocMessageOneXfer, unsafe.Pointer(&xfer))
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	return err
}

// Transfer clocks a single byte.
func (s *Spidev) Transfer(b byte) (byte, error) {
	r := []byte{0}
	if err := s.Tx([]byte{b}, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (s *Spidev) Close() error {
	return s.file.Close()
}
