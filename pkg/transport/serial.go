package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// OpenSerial opens a UART link. The MCU answers every frame with exactly
// frameLen bytes, mirroring the SPI exchange semantics.
func OpenSerial(portName string, baudRate int, readTimeout time.Duration, frameLen int) (Transport, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, err
	}

	return NewStreamTransport(port, frameLen, string(KindSerial), port.ResetInputBuffer), nil
}

type streamTransport struct {
	mu       sync.Mutex
	rwc      io.ReadWriteCloser
	frameLen int
	label    string
	flush    func() error
}

// NewStreamTransport turns a byte stream into a fixed length transport. A read
// returning zero bytes is treated as a timeout. flush, if set, discards stale
// input before each exchange.
func NewStreamTransport(rwc io.ReadWriteCloser, frameLen int, label string, flush func() error) Transport {
	return &streamTransport{
		rwc:      rwc,
		frameLen: frameLen,
		label:    label,
		flush:    flush,
	}
}

func (s *streamTransport) Exchange(ctx context.Context, tx []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, err := pad(tx, s.frameLen)
	if err != nil {
		return nil, err
	}

	if s.flush != nil {
		if err := s.flush(); err != nil {
			exchangeErrors.WithLabelValues(s.label).Inc()
			return nil, err
		}
	}

	if _, err := s.rwc.Write(w); err != nil {
		exchangeErrors.WithLabelValues(s.label).Inc()
		return nil, err
	}

	r := make([]byte, s.frameLen)
	read := 0
	for read < s.frameLen {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.rwc.Read(r[read:])
		if err != nil {
			exchangeErrors.WithLabelValues(s.label).Inc()
			return nil, err
		}
		if n == 0 {
			exchangeErrors.WithLabelValues(s.label).Inc()
			return nil, ErrTimeout
		}
		read += n
	}

	exchangeCount.WithLabelValues(s.label).Inc()
	return r, nil
}

func (s *streamTransport) FrameLen() int {
	return s.frameLen
}

func (s *streamTransport) Close() error {
	return s.rwc.Close()
}
