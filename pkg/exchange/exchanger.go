package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/uptime-industries/ota-agent/pkg/log"
	"github.com/uptime-industries/ota-agent/pkg/mcuproto"
	"github.com/uptime-industries/ota-agent/pkg/transport"
	"go.uber.org/zap"
)

// Exchanger runs request/response round trips over a transport. It owns the
// frame encoder and serialises callers, so only one frame is in flight.
type Exchanger struct {
	mu        sync.Mutex
	transport transport.Transport
	encoder   mcuproto.Encoder
}

func NewExchanger(t transport.Transport) *Exchanger {
	return &Exchanger{transport: t}
}

// ExchangeOnce sends a single request and returns the payload of the response
// received in the same exchange. No retries.
func (e *Exchanger) ExchangeOnce(ctx context.Context, cmd mcuproto.Command, payload []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rx, err := e.transmit(ctx, cmd, payload)
	if err != nil {
		return nil, err
	}

	frame, err := mcuproto.Decode(rx)
	if err != nil {
		decodeErrors.WithLabelValues(cmd.String()).Inc()
		log.FromContext(ctx).Debug("Failed to decode response", zap.Stringer("command", cmd), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrProtocol, cmd, err)
	}

	return frame.Payload, nil
}

// Send transmits a request without interpreting the inbound bytes.
func (e *Exchanger) Send(ctx context.Context, cmd mcuproto.Command, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.transmit(ctx, cmd, payload)
	return err
}

func (e *Exchanger) transmit(ctx context.Context, cmd mcuproto.Command, payload []byte) ([]byte, error) {
	raw, err := e.encoder.Encode(cmd, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProtocol, cmd, err)
	}
	defer e.encoder.Release()

	framesSent.WithLabelValues(cmd.String()).Inc()
	rx, err := e.transport.Exchange(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, cmd, err)
	}
	return rx, nil
}
