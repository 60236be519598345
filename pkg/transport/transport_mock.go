package transport

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// fails if TransportMock does not implement Transport
var _ Transport = &TransportMock{}

// TransportMock implements a mock for the Transport interface
type TransportMock struct {
	mock.Mock
}

func (m *TransportMock) Exchange(ctx context.Context, tx []byte) ([]byte, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *TransportMock) FrameLen() int {
	args := m.Called()
	return args.Int(0)
}

func (m *TransportMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
