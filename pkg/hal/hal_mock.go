package hal

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// fails if ResetLineMock does not implement ResetLine
var _ ResetLine = &ResetLineMock{}

// ResetLineMock implements a mock for the ResetLine interface
type ResetLineMock struct {
	mock.Mock
}

func (m *ResetLineMock) Pulse(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *ResetLineMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
