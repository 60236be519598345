package util

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// fails if MockClock does not implement Clock
var _ Clock = &MockClock{}

// MockClock implements Clock with testify expectations. After must be
// configured to return a chan time.Time.
type MockClock struct {
	mock.Mock
}

func (mc *MockClock) Now() time.Time {
	args := mc.Called()
	return args.Get(0).(time.Time)
}

func (mc *MockClock) After(d time.Duration) <-chan time.Time {
	args := mc.Called(d)
	return args.Get(0).(chan time.Time)
}

// NewInstantMockClock returns a MockClock whose timers fire immediately.
func NewInstantMockClock() *MockClock {
	fired := make(chan time.Time)
	close(fired)

	clock := &MockClock{}
	clock.On("After", mock.Anything).Return(fired)
	return clock
}
