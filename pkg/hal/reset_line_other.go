//go:build !linux && !tinygo

package hal

import (
	"context"
	"errors"
)

var ErrResetLineUnsupported = errors.New("gpio reset line is only supported on linux")

func NewResetLine(_ context.Context, _ ResetLineConfig) (ResetLine, error) {
	return nil, ErrResetLineUnsupported
}
