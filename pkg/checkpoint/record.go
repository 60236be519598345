package checkpoint

import (
	"errors"
	"fmt"
)

var ErrInvalidRecord = errors.New("invalid checkpoint record")

// FlashMode selects how the next flashing attempt is gated.
type FlashMode string

const (
	FlashModeNormal FlashMode = "NORMAL"
	// FlashModeForce marks that the MCU could not be reset after flashing and
	// needs a forced reflash by a supervisor.
	FlashModeForce FlashMode = "FORCE"
)

// ActiveFlag tracks the activation of a flashed MCU image.
type ActiveFlag int

const (
	ActiveInactive ActiveFlag = iota
	ActivePending
	ActiveFailed
)

// Stage is the coarse outcome of the current or last session.
type Stage int

const (
	StageSuccess Stage = iota
	StageInProgress
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageSuccess:
		return "success"
	case StageInProgress:
		return "in_progress"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Record is the durable state shared between the process instance that
// flashes the MCU and the one that confirms it after a reboot.
type Record struct {
	OtaModeFlag bool       `json:"ota_mode_flag" cbor:"ota_mode_flag"`
	FlashMode   FlashMode  `json:"flash_mode" cbor:"flash_mode"`
	McuVersion  string     `json:"mcu_version" cbor:"mcu_version"`
	ActiveFlag  ActiveFlag `json:"active_flag" cbor:"active_flag"`
	ResetFlag   bool       `json:"reset_flag" cbor:"reset_flag"`
	SocFlag     bool       `json:"soc_flag" cbor:"soc_flag"`
	Stage       Stage      `json:"stage" cbor:"stage"`
	Progress    int        `json:"progress" cbor:"progress"`

	// TargetVersion is the version being flashed, compared on confirmation.
	TargetVersion string `json:"target_version,omitempty" cbor:"target_version,omitempty"`
	// RobotVersion is the system version reported by the orchestrator.
	RobotVersion string `json:"robot_version,omitempty" cbor:"robot_version,omitempty"`
	// LastError holds the reason of the last terminal failure.
	LastError string `json:"last_error,omitempty" cbor:"last_error,omitempty"`
}

// Default returns the record used when nothing has been persisted yet.
func Default() Record {
	return Record{FlashMode: FlashModeNormal}
}

// Validate checks all enumerated fields.
func (r *Record) Validate() error {
	switch r.FlashMode {
	case FlashModeNormal, FlashModeForce:
	default:
		return fmt.Errorf("%w: flash_mode %q", ErrInvalidRecord, r.FlashMode)
	}
	if r.ActiveFlag < ActiveInactive || r.ActiveFlag > ActiveFailed {
		return fmt.Errorf("%w: active_flag %d", ErrInvalidRecord, r.ActiveFlag)
	}
	if r.Stage < StageSuccess || r.Stage > StageFailed {
		return fmt.Errorf("%w: stage %d", ErrInvalidRecord, r.Stage)
	}
	if r.Progress < 0 || r.Progress > 100 {
		return fmt.Errorf("%w: progress %d", ErrInvalidRecord, r.Progress)
	}
	return nil
}
