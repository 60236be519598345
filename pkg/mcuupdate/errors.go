package mcuupdate

import "errors"

var (
	// ErrVersionConflict rejects flashing an image older than the running firmware.
	ErrVersionConflict = errors.New("version conflict")
	// ErrFile indicates an unreadable or malformed image.
	ErrFile = errors.New("image file error")
	// ErrState indicates a missing or inconsistent checkpoint record.
	ErrState = errors.New("invalid update state")
	// ErrForceMode is returned when the MCU could not be reset after flashing.
	// The checkpoint record is left in FORCE flash mode for a supervisor.
	ErrForceMode = errors.New("mcu reset failed, force flash mode required")
	// ErrEraseInProgress is the retryable ERASING reply to an erase request.
	ErrEraseInProgress = errors.New("erase in progress")
)
