package mcuupdate

// State is a step of the MCU flashing state machine.
type State int

const (
	StatePreCheck State = iota
	StateDriverTransfer
	StateAppErase
	StateAppTransfer
	StateAppVerify
	StateRebootRequest
	StateResetConfirm
	StateDone
	StateFailed
	// StateForcePending is terminal: the image was written but the MCU could
	// not be reset. The checkpoint carries flash_mode FORCE.
	StateForcePending
)

func (s State) String() string {
	switch s {
	case StatePreCheck:
		return "pre_check"
	case StateDriverTransfer:
		return "driver_transfer"
	case StateAppErase:
		return "app_erase"
	case StateAppTransfer:
		return "app_transfer"
	case StateAppVerify:
		return "app_verify"
	case StateRebootRequest:
		return "reboot_request"
	case StateResetConfirm:
		return "reset_confirm"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateForcePending:
		return "force_pending"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further step follows.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateForcePending
}

// Progress is reported to the observer on every state change and chunk.
type Progress struct {
	State State
	// Percent of the MCU flow, 0..100.
	Percent int
}

// progressSpans maps states onto the percent range they cover.
var progressSpans = map[State][2]int{
	StatePreCheck:       {0, 0},
	StateDriverTransfer: {0, 20},
	StateAppErase:       {20, 25},
	StateAppTransfer:    {25, 90},
	StateAppVerify:      {90, 95},
	StateRebootRequest:  {95, 95},
	StateResetConfirm:   {95, 99},
	StateDone:           {100, 100},
}

func percentOf(state State, done, total int) int {
	span, ok := progressSpans[state]
	if !ok {
		return 0
	}
	if total <= 0 {
		return span[0]
	}
	return span[0] + (span[1]-span[0])*done/total
}
