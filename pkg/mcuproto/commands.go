package mcuproto

import "fmt"

// Command is the type byte of a frame.
type Command uint8

const (
	CmdNone            Command = 0x00
	CmdPreProgramCheck Command = 0x01
	CmdDownloadRequest Command = 0x03
	CmdDownloadData    Command = 0x05
	CmdCheckData       Command = 0x07
	CmdReset           Command = 0x09
	CmdEraseApp        Command = 0x0B
	CmdFlashFinish     Command = 0x0D
)

func (c Command) String() string {
	switch c {
	case CmdNone:
		return "none"
	case CmdPreProgramCheck:
		return "pre_program_check"
	case CmdDownloadRequest:
		return "download_request"
	case CmdDownloadData:
		return "download_data"
	case CmdCheckData:
		return "check_data"
	case CmdReset:
		return "reset"
	case CmdEraseApp:
		return "erase_app"
	case CmdFlashFinish:
		return "flash_finish"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(c))
	}
}

// Status bytes returned by the MCU.
const (
	StatusOK      uint8 = 0x00
	StatusNG      uint8 = 0x01
	StatusErasing uint8 = 0x02
)

// RequestMarker is the single byte payload of query style commands
// (pre-program check, erase, reset, flash finish).
const RequestMarker uint8 = 0x01

// ImageKind is the first byte of a download request.
type ImageKind uint8

const (
	ImageFlashDriver ImageKind = 0x01
	ImageApp         ImageKind = 0x02
)

func (k ImageKind) String() string {
	switch k {
	case ImageFlashDriver:
		return "flash_driver"
	case ImageApp:
		return "app"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(k))
	}
}
