package mcusim

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/uptime-industries/ota-agent/pkg/mcuproto"
	"github.com/uptime-industries/ota-agent/pkg/transport"
	"go.uber.org/zap"
)

// fails if Device does not implement transport.Transport
var _ transport.Transport = &Device{}

// versionFieldLen is the NUL padded version field of a flash finish reply.
const versionFieldLen = 24

// Hook may replace the reply to a request. Returning handled=false falls back
// to the simulated firmware. A non-nil error is reported as transport failure.
type Hook func(req mcuproto.Frame, call int) (reply []byte, handled bool, err error)

// Options configures the simulated MCU.
type Options struct {
	FrameLen int `mapstructure:"frame_len"`
	// Version is the firmware version running before a reset.
	Version string `mapstructure:"version"`
	// BootVersion is the version reported after a reset. Defaults to Version.
	BootVersion string `mapstructure:"boot_version"`
	// EraseBusyPolls is the number of ERASING replies before an erase completes.
	EraseBusyPolls int `mapstructure:"erase_busy_polls"`
	// EraseNG makes every erase request fail with NG.
	EraseNG bool `mapstructure:"erase_ng"`

	Hook   Hook        `mapstructure:"-"`
	Logger *zap.Logger `mapstructure:"-"`
}

// Device is an in-process MCU speaking the update protocol over a fixed
// length exchange. Responses are produced in the same exchange as the request.
type Device struct {
	mu   sync.Mutex
	opts Options

	version    string
	erasePolls int
	rebooted   bool

	expectedLen int
	received    map[uint16][]byte
	chunkLog    []uint16
	calls       map[mcuproto.Command]int
}

func New(opts Options) *Device {
	if opts.FrameLen <= 0 {
		opts.FrameLen = transport.FrameLenSPI2
	}
	if opts.BootVersion == "" {
		opts.BootVersion = opts.Version
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Device{
		opts:     opts,
		version:  opts.Version,
		received: make(map[uint16][]byte),
		calls:    make(map[mcuproto.Command]int),
	}
}

func (d *Device) FrameLen() int {
	return d.opts.FrameLen
}

func (d *Device) Close() error {
	return nil
}

// Exchange decodes the request and returns the padded response frame. Requests
// that fail to decode get an all zero response, like a silent bus.
func (d *Device) Exchange(ctx context.Context, tx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(tx) > d.opts.FrameLen {
		return nil, transport.ErrFrameTooLong
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rx := make([]byte, d.opts.FrameLen)
	req, err := mcuproto.Decode(tx)
	if err != nil {
		d.opts.Logger.Warn("Dropping undecodable request", zap.Error(err))
		return rx, nil
	}

	d.calls[req.Command]++
	call := d.calls[req.Command]

	var reply []byte
	handled := false
	if d.opts.Hook != nil {
		reply, handled, err = d.opts.Hook(req, call)
		if err != nil {
			return nil, err
		}
	}
	if !handled {
		reply = d.handle(req)
	}
	if reply == nil {
		return rx, nil
	}

	frame := mcuproto.AppendFrame(nil, req.Command, reply)
	if len(frame) > len(rx) {
		return nil, errors.New("simulated reply exceeds frame length")
	}
	copy(rx, frame)
	return rx, nil
}

func (d *Device) handle(req mcuproto.Frame) []byte {
	switch req.Command {
	case mcuproto.CmdPreProgramCheck:
		return append([]byte(d.version), mcuproto.StatusOK)

	case mcuproto.CmdDownloadRequest:
		if len(req.Payload) != 7 {
			return []byte{mcuproto.StatusNG}
		}
		d.expectedLen = int(binary.BigEndian.Uint32(req.Payload[3:7]))
		d.received = make(map[uint16][]byte)
		d.opts.Logger.Debug("Download requested",
			zap.Uint8("kind", req.Payload[0]),
			zap.Uint16("chunks", binary.BigEndian.Uint16(req.Payload[1:3])),
			zap.Int("bytes", d.expectedLen))
		return []byte{mcuproto.StatusOK}

	case mcuproto.CmdDownloadData:
		if len(req.Payload) < 2 {
			return []byte{0, 0, mcuproto.StatusNG}
		}
		index := binary.BigEndian.Uint16(req.Payload[0:2])
		d.received[index] = append([]byte{}, req.Payload[2:]...)
		d.chunkLog = append(d.chunkLog, index)
		return []byte{req.Payload[0], req.Payload[1], mcuproto.StatusOK}

	case mcuproto.CmdCheckData:
		if len(req.Payload) != md5.Size {
			return []byte{mcuproto.StatusNG}
		}
		image := d.image()
		digest := md5.Sum(image)
		if len(image) != d.expectedLen || string(digest[:]) != string(req.Payload) {
			return []byte{mcuproto.StatusNG}
		}
		return []byte{mcuproto.StatusOK}

	case mcuproto.CmdEraseApp:
		if d.opts.EraseNG {
			return []byte{mcuproto.StatusNG}
		}
		if d.erasePolls < d.opts.EraseBusyPolls {
			d.erasePolls++
			return []byte{mcuproto.StatusErasing}
		}
		d.erasePolls = 0
		return []byte{mcuproto.StatusOK}

	case mcuproto.CmdReset:
		d.rebooted = true
		d.version = d.opts.BootVersion
		return nil

	case mcuproto.CmdFlashFinish:
		reply := make([]byte, versionFieldLen+1)
		copy(reply, d.version)
		reply[versionFieldLen] = mcuproto.StatusOK
		return reply

	default:
		return []byte{mcuproto.StatusNG}
	}
}

// image reassembles the received chunks in index order.
func (d *Device) image() []byte {
	var out []byte
	for i := 0; i < len(d.received); i++ {
		chunk, ok := d.received[uint16(i)]
		if !ok {
			return nil
		}
		out = append(out, chunk...)
	}
	return out
}

// Calls returns how often cmd was received.
func (d *Device) Calls(cmd mcuproto.Command) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[cmd]
}

// ChunkLog returns the chunk indices in the order they were received.
func (d *Device) ChunkLog() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint16{}, d.chunkLog...)
}

// Image returns the last fully received image.
func (d *Device) Image() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.image()
}

// Rebooted reports whether a reset command was received.
func (d *Device) Rebooted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rebooted
}

// Version returns the currently running version.
func (d *Device) Version() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}
