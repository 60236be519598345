package mcuupdate

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/uptime-industries/ota-agent/pkg/exchange"
	"github.com/uptime-industries/ota-agent/pkg/log"
	"github.com/uptime-industries/ota-agent/pkg/mcuproto"
	"go.uber.org/zap"
)

// Device operations. Each one is a single protocol step; retrying is left to
// exchange.RetryOperation at the call site.

// ackOK accepts a single byte 0x00 acknowledgement.
func ackOK(op string, cmd mcuproto.Command, payload []byte) error {
	if len(payload) < 1 {
		return fmt.Errorf("%w: %s: empty acknowledgement", exchange.ErrProtocol, op)
	}
	if payload[0] != mcuproto.StatusOK {
		return exchange.Rejected(op, cmd, payload[0])
	}
	return nil
}

// parseVersionReply splits a reply of version bytes followed by a status byte.
func parseVersionReply(cmd mcuproto.Command, payload []byte) (string, uint8, error) {
	if len(payload) < 2 {
		return "", 0, fmt.Errorf("%w: %s reply of %d bytes", exchange.ErrProtocol, cmd, len(payload))
	}
	status := payload[len(payload)-1]
	version := strings.TrimSpace(strings.TrimRight(string(payload[:len(payload)-1]), "\x00"))
	return version, status, nil
}

// SendDownloadRequest announces an image transfer.
func (u *Updater) SendDownloadRequest(ctx context.Context, kind mcuproto.ImageKind, totalChunks uint16, totalBytes uint32) error {
	payload := make([]byte, 0, 7)
	payload = append(payload, uint8(kind))
	payload = binary.BigEndian.AppendUint16(payload, totalChunks)
	payload = binary.BigEndian.AppendUint32(payload, totalBytes)

	return exchange.Retry(ctx, u.clock, "download_request", u.cfg.Retry, func(ctx context.Context) error {
		reply, err := u.exchanger.ExchangeOnce(ctx, mcuproto.CmdDownloadRequest, payload)
		if err != nil {
			return err
		}
		return ackOK("download request", mcuproto.CmdDownloadRequest, reply)
	})
}

// SendChunk transfers a single chunk and checks its acknowledgement.
func (u *Updater) SendChunk(ctx context.Context, chunk Chunk) error {
	payload := make([]byte, 0, 2+len(chunk.Data))
	payload = binary.BigEndian.AppendUint16(payload, chunk.Index)
	payload = append(payload, chunk.Data...)

	reply, err := u.exchanger.ExchangeOnce(ctx, mcuproto.CmdDownloadData, payload)
	if err != nil {
		chunkCount.WithLabelValues("error").Inc()
		return err
	}
	if len(reply) < 3 {
		chunkCount.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: chunk %d: acknowledgement of %d bytes", exchange.ErrProtocol, chunk.Index, len(reply))
	}
	if acked := binary.BigEndian.Uint16(reply[0:2]); acked != chunk.Index {
		chunkCount.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: chunk %d acknowledged as %d", exchange.ErrProtocol, chunk.Index, acked)
	}
	if status := reply[2]; status != mcuproto.StatusOK {
		chunkCount.WithLabelValues("rejected").Inc()
		return exchange.Rejected(fmt.Sprintf("chunk %d", chunk.Index), mcuproto.CmdDownloadData, status)
	}

	chunkCount.WithLabelValues("ok").Inc()
	return nil
}

// VerifyMd5 sends the MD5 digest of the whole image for device side verification.
func (u *Updater) VerifyMd5(ctx context.Context, data []byte) error {
	digest := md5.Sum(data)
	return exchange.Retry(ctx, u.clock, "verify_md5", u.cfg.Retry, func(ctx context.Context) error {
		reply, err := u.exchanger.ExchangeOnce(ctx, mcuproto.CmdCheckData, digest[:])
		if err != nil {
			return err
		}
		return ackOK("md5 verification", mcuproto.CmdCheckData, reply)
	})
}

// QueryVersion asks the MCU for its running firmware version.
func (u *Updater) QueryVersion(ctx context.Context) (string, error) {
	return exchange.RetryOperation(ctx, u.clock, "pre_program_check", u.cfg.Retry, func(ctx context.Context) (string, error) {
		reply, err := u.exchanger.ExchangeOnce(ctx, mcuproto.CmdPreProgramCheck, []byte{mcuproto.RequestMarker})
		if err != nil {
			return "", err
		}
		version, status, err := parseVersionReply(mcuproto.CmdPreProgramCheck, reply)
		if err != nil {
			return "", err
		}
		if status != mcuproto.StatusOK {
			return "", exchange.Rejected("pre-program check", mcuproto.CmdPreProgramCheck, status)
		}
		return version, nil
	})
}

// EraseApp erases the application area, polling while the MCU reports ERASING.
func (u *Updater) EraseApp(ctx context.Context) error {
	polls := 0
	err := exchange.Retry(ctx, u.clock, "erase_app", u.cfg.Retry, func(ctx context.Context) error {
		polls++
		reply, err := u.exchanger.ExchangeOnce(ctx, mcuproto.CmdEraseApp, []byte{mcuproto.RequestMarker})
		if err != nil {
			return err
		}
		if len(reply) < 1 {
			return fmt.Errorf("%w: empty erase reply", exchange.ErrProtocol)
		}
		switch reply[0] {
		case mcuproto.StatusOK:
			return nil
		case mcuproto.StatusErasing:
			return ErrEraseInProgress
		case mcuproto.StatusNG:
			return exchange.Permanent(exchange.Rejected("erase", mcuproto.CmdEraseApp, reply[0]))
		default:
			return exchange.Rejected("erase", mcuproto.CmdEraseApp, reply[0])
		}
	})
	log.FromContext(ctx).Debug("Erase finished", zap.Int("polls", polls), zap.Error(err))
	return err
}

// RequestReset sends the fire-and-forget reset command.
func (u *Updater) RequestReset(ctx context.Context) error {
	return exchange.Retry(ctx, u.clock, "reset", u.cfg.Retry, func(ctx context.Context) error {
		return u.exchanger.Send(ctx, mcuproto.CmdReset, []byte{mcuproto.RequestMarker})
	})
}

// FlashFinish polls the MCU for the version it booted after flashing.
func (u *Updater) FlashFinish(ctx context.Context) (string, error) {
	return exchange.RetryOperation(ctx, u.clock, "flash_finish", u.cfg.ConfirmRetry, func(ctx context.Context) (string, error) {
		reply, err := u.exchanger.ExchangeOnce(ctx, mcuproto.CmdFlashFinish, []byte{mcuproto.RequestMarker})
		if err != nil {
			return "", err
		}
		version, status, err := parseVersionReply(mcuproto.CmdFlashFinish, reply)
		if err != nil {
			return "", err
		}
		switch status {
		case mcuproto.StatusOK:
			return version, nil
		case mcuproto.StatusNG:
			return "", exchange.Permanent(exchange.Rejected("flash finish", mcuproto.CmdFlashFinish, status))
		default:
			return "", exchange.Rejected("flash finish", mcuproto.CmdFlashFinish, status)
		}
	})
}
