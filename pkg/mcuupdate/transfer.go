package mcuupdate

import (
	"context"

	"github.com/uptime-industries/ota-agent/pkg/exchange"
	"github.com/uptime-industries/ota-agent/pkg/log"
	"github.com/uptime-industries/ota-agent/pkg/mcuproto"
	"go.uber.org/zap"
)

// transferSequence sends all chunks in ascending order. Any failure aborts the
// sequence; the next attempt restarts at chunk 0.
func (u *Updater) transferSequence(ctx context.Context, state State, chunks []Chunk) error {
	policy := exchange.RetryPolicy{Attempts: u.cfg.SequenceAttempts, Interval: u.cfg.Retry.Interval}

	return exchange.Retry(ctx, u.clock, "chunk_sequence", policy, func(ctx context.Context) error {
		for i, chunk := range chunks {
			if err := u.SendChunk(ctx, chunk); err != nil {
				log.FromContext(ctx).Warn("Chunk transfer failed, restarting sequence",
					zap.Uint16("index", chunk.Index), zap.Int("chunks", len(chunks)), zap.Error(err))
				return err
			}
			u.report(state, i+1, len(chunks))
		}
		return nil
	})
}

// Download runs download request, chunk sequence and MD5 verification as one
// unit. The unit is retried from the download request, which resets the
// device's receive state. On failure it returns the state of the step that
// failed last.
func (u *Updater) Download(ctx context.Context, kind mcuproto.ImageKind, image Image, transferState, verifyState State) (State, error) {
	chunks, err := SplitChunks(image.Data, u.cfg.ChunkSize)
	if err != nil {
		return transferState, err
	}

	log.FromContext(ctx).Info("Starting image download",
		zap.Stringer("kind", kind),
		zap.String("image", image.Name),
		zap.Int("bytes", len(image.Data)),
		zap.Int("chunks", len(chunks)),
	)

	failed := transferState
	err = exchange.Retry(ctx, u.clock, "download_"+kind.String(), u.cfg.Retry, func(ctx context.Context) error {
		failed = transferState
		u.report(transferState, 0, len(chunks))
		if err := u.SendDownloadRequest(ctx, kind, uint16(len(chunks)), uint32(len(image.Data))); err != nil {
			return err
		}
		if err := u.transferSequence(ctx, transferState, chunks); err != nil {
			return err
		}
		failed = verifyState
		if verifyState != transferState {
			u.report(verifyState, 0, 1)
		}
		return u.VerifyMd5(ctx, image.Data)
	})
	return failed, err
}
