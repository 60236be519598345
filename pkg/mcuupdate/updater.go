package mcuupdate

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
	"github.com/uptime-industries/ota-agent/pkg/exchange"
	"github.com/uptime-industries/ota-agent/pkg/hal"
	"github.com/uptime-industries/ota-agent/pkg/log"
	"github.com/uptime-industries/ota-agent/pkg/mcuproto"
	"github.com/uptime-industries/ota-agent/pkg/util"
	"go.uber.org/zap"
)

var (
	chunkCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Subsystem: "mcu",
		Name:      "chunks_count",
		Help:      "Image chunks sent to the MCU by result",
	}, []string{"result"})
	flashOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Subsystem: "mcu",
		Name:      "flash_outcome_count",
		Help:      "Terminal outcomes of the MCU state machine",
	}, []string{"state"})
	flashState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ota_agent",
		Subsystem: "mcu",
		Name:      "state",
		Help:      "Current MCU state machine step (1 for the active step)",
	}, []string{"state"})
)

const DefaultSequenceAttempts = 3

// Config tunes the MCU update protocol.
type Config struct {
	// Retry bounds every device step and the request-to-verification unit.
	Retry exchange.RetryPolicy `mapstructure:"retry"`
	// ConfirmRetry bounds flash finish polling after the MCU reboot.
	ConfirmRetry exchange.RetryPolicy `mapstructure:"confirm_retry"`
	// SequenceAttempts is the number of full chunk sequences per download request.
	SequenceAttempts int `mapstructure:"sequence_attempts"`
	ChunkSize        int `mapstructure:"chunk_size"`
}

func DefaultConfig() Config {
	return Config{
		Retry:            exchange.DefaultRetryPolicy(),
		ConfirmRetry:     exchange.DefaultRetryPolicy(),
		SequenceAttempts: DefaultSequenceAttempts,
		ChunkSize:        ChunkSize,
	}
}

// Images is the MCU part of an update bundle.
type Images struct {
	// FlashDriver is the optional loader image transferred before the application.
	FlashDriver *Image
	App         Image
}

// Updater drives the MCU through pre-check, transfer, verification and reset,
// persisting every transition in the checkpoint store.
type Updater struct {
	exchanger *exchange.Exchanger
	store     checkpoint.Store
	resetLine hal.ResetLine
	clock     util.Clock
	cfg       Config
	observer  func(Progress)

	percent int
}

type Option func(*Updater)

// WithResetLine sets the hardware reset used when the reset command cannot be delivered.
func WithResetLine(line hal.ResetLine) Option {
	return func(u *Updater) {
		u.resetLine = line
	}
}

func WithClock(clock util.Clock) Option {
	return func(u *Updater) {
		u.clock = clock
	}
}

func WithConfig(cfg Config) Option {
	return func(u *Updater) {
		u.cfg = cfg
	}
}

// WithObserver registers a callback for progress updates. It is invoked
// synchronously from the flashing goroutine.
func WithObserver(observer func(Progress)) Option {
	return func(u *Updater) {
		u.observer = observer
	}
}

func New(exchanger *exchange.Exchanger, store checkpoint.Store, opts ...Option) *Updater {
	u := &Updater{
		exchanger: exchanger,
		store:     store,
		clock:     util.RealClock{},
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(u)
	}

	defaults := DefaultConfig()
	if u.cfg.Retry.Attempts <= 0 {
		u.cfg.Retry = defaults.Retry
	}
	if u.cfg.ConfirmRetry.Attempts <= 0 {
		u.cfg.ConfirmRetry = defaults.ConfirmRetry
	}
	if u.cfg.SequenceAttempts <= 0 {
		u.cfg.SequenceAttempts = defaults.SequenceAttempts
	}
	if u.cfg.ChunkSize <= 0 || u.cfg.ChunkSize+2 > mcuproto.MaxPayloadSize {
		u.cfg.ChunkSize = defaults.ChunkSize
	}
	return u
}

func (u *Updater) report(state State, done, total int) {
	if _, ok := progressSpans[state]; ok {
		u.percent = percentOf(state, done, total)
	}
	for s := StatePreCheck; s <= StateForcePending; s++ {
		if s == state {
			flashState.WithLabelValues(s.String()).Set(1)
		} else {
			flashState.WithLabelValues(s.String()).Set(0)
		}
	}
	if u.observer != nil {
		u.observer(Progress{State: state, Percent: u.percent})
	}
}

// fail records a terminal failure in the checkpoint and returns StateFailed.
func (u *Updater) fail(ctx context.Context, state State, cause error, mutate func(*checkpoint.Record)) (State, error) {
	log.FromContext(ctx).Error("MCU update failed", zap.Stringer("state", state), zap.Error(cause))

	_, err := u.store.Update(ctx, func(r *checkpoint.Record) error {
		r.Stage = checkpoint.StageFailed
		r.LastError = fmt.Sprintf("%s: %s", state, cause)
		if mutate != nil {
			mutate(r)
		}
		return nil
	})
	if err != nil {
		cause = errors.Join(cause, err)
	}

	flashOutcome.WithLabelValues(StateFailed.String()).Inc()
	u.report(StateFailed, 0, 0)
	return StateFailed, fmt.Errorf("%s: %w", state, cause)
}

// Flash runs the state machine up to the reboot request. It returns
// StateResetConfirm once the MCU has been told to reboot into the new image,
// StateDone if the image is already running, or a terminal failure state.
func (u *Updater) Flash(ctx context.Context, images Images) (State, error) {
	u.percent = 0
	u.report(StatePreCheck, 0, 0)

	target, err := VersionFromFilename(images.App.Name)
	if err != nil {
		return u.fail(ctx, StatePreCheck, err, nil)
	}
	if images.FlashDriver != nil {
		if _, err := SplitChunks(images.FlashDriver.Data, u.cfg.ChunkSize); err != nil {
			return u.fail(ctx, StatePreCheck, err, nil)
		}
	}
	if _, err := SplitChunks(images.App.Data, u.cfg.ChunkSize); err != nil {
		return u.fail(ctx, StatePreCheck, err, nil)
	}

	reported, err := u.QueryVersion(ctx)
	if err != nil {
		return u.fail(ctx, StatePreCheck, err, nil)
	}
	current, err := ParseVersion(reported)
	if err != nil {
		return u.fail(ctx, StatePreCheck, fmt.Errorf("%w: %w", exchange.ErrProtocol, err), nil)
	}

	logger := log.FromContext(ctx).With(zap.Stringer("current", current), zap.Stringer("target", target))

	switch current.Compare(target) {
	case 1:
		return u.fail(ctx, StatePreCheck,
			fmt.Errorf("%w: refusing to downgrade from %s to %s", ErrVersionConflict, current, target), nil)
	case 0:
		logger.Info("MCU already runs the target version, skipping flash")
		if _, err := u.store.Update(ctx, func(r *checkpoint.Record) error {
			r.McuVersion = current.String()
			r.Stage = checkpoint.StageSuccess
			r.Progress = 100
			return nil
		}); err != nil {
			return u.fail(ctx, StatePreCheck, err, nil)
		}
		flashOutcome.WithLabelValues(StateDone.String()).Inc()
		u.report(StateDone, 0, 0)
		return StateDone, nil
	}

	logger.Info("Starting MCU flash")
	if _, err := u.store.Update(ctx, func(r *checkpoint.Record) error {
		r.McuVersion = current.String()
		r.TargetVersion = target.String()
		r.FlashMode = checkpoint.FlashModeNormal
		r.ResetFlag = false
		r.ActiveFlag = checkpoint.ActiveInactive
		r.Stage = checkpoint.StageInProgress
		r.LastError = ""
		return nil
	}); err != nil {
		return u.fail(ctx, StatePreCheck, fmt.Errorf("%w: %w", ErrState, err), nil)
	}

	if images.FlashDriver != nil {
		if state, err := u.Download(ctx, mcuproto.ImageFlashDriver, *images.FlashDriver, StateDriverTransfer, StateDriverTransfer); err != nil {
			return u.fail(ctx, state, err, nil)
		}
	}

	u.report(StateAppErase, 0, 1)
	if err := u.EraseApp(ctx); err != nil {
		return u.fail(ctx, StateAppErase, err, nil)
	}
	u.report(StateAppErase, 1, 1)

	if state, err := u.Download(ctx, mcuproto.ImageApp, images.App, StateAppTransfer, StateAppVerify); err != nil {
		return u.fail(ctx, state, err, nil)
	}

	return u.reboot(ctx)
}

// reboot persists reset_flag before the reset command is sent, so a host
// reboot racing the MCU still resumes at confirmation.
func (u *Updater) reboot(ctx context.Context) (State, error) {
	u.report(StateRebootRequest, 0, 0)

	if _, err := u.store.Update(ctx, func(r *checkpoint.Record) error {
		r.ResetFlag = true
		r.ActiveFlag = checkpoint.ActivePending
		return nil
	}); err != nil {
		return u.fail(ctx, StateRebootRequest, fmt.Errorf("%w: %w", ErrState, err), nil)
	}

	resetErr := u.RequestReset(ctx)
	if resetErr == nil {
		log.FromContext(ctx).Info("MCU reset requested, awaiting confirmation")
		u.report(StateResetConfirm, 0, 1)
		return StateResetConfirm, nil
	}

	if u.resetLine != nil {
		log.FromContext(ctx).Warn("Reset command failed, pulsing hardware reset line", zap.Error(resetErr))
		pulseErr := u.resetLine.Pulse(ctx)
		if pulseErr == nil {
			u.report(StateResetConfirm, 0, 1)
			return StateResetConfirm, nil
		}
		resetErr = errors.Join(resetErr, pulseErr)
	}

	log.FromContext(ctx).Error("MCU reset failed, switching to FORCE flash mode", zap.Error(resetErr))
	_, err := u.store.Update(ctx, func(r *checkpoint.Record) error {
		r.FlashMode = checkpoint.FlashModeForce
		r.ResetFlag = false
		r.ActiveFlag = checkpoint.ActiveFailed
		r.Stage = checkpoint.StageFailed
		r.LastError = fmt.Sprintf("%s: %s", ErrForceMode, resetErr)
		return nil
	})
	if err != nil {
		resetErr = errors.Join(resetErr, err)
	}

	flashOutcome.WithLabelValues(StateForcePending.String()).Inc()
	u.report(StateForcePending, 0, 0)
	return StateForcePending, fmt.Errorf("%w: %w", ErrForceMode, resetErr)
}

// Confirm runs after the MCU rebooted. It requires reset_flag in the
// checkpoint and compares the version reported by the MCU against the
// flashed target version.
func (u *Updater) Confirm(ctx context.Context) (State, error) {
	record, err := u.store.Load(ctx)
	if err != nil {
		return StateFailed, fmt.Errorf("%w: %w", ErrState, err)
	}
	if !record.ResetFlag {
		return StateFailed, fmt.Errorf("%w: no reset in flight", ErrState)
	}
	target, err := ParseVersion(record.TargetVersion)
	if err != nil {
		return u.fail(ctx, StateResetConfirm, fmt.Errorf("%w: target_version: %w", ErrState, err), confirmFailed)
	}

	u.percent = percentOf(StateResetConfirm, 0, 1)
	u.report(StateResetConfirm, 0, 1)

	reported, err := u.FlashFinish(ctx)
	if err != nil {
		return u.fail(ctx, StateResetConfirm, err, confirmFailed)
	}
	running, err := ParseVersion(reported)
	if err != nil {
		return u.fail(ctx, StateResetConfirm, fmt.Errorf("%w: %w", exchange.ErrProtocol, err), confirmFailed)
	}
	if running.Compare(target) != 0 {
		return u.fail(ctx, StateResetConfirm,
			fmt.Errorf("%w: expected version %s, MCU runs %s", exchange.ErrDeviceRejected, target, running), confirmFailed)
	}

	if _, err := u.store.Update(ctx, func(r *checkpoint.Record) error {
		r.ResetFlag = false
		r.ActiveFlag = checkpoint.ActiveInactive
		r.Stage = checkpoint.StageSuccess
		r.Progress = 100
		r.McuVersion = running.String()
		r.FlashMode = checkpoint.FlashModeNormal
		r.LastError = ""
		return nil
	}); err != nil {
		return u.fail(ctx, StateResetConfirm, fmt.Errorf("%w: %w", ErrState, err), confirmFailed)
	}

	log.FromContext(ctx).Info("MCU update confirmed", zap.Stringer("version", running))
	flashOutcome.WithLabelValues(StateDone.String()).Inc()
	u.report(StateDone, 0, 0)
	return StateDone, nil
}

func confirmFailed(r *checkpoint.Record) {
	r.ActiveFlag = checkpoint.ActiveFailed
	r.ResetFlag = false
}
