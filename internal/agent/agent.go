package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uptime-industries/ota-agent/internal/mcusim"
	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
	"github.com/uptime-industries/ota-agent/pkg/eventbus"
	"github.com/uptime-industries/ota-agent/pkg/exchange"
	"github.com/uptime-industries/ota-agent/pkg/hal"
	"github.com/uptime-industries/ota-agent/pkg/log"
	"github.com/uptime-industries/ota-agent/pkg/mcuupdate"
	"github.com/uptime-industries/ota-agent/pkg/socupdate"
	"github.com/uptime-industries/ota-agent/pkg/transport"
	"github.com/uptime-industries/ota-agent/pkg/util"
	"go.uber.org/zap"
)

const DefaultRebootSettle = 5 * time.Second

var (
	ErrNotRunning          = errors.New("agent is not running")
	ErrSessionRunning      = errors.New("an update session is already running")
	ErrOtaModeDisabled     = errors.New("ota mode is disabled")
	ErrInvalidRobotVersion = errors.New("invalid robot version")
	ErrSessionPanic        = errors.New("update session panicked")
	ErrSessionInterrupted  = errors.New("session interrupted")
)

// ActiveResult is the outcome of an activation as reported by GetActive.
type ActiveResult int

const (
	ActiveSuccess ActiveResult = iota
	ActiveActivating
	ActiveFailure
)

func (r ActiveResult) String() string {
	switch r {
	case ActiveSuccess:
		return "success"
	case ActiveActivating:
		return "activating"
	case ActiveFailure:
		return "failure"
	default:
		return "unknown"
	}
}

type OtaAgentConfig struct {
	Transport  transport.Config    `mapstructure:"transport"`
	Checkpoint checkpoint.Config   `mapstructure:"checkpoint"`
	Mcu        mcuupdate.Config    `mapstructure:"mcu"`
	ResetLine  hal.ResetLineConfig `mapstructure:"reset_line"`
	Soc        socupdate.Config    `mapstructure:"soc"`

	// Simulator configures the in-process MCU used with transport kind simulated.
	Simulator mcusim.Options `mapstructure:"simulator"`

	// RebootSettle is the time granted to the MCU to boot before confirmation.
	RebootSettle time.Duration `mapstructure:"reboot_settle"`
}

// Options carries the configuration and optionally pre-built collaborators.
// Nil collaborators are created from Config.
type Options struct {
	Config OtaAgentConfig

	Transport transport.Transport
	Store     checkpoint.Store
	ResetLine hal.ResetLine
	Installer socupdate.Installer
	Clock     util.Clock
}

// OtaAgent updates the SOC packages and the MCU firmware of a robot.
type OtaAgent interface {
	// Run resumes a pending confirmation and blocks until the context is canceled.
	// In-flight sessions are awaited before it returns.
	Run(ctx context.Context) error
	// SetRobotInfo records the system version reported by the orchestrator.
	SetRobotInfo(ctx context.Context, version string) error
	// SetOtaMode enables or disables updates.
	SetOtaMode(ctx context.Context, enabled bool) error
	// StartUpdate validates the update directory and starts a session in the
	// background.
	StartUpdate(ctx context.Context, dir string) error
	// GetUpdateStatus returns the status of the current or last session.
	GetUpdateStatus(ctx context.Context) (Status, error)
	// SetActive requests activation of the flashed MCU image.
	SetActive(ctx context.Context) error
	// GetActive reports the activation result and leaves OTA mode once it is final.
	GetActive(ctx context.Context) (ActiveResult, error)
	// SubscribeStatus streams status changes. Slow subscribers miss updates.
	SubscribeStatus(bufSize int) eventbus.Subscriber[Status]
}

type otaAgentImpl struct {
	cfg       OtaAgentConfig
	transport transport.Transport
	exchanger *exchange.Exchanger
	store     checkpoint.Store
	resetLine hal.ResetLine
	installer socupdate.Installer
	clock     util.Clock
	status    *statusTracker

	mu      sync.Mutex
	runCtx  context.Context
	busy    bool
	workers sync.WaitGroup
}

func NewOtaAgent(ctx context.Context, opts Options) (OtaAgent, error) {
	var err error
	cfg := opts.Config
	if cfg.RebootSettle <= 0 {
		cfg.RebootSettle = DefaultRebootSettle
	}

	a := &otaAgentImpl{
		cfg:       cfg,
		transport: opts.Transport,
		store:     opts.Store,
		resetLine: opts.ResetLine,
		installer: opts.Installer,
		clock:     opts.Clock,
		status:    newStatusTracker(),
	}

	if a.clock == nil {
		a.clock = util.RealClock{}
	}
	if a.installer == nil {
		a.installer = socupdate.NewExecInstaller(cfg.Soc)
	}
	if a.store == nil {
		if a.store, err = checkpoint.NewFileStore(cfg.Checkpoint); err != nil {
			return nil, err
		}
	}
	if a.resetLine == nil && cfg.ResetLine.Enabled() {
		if a.resetLine, err = hal.NewResetLine(ctx, cfg.ResetLine); err != nil {
			return nil, err
		}
	}
	if a.transport == nil {
		if a.transport, err = openTransport(ctx, cfg); err != nil {
			return nil, errors.Join(err, a.closeResetLine())
		}
	}
	a.exchanger = exchange.NewExchanger(a.transport)

	record, err := a.store.Load(ctx)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.status.Set(Status{Stage: record.Stage, Progress: record.Progress, Error: record.LastError})

	return a, nil
}

func openTransport(ctx context.Context, cfg OtaAgentConfig) (transport.Transport, error) {
	if cfg.Transport.Kind != transport.KindSimulated {
		return transport.Open(cfg.Transport)
	}
	opts := cfg.Simulator
	if opts.FrameLen <= 0 {
		opts.FrameLen = cfg.Transport.FrameLen
	}
	opts.Logger = log.FromContext(ctx).With(zap.String("scope", "mcusim"))
	log.FromContext(ctx).Warn("Using simulated MCU", zap.String("version", opts.Version))
	return mcusim.New(opts), nil
}

func (a *otaAgentImpl) Run(ctx context.Context) error {
	log.FromContext(ctx).Info("Starting OTA agent")

	// reconcile before any session can start
	record, err := a.store.Load(ctx)
	if err != nil {
		log.FromContext(ctx).Error("Failed to load checkpoint", zap.Error(err))
	} else if record.Stage == checkpoint.StageInProgress && !record.ResetFlag {
		log.FromContext(ctx).Warn("Previous session was interrupted", zap.Int("progress", record.Progress))
		if record, err = a.abandonSession(ctx); err != nil {
			log.FromContext(ctx).Error("Failed to record interrupted session", zap.Error(err))
		}
	}

	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	if err == nil && record.ResetFlag {
		log.FromContext(ctx).Info("MCU reset pending, resuming confirmation",
			zap.String("target", record.TargetVersion),
			zap.Duration("settle", a.cfg.RebootSettle),
		)
		if err := a.spawn("confirm", func(ctx context.Context) error {
			return a.runConfirm(ctx, a.cfg.RebootSettle)
		}); err != nil {
			log.FromContext(ctx).Error("Failed to resume confirmation", zap.Error(err))
		}
	}

	<-ctx.Done()

	a.mu.Lock()
	a.runCtx = nil
	a.mu.Unlock()

	a.workers.Wait()
	log.FromContext(ctx).Info("Exiting, closing device handles")
	if err := a.Close(); err != nil {
		log.FromContext(ctx).Error("Failed to close agent", zap.Error(err))
	}
	return ctx.Err()
}

func (a *otaAgentImpl) Close() error {
	var err error
	if a.transport != nil {
		err = a.transport.Close()
	}
	return errors.Join(err, a.closeResetLine())
}

func (a *otaAgentImpl) closeResetLine() error {
	if a.resetLine == nil {
		return nil
	}
	return a.resetLine.Close()
}

// spawn runs fn as the single session worker.
func (a *otaAgentImpl) spawn(kind string, fn func(ctx context.Context) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.runCtx == nil {
		return ErrNotRunning
	}
	if a.busy {
		return ErrSessionRunning
	}
	a.busy = true

	ctx := log.IntoContext(a.runCtx, log.FromContext(a.runCtx).With(zap.String("session", kind)))
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		defer func() {
			a.mu.Lock()
			a.busy = false
			a.mu.Unlock()
		}()

		err := a.recoverSession(ctx, fn)
		switch {
		case err == nil:
			sessionCounter.WithLabelValues(kind, "success").Inc()
		case errors.Is(err, context.Canceled):
			log.FromContext(ctx).Warn("Session interrupted by shutdown")
			sessionCounter.WithLabelValues(kind, "interrupted").Inc()
		default:
			log.FromContext(ctx).Error("Session failed", zap.Error(err))
			sessionCounter.WithLabelValues(kind, "failed").Inc()
		}
	}()
	return nil
}

// recoverSession turns a panic of the worker into a recorded failure.
func (a *otaAgentImpl) recoverSession(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = a.failSession(ctx, "panic", fmt.Errorf("%w: %v", ErrSessionPanic, r))
		}
	}()
	return fn(ctx)
}

func (a *otaAgentImpl) sessionRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

func (a *otaAgentImpl) SetRobotInfo(ctx context.Context, version string) error {
	if version == "" {
		return ErrInvalidRobotVersion
	}
	_, err := a.store.Update(ctx, func(r *checkpoint.Record) error {
		r.RobotVersion = version
		return nil
	})
	if err == nil {
		log.FromContext(ctx).Info("Robot version recorded", zap.String("version", version))
	}
	return err
}

func (a *otaAgentImpl) SetOtaMode(ctx context.Context, enabled bool) error {
	if !enabled && a.sessionRunning() {
		return ErrSessionRunning
	}
	_, err := a.store.Update(ctx, func(r *checkpoint.Record) error {
		r.OtaModeFlag = enabled
		return nil
	})
	if err == nil {
		log.FromContext(ctx).Info("OTA mode changed", zap.Bool("enabled", enabled))
	}
	return err
}

func (a *otaAgentImpl) StartUpdate(ctx context.Context, dir string) error {
	if a.sessionRunning() {
		return ErrSessionRunning
	}
	record, err := a.store.Load(ctx)
	if err != nil {
		return err
	}
	if !record.OtaModeFlag {
		return ErrOtaModeDisabled
	}
	if record.ResetFlag {
		return fmt.Errorf("%w: MCU reset confirmation pending", mcuupdate.ErrState)
	}

	bundle, err := socupdate.Scan(dir)
	if err != nil {
		return err
	}
	if bundle.HasMcu() {
		if _, err := mcuupdate.VersionFromFilename(bundle.McuApp); err != nil {
			return err
		}
	}

	log.FromContext(ctx).Info("Starting update session",
		zap.String("dir", dir),
		zap.Int("soc_packages", len(bundle.SocPackages)),
		zap.Bool("mcu", bundle.HasMcu()),
	)
	return a.spawn("update", func(ctx context.Context) error {
		return a.runUpdate(ctx, bundle)
	})
}

func (a *otaAgentImpl) GetUpdateStatus(_ context.Context) (Status, error) {
	return a.status.Snapshot(), nil
}

func (a *otaAgentImpl) SetActive(ctx context.Context) error {
	if a.sessionRunning() {
		return ErrSessionRunning
	}

	record, err := a.store.Update(ctx, func(r *checkpoint.Record) error {
		switch {
		case r.SocFlag, r.Stage == checkpoint.StageSuccess && !r.ResetFlag:
			// nothing left to activate
			r.ActiveFlag = checkpoint.ActiveInactive
		case r.ResetFlag:
			r.ActiveFlag = checkpoint.ActivePending
		default:
			// failed, or in progress with no session left to finish it
			r.ActiveFlag = checkpoint.ActiveFailed
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.FromContext(ctx).Info("Activation requested",
		zap.Bool("reset_pending", record.ResetFlag),
		zap.Stringer("stage", record.Stage),
	)

	if record.SocFlag || !record.ResetFlag {
		return nil
	}
	return a.spawn("confirm", func(ctx context.Context) error {
		return a.runConfirm(ctx, 0)
	})
}

func (a *otaAgentImpl) GetActive(ctx context.Context) (ActiveResult, error) {
	record, err := a.store.Load(ctx)
	if err != nil {
		return ActiveFailure, err
	}

	var result ActiveResult
	switch record.ActiveFlag {
	case checkpoint.ActiveInactive:
		result = ActiveSuccess
	case checkpoint.ActivePending:
		result = ActiveActivating
	default:
		result = ActiveFailure
	}

	if result != ActiveActivating && record.OtaModeFlag && !a.sessionRunning() {
		log.FromContext(ctx).Info("Activation finished, leaving OTA mode", zap.Stringer("result", result))
		if _, err := a.store.Update(ctx, func(r *checkpoint.Record) error {
			r.OtaModeFlag = false
			return nil
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (a *otaAgentImpl) SubscribeStatus(bufSize int) eventbus.Subscriber[Status] {
	return a.status.Subscribe(bufSize)
}
