package agent

import (
	"context"
	"errors"
	"time"

	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
	"github.com/uptime-industries/ota-agent/pkg/log"
	"github.com/uptime-industries/ota-agent/pkg/mcuupdate"
	"github.com/uptime-industries/ota-agent/pkg/socupdate"
	"github.com/uptime-industries/ota-agent/pkg/util"
	"go.uber.org/zap"
)

const (
	phaseSocInstall = "soc_install"
	phaseMcuLoad    = "mcu_load"
)

// runUpdate installs the SOC packages of the bundle and flashes the MCU.
// Each SOC package and the MCU flow weigh the same in the overall progress.
func (a *otaAgentImpl) runUpdate(ctx context.Context, bundle socupdate.Bundle) error {
	units := len(bundle.SocPackages)
	if bundle.HasMcu() {
		units++
	}

	if err := a.beginSession(ctx, bundle); err != nil {
		return a.failSession(ctx, "begin", err)
	}

	err := socupdate.InstallAll(ctx, a.installer, bundle.SocPackages, func(done, _ int) {
		a.reportProgress(ctx, phaseSocInstall, done*100/units)
	})
	if err != nil {
		return a.failSession(ctx, phaseSocInstall, err)
	}
	if !bundle.HasMcu() {
		return a.completeSession(ctx)
	}

	images, err := loadImages(bundle)
	if err != nil {
		return a.failSession(ctx, phaseMcuLoad, err)
	}

	offset := len(bundle.SocPackages) * 100
	updater := a.newUpdater(func(p mcuupdate.Progress) {
		a.reportProgress(ctx, p.State.String(), (offset+p.Percent)/units)
	})

	state, err := updater.Flash(ctx, images)
	switch state {
	case mcuupdate.StateDone:
		return a.completeSession(ctx)
	case mcuupdate.StateResetConfirm:
		return a.confirmAfterSettle(ctx, updater, a.cfg.RebootSettle)
	default:
		return a.failSession(ctx, state.String(), err)
	}
}

// runConfirm verifies the MCU image after a reset requested earlier, possibly
// by another process instance.
func (a *otaAgentImpl) runConfirm(ctx context.Context, settle time.Duration) error {
	a.status.Update(func(s *Status) {
		s.Stage = checkpoint.StageInProgress
		s.Phase = mcuupdate.StateResetConfirm.String()
		s.Error = ""
	})
	updater := a.newUpdater(func(p mcuupdate.Progress) {
		a.reportProgress(ctx, p.State.String(), p.Percent)
	})
	return a.confirmAfterSettle(ctx, updater, settle)
}

func (a *otaAgentImpl) confirmAfterSettle(ctx context.Context, updater *mcuupdate.Updater, settle time.Duration) error {
	if settle > 0 {
		log.FromContext(ctx).Info("Waiting for the MCU to boot", zap.Duration("settle", settle))
	}
	// reset_flag stays set on shutdown so the next instance resumes here
	if err := util.Sleep(ctx, a.clock, settle); err != nil {
		return err
	}

	state, err := updater.Confirm(ctx)
	if state == mcuupdate.StateDone {
		return a.completeSession(ctx)
	}
	return a.failSession(ctx, mcuupdate.StateResetConfirm.String(), err)
}

func (a *otaAgentImpl) newUpdater(observer func(mcuupdate.Progress)) *mcuupdate.Updater {
	opts := []mcuupdate.Option{
		mcuupdate.WithClock(a.clock),
		mcuupdate.WithConfig(a.cfg.Mcu),
		mcuupdate.WithObserver(observer),
	}
	if a.resetLine != nil {
		opts = append(opts, mcuupdate.WithResetLine(a.resetLine))
	}
	return mcuupdate.New(a.exchanger, a.store, opts...)
}

func loadImages(bundle socupdate.Bundle) (mcuupdate.Images, error) {
	var images mcuupdate.Images
	var err error

	if bundle.McuFlashDriver != "" {
		driver, err := mcuupdate.LoadImage(bundle.McuFlashDriver)
		if err != nil {
			return mcuupdate.Images{}, err
		}
		images.FlashDriver = &driver
	}
	if images.App, err = mcuupdate.LoadImage(bundle.McuApp); err != nil {
		return mcuupdate.Images{}, err
	}
	return images, nil
}

func (a *otaAgentImpl) beginSession(ctx context.Context, bundle socupdate.Bundle) error {
	a.status.Set(Status{Stage: checkpoint.StageInProgress, Phase: "begin"})
	_, err := a.store.Update(ctx, func(r *checkpoint.Record) error {
		r.Stage = checkpoint.StageInProgress
		r.Progress = 0
		r.SocFlag = !bundle.HasMcu()
		r.ActiveFlag = checkpoint.ActiveInactive
		r.LastError = ""
		return nil
	})
	return err
}

// reportProgress publishes the phase and persists the percentage. Progress
// never decreases within a session.
func (a *otaAgentImpl) reportProgress(ctx context.Context, phase string, percent int) {
	if percent > 100 {
		percent = 100
	}
	advanced := false
	a.status.Update(func(s *Status) {
		s.Stage = checkpoint.StageInProgress
		s.Phase = phase
		if percent > s.Progress {
			s.Progress = percent
			advanced = true
		}
	})
	if !advanced {
		return
	}
	if _, err := a.store.Update(ctx, func(r *checkpoint.Record) error {
		r.Progress = percent
		return nil
	}); err != nil {
		log.FromContext(ctx).Warn("Failed to persist progress", zap.Int("progress", percent), zap.Error(err))
	}
}

func (a *otaAgentImpl) completeSession(ctx context.Context) error {
	_, err := a.store.Update(ctx, func(r *checkpoint.Record) error {
		r.Stage = checkpoint.StageSuccess
		r.Progress = 100
		r.LastError = ""
		return nil
	})
	if err != nil {
		return a.failSession(ctx, "complete", err)
	}
	a.status.Set(Status{Stage: checkpoint.StageSuccess, Progress: 100, Phase: mcuupdate.StateDone.String()})
	log.FromContext(ctx).Info("Update session completed")
	return nil
}

// abandonSession marks a session left in progress by a previous process as
// failed.
func (a *otaAgentImpl) abandonSession(ctx context.Context) (checkpoint.Record, error) {
	record, err := a.store.Update(ctx, func(r *checkpoint.Record) error {
		r.Stage = checkpoint.StageFailed
		r.LastError = ErrSessionInterrupted.Error()
		if r.ActiveFlag == checkpoint.ActivePending {
			r.ActiveFlag = checkpoint.ActiveFailed
		}
		return nil
	})
	if err != nil {
		return record, err
	}
	a.status.Update(func(s *Status) {
		s.Stage = checkpoint.StageFailed
		s.Phase = "interrupted"
		s.Error = ErrSessionInterrupted.Error()
	})
	return record, nil
}

// failSession records a terminal failure and returns cause.
func (a *otaAgentImpl) failSession(ctx context.Context, phase string, cause error) error {
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	if _, err := a.store.Update(context.WithoutCancel(ctx), func(r *checkpoint.Record) error {
		r.Stage = checkpoint.StageFailed
		r.LastError = phase + ": " + cause.Error()
		return nil
	}); err != nil {
		log.FromContext(ctx).Error("Failed to persist session failure", zap.Error(err))
	}
	a.status.Update(func(s *Status) {
		s.Stage = checkpoint.StageFailed
		s.Phase = phase
		s.Error = cause.Error()
	})
	return cause
}
