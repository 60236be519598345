package mcuupdate_test

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptime-industries/ota-agent/internal/mcusim"
	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
	"github.com/uptime-industries/ota-agent/pkg/exchange"
	"github.com/uptime-industries/ota-agent/pkg/hal"
	"github.com/uptime-industries/ota-agent/pkg/mcuproto"
	"github.com/uptime-industries/ota-agent/pkg/mcuupdate"
	"github.com/uptime-industries/ota-agent/pkg/util"
)

func newUpdater(dev *mcusim.Device, store checkpoint.Store, opts ...mcuupdate.Option) *mcuupdate.Updater {
	opts = append([]mcuupdate.Option{mcuupdate.WithClock(util.NewInstantMockClock())}, opts...)
	return mcuupdate.New(exchange.NewExchanger(dev), store, opts...)
}

func appImage(version string, size int) mcuupdate.Image {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return mcuupdate.Image{Name: "MCU_APP-V" + version + ".bin", Data: data}
}

func TestFlashNewerVersion(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{Version: "1.1.0", BootVersion: "1.2.0"})
	store := checkpoint.NewMemoryStore(checkpoint.Record{OtaModeFlag: true})

	var states []mcuupdate.State
	var last mcuupdate.Progress
	updater := newUpdater(dev, store, mcuupdate.WithObserver(func(p mcuupdate.Progress) {
		if len(states) == 0 || states[len(states)-1] != p.State {
			states = append(states, p.State)
		}
		last = p
	}))

	image := appImage("1.2.0", 1000)
	state, err := updater.Flash(context.Background(), mcuupdate.Images{App: image})
	require.NoError(t, err)
	assert.Equal(t, mcuupdate.StateResetConfirm, state)

	record, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", record.McuVersion)
	assert.Equal(t, "1.2.0", record.TargetVersion)
	assert.True(t, record.ResetFlag)
	assert.Equal(t, checkpoint.ActivePending, record.ActiveFlag)
	assert.Equal(t, checkpoint.StageInProgress, record.Stage)
	assert.True(t, record.OtaModeFlag)

	assert.Equal(t, image.Data, dev.Image())
	assert.True(t, dev.Rebooted())
	assert.Equal(t, 0, dev.Calls(mcuproto.CmdFlashFinish))

	assert.Equal(t, []mcuupdate.State{
		mcuupdate.StatePreCheck,
		mcuupdate.StateAppErase,
		mcuupdate.StateAppTransfer,
		mcuupdate.StateAppVerify,
		mcuupdate.StateRebootRequest,
		mcuupdate.StateResetConfirm,
	}, states)
	assert.Equal(t, 95, last.Percent)
}

func TestFlashSameVersionSkipsTransfer(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{Version: "1.2.0"})
	store := checkpoint.NewMemoryStore(checkpoint.Record{})
	updater := newUpdater(dev, store)

	state, err := updater.Flash(context.Background(), mcuupdate.Images{App: appImage("1.2.0", 500)})
	require.NoError(t, err)
	assert.Equal(t, mcuupdate.StateDone, state)
	assert.Equal(t, 0, dev.Calls(mcuproto.CmdDownloadData))
	assert.Equal(t, 0, dev.Calls(mcuproto.CmdEraseApp))

	record, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StageSuccess, record.Stage)
	assert.Equal(t, 100, record.Progress)
	assert.False(t, record.ResetFlag)
}

func TestFlashDowngradeRejected(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{Version: "2.0.0"})
	store := checkpoint.NewMemoryStore(checkpoint.Record{})
	updater := newUpdater(dev, store)

	state, err := updater.Flash(context.Background(), mcuupdate.Images{App: appImage("1.9.9", 500)})
	assert.ErrorIs(t, err, mcuupdate.ErrVersionConflict)
	assert.Equal(t, mcuupdate.StateFailed, state)
	assert.Equal(t, 1, dev.Calls(mcuproto.CmdPreProgramCheck))
	assert.Equal(t, 0, dev.Calls(mcuproto.CmdEraseApp))

	record, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StageFailed, record.Stage)
	assert.Contains(t, record.LastError, "version conflict")
}

func TestFlashImageWithoutVersion(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{Version: "1.0.0"})
	updater := newUpdater(dev, checkpoint.NewMemoryStore(checkpoint.Record{}))

	state, err := updater.Flash(context.Background(), mcuupdate.Images{App: mcuupdate.Image{Name: "app.bin", Data: []byte{1}}})
	assert.ErrorIs(t, err, mcuupdate.ErrFile)
	assert.Equal(t, mcuupdate.StateFailed, state)
	assert.Equal(t, 0, dev.Calls(mcuproto.CmdPreProgramCheck))
}

func TestFlashWithDriver(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{Version: "1.1.0"})
	updater := newUpdater(dev, checkpoint.NewMemoryStore(checkpoint.Record{}))

	driver := mcuupdate.Image{Name: "MCU_FLASH_DRIVER-V1.0.0.bin", Data: []byte("loader")}
	state, err := updater.Flash(context.Background(), mcuupdate.Images{FlashDriver: &driver, App: appImage("1.2.0", 400)})
	require.NoError(t, err)
	assert.Equal(t, mcuupdate.StateResetConfirm, state)
	assert.Equal(t, 2, dev.Calls(mcuproto.CmdDownloadRequest))
	assert.Equal(t, 2, dev.Calls(mcuproto.CmdCheckData))
}

func TestSendChunkIndexMismatch(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{
		Version: "1.1.0",
		Hook: func(req mcuproto.Frame, _ int) ([]byte, bool, error) {
			if req.Command == mcuproto.CmdDownloadData {
				return []byte{0x00, 0x06, mcuproto.StatusOK}, true, nil
			}
			return nil, false, nil
		},
	})
	updater := newUpdater(dev, checkpoint.NewMemoryStore(checkpoint.Record{}))

	err := updater.SendChunk(context.Background(), mcuupdate.Chunk{Index: 5, Data: []byte{1, 2, 3}})
	assert.ErrorIs(t, err, exchange.ErrProtocol)
}

func TestSendChunkDeviceChecksumFailure(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{
		Version: "1.1.0",
		Hook: func(req mcuproto.Frame, _ int) ([]byte, bool, error) {
			return []byte{req.Payload[0], req.Payload[1], mcuproto.StatusNG}, true, nil
		},
	})
	updater := newUpdater(dev, checkpoint.NewMemoryStore(checkpoint.Record{}))

	err := updater.SendChunk(context.Background(), mcuupdate.Chunk{Index: 2, Data: []byte{1}})
	assert.ErrorIs(t, err, exchange.ErrDeviceRejected)
	assert.NotErrorIs(t, err, exchange.ErrProtocol)
}

func TestFlashRestartsSequenceAfterMismatch(t *testing.T) {
	t.Parallel()

	mismatched := false
	dev := mcusim.New(mcusim.Options{
		Version: "1.1.0",
		Hook: func(req mcuproto.Frame, _ int) ([]byte, bool, error) {
			if req.Command != mcuproto.CmdDownloadData || mismatched {
				return nil, false, nil
			}
			if binary.BigEndian.Uint16(req.Payload[:2]) == 5 {
				mismatched = true
				return []byte{0x00, 0x06, mcuproto.StatusOK}, true, nil
			}
			return nil, false, nil
		},
	})
	updater := newUpdater(dev, checkpoint.NewMemoryStore(checkpoint.Record{}))

	// 7 chunks, the last one partial
	image := appImage("1.2.0", 6*mcuupdate.ChunkSize+10)
	state, err := updater.Flash(context.Background(), mcuupdate.Images{App: image})
	require.NoError(t, err)
	assert.Equal(t, mcuupdate.StateResetConfirm, state)

	assert.Equal(t, []uint16{0, 1, 2, 3, 4, 0, 1, 2, 3, 4, 5, 6}, dev.ChunkLog())
	assert.Equal(t, 1, dev.Calls(mcuproto.CmdDownloadRequest))
	assert.Equal(t, image.Data, dev.Image())
}

func TestFlashRetriesUnitAfterChecksumFailure(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{
		Version: "1.1.0",
		Hook: func(req mcuproto.Frame, call int) ([]byte, bool, error) {
			if req.Command == mcuproto.CmdCheckData && call <= exchange.DefaultAttempts {
				return []byte{mcuproto.StatusNG}, true, nil
			}
			return nil, false, nil
		},
	})
	updater := newUpdater(dev, checkpoint.NewMemoryStore(checkpoint.Record{}))

	state, err := updater.Flash(context.Background(), mcuupdate.Images{App: appImage("1.2.0", 300)})
	require.NoError(t, err)
	assert.Equal(t, mcuupdate.StateResetConfirm, state)
	// first unit exhausts the verification retries, the second one succeeds
	assert.Equal(t, 2, dev.Calls(mcuproto.CmdDownloadRequest))
	assert.Equal(t, exchange.DefaultAttempts+1, dev.Calls(mcuproto.CmdCheckData))
}

func TestFlashChecksumFailureIsAttributedToVerify(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{
		Version: "1.1.0",
		Hook: func(req mcuproto.Frame, _ int) ([]byte, bool, error) {
			if req.Command == mcuproto.CmdCheckData {
				return []byte{mcuproto.StatusNG}, true, nil
			}
			return nil, false, nil
		},
	})
	store := checkpoint.NewMemoryStore(checkpoint.Record{})
	updater := newUpdater(dev, store)

	state, err := updater.Flash(context.Background(), mcuupdate.Images{App: appImage("1.2.0", 300)})
	assert.ErrorIs(t, err, exchange.ErrDeviceRejected)
	assert.Equal(t, mcuupdate.StateFailed, state)
	assert.Equal(t, exchange.DefaultAttempts, dev.Calls(mcuproto.CmdDownloadRequest))

	record, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StageFailed, record.Stage)
	assert.True(t, strings.HasPrefix(record.LastError, "app_verify: "), record.LastError)
}

func TestEraseApp(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name          string
		opts          mcusim.Options
		expectedCalls int
		expectedError error
	}{
		{name: "immediate", opts: mcusim.Options{}, expectedCalls: 1},
		{name: "erasing four times", opts: mcusim.Options{EraseBusyPolls: 4}, expectedCalls: 5},
		{name: "erasing six times", opts: mcusim.Options{EraseBusyPolls: 6}, expectedCalls: 6, expectedError: mcuupdate.ErrEraseInProgress},
		{name: "not good", opts: mcusim.Options{EraseNG: true}, expectedCalls: 1, expectedError: exchange.ErrDeviceRejected},
	}

	for _, tcl := range testcases {
		tc := tcl
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tc.opts.Version = "1.1.0"
			dev := mcusim.New(tc.opts)
			updater := newUpdater(dev, checkpoint.NewMemoryStore(checkpoint.Record{}))

			err := updater.EraseApp(context.Background())
			if tc.expectedError != nil {
				assert.ErrorIs(t, err, tc.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expectedCalls, dev.Calls(mcuproto.CmdEraseApp))
		})
	}
}

func TestFlashEraseFailureIsTerminal(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{Version: "1.1.0", EraseBusyPolls: 6})
	store := checkpoint.NewMemoryStore(checkpoint.Record{})
	updater := newUpdater(dev, store)

	state, err := updater.Flash(context.Background(), mcuupdate.Images{App: appImage("1.2.0", 300)})
	assert.Error(t, err)
	assert.Equal(t, mcuupdate.StateFailed, state)
	assert.Equal(t, 0, dev.Calls(mcuproto.CmdDownloadRequest))

	record, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StageFailed, record.Stage)
	assert.False(t, record.ResetFlag)
}

func resetFailingDevice() *mcusim.Device {
	return mcusim.New(mcusim.Options{
		Version: "1.1.0",
		Hook: func(req mcuproto.Frame, _ int) ([]byte, bool, error) {
			if req.Command == mcuproto.CmdReset {
				return nil, true, errors.New("bus fault")
			}
			return nil, false, nil
		},
	})
}

func TestFlashResetFailureFallsBackToForceMode(t *testing.T) {
	t.Parallel()

	dev := resetFailingDevice()
	store := checkpoint.NewMemoryStore(checkpoint.Record{})
	updater := newUpdater(dev, store)

	state, err := updater.Flash(context.Background(), mcuupdate.Images{App: appImage("1.2.0", 300)})
	assert.ErrorIs(t, err, mcuupdate.ErrForceMode)
	assert.ErrorIs(t, err, exchange.ErrTransport)
	assert.Equal(t, mcuupdate.StateForcePending, state)
	assert.Equal(t, exchange.DefaultAttempts, dev.Calls(mcuproto.CmdReset))

	record, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkpoint.FlashModeForce, record.FlashMode)
	assert.Equal(t, checkpoint.StageFailed, record.Stage)
	assert.False(t, record.ResetFlag)
}

func TestFlashResetFailureUsesResetLine(t *testing.T) {
	t.Parallel()

	line := &hal.ResetLineMock{}
	line.On("Pulse", mock.Anything).Return(nil).Once()

	dev := resetFailingDevice()
	store := checkpoint.NewMemoryStore(checkpoint.Record{})
	updater := newUpdater(dev, store, mcuupdate.WithResetLine(line))

	state, err := updater.Flash(context.Background(), mcuupdate.Images{App: appImage("1.2.0", 300)})
	require.NoError(t, err)
	assert.Equal(t, mcuupdate.StateResetConfirm, state)
	line.AssertExpectations(t)

	record, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkpoint.FlashModeNormal, record.FlashMode)
	assert.True(t, record.ResetFlag)
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name           string
		bootVersion    string
		expectedState  mcuupdate.State
		expectedError  error
		expectedActive checkpoint.ActiveFlag
		expectedStage  checkpoint.Stage
		expectedMcu    string
	}{
		{
			name:           "new version running",
			bootVersion:    "1.2.0",
			expectedState:  mcuupdate.StateDone,
			expectedActive: checkpoint.ActiveInactive,
			expectedStage:  checkpoint.StageSuccess,
			expectedMcu:    "1.2.0",
		},
		{
			name:           "old version still running",
			bootVersion:    "1.1.0",
			expectedState:  mcuupdate.StateFailed,
			expectedError:  exchange.ErrDeviceRejected,
			expectedActive: checkpoint.ActiveFailed,
			expectedStage:  checkpoint.StageFailed,
			expectedMcu:    "1.1.0",
		},
	}

	for _, tcl := range testcases {
		tc := tcl
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dev := mcusim.New(mcusim.Options{Version: "1.1.0", BootVersion: tc.bootVersion})
			store := checkpoint.NewMemoryStore(checkpoint.Record{})

			state, err := newUpdater(dev, store).Flash(context.Background(), mcuupdate.Images{App: appImage("1.2.0", 300)})
			require.NoError(t, err)
			require.Equal(t, mcuupdate.StateResetConfirm, state)

			// a fresh updater models the process started after the reboot
			state, err = newUpdater(dev, store).Confirm(context.Background())
			if tc.expectedError != nil {
				assert.ErrorIs(t, err, tc.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expectedState, state)

			record, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.False(t, record.ResetFlag)
			assert.Equal(t, tc.expectedActive, record.ActiveFlag)
			assert.Equal(t, tc.expectedStage, record.Stage)
			assert.Equal(t, tc.expectedMcu, record.McuVersion)
		})
	}
}

func TestConfirmWithoutResetFlag(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{Version: "1.2.0"})
	store := checkpoint.NewMemoryStore(checkpoint.Record{TargetVersion: "1.2.0"})

	_, err := newUpdater(dev, store).Confirm(context.Background())
	assert.ErrorIs(t, err, mcuupdate.ErrState)
	assert.Equal(t, 0, dev.Calls(mcuproto.CmdFlashFinish))
}

func TestConfirmFlashFinishNG(t *testing.T) {
	t.Parallel()

	dev := mcusim.New(mcusim.Options{
		Version: "1.2.0",
		Hook: func(req mcuproto.Frame, _ int) ([]byte, bool, error) {
			if req.Command == mcuproto.CmdFlashFinish {
				return append(make([]byte, 24), mcuproto.StatusNG), true, nil
			}
			return nil, false, nil
		},
	})
	store := checkpoint.NewMemoryStore(checkpoint.Record{ResetFlag: true, TargetVersion: "1.2.0", ActiveFlag: checkpoint.ActivePending})

	state, err := newUpdater(dev, store).Confirm(context.Background())
	assert.ErrorIs(t, err, exchange.ErrDeviceRejected)
	assert.Equal(t, mcuupdate.StateFailed, state)
	assert.Equal(t, 1, dev.Calls(mcuproto.CmdFlashFinish))

	record, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkpoint.ActiveFailed, record.ActiveFlag)
}
