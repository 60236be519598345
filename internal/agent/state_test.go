package agent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
)

func TestStatusTrackerUnchanged(t *testing.T) {
	t.Parallel()

	tracker := newStatusTracker()
	assert.True(t, tracker.Set(Status{Stage: checkpoint.StageInProgress, Progress: 10}))
	assert.False(t, tracker.Set(Status{Stage: checkpoint.StageInProgress, Progress: 10}))
	assert.False(t, tracker.Update(func(*Status) {}))
}

func TestStatusTrackerPublishesInOrder(t *testing.T) {
	t.Parallel()

	const (
		writers = 8
		updates = 50
	)

	tracker := newStatusTracker()
	sub := tracker.Subscribe(writers * updates)
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < updates; j++ {
				tracker.Update(func(s *Status) { s.Progress++ })
			}
		}()
	}
	wg.Wait()

	last := 0
	for i := 0; i < writers*updates; i++ {
		st := <-sub.C()
		require.Greater(t, st.Progress, last)
		last = st.Progress
	}
	assert.Equal(t, tracker.Snapshot().Progress, last)
	assert.Equal(t, writers*updates, last)
}
