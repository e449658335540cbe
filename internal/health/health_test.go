package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTracker_SnapshotReflectsMarks(t *testing.T) {
	tracker := NewTracker()

	tick := time.Now().Add(-time.Minute)
	sweep := time.Now().Add(-time.Hour)
	tracker.MarkReconcilerTick(tick)
	tracker.MarkSweep(sweep)

	gotTick, gotSweep := tracker.Snapshot()
	require.Equal(t, tick, gotTick)
	require.Equal(t, sweep, gotSweep)
}

func TestTracker_NilIsSafe(t *testing.T) {
	var tracker *Tracker

	require.NotPanics(t, func() {
		tracker.MarkReconcilerTick(time.Now())
		tracker.MarkSweep(time.Now())
	})

	tick, sweep := tracker.Snapshot()
	require.True(t, tick.IsZero())
	require.True(t, sweep.IsZero())
}
