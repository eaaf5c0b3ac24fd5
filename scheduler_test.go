package fiberrt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_SpawnAndJoin(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	child, err := sched.Spawn(func(f *Fiber) {
		f.retval = 42
	}, SpawnOptions{Joinable: true})
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		retval, err := sched.Join(f, child)
		require.NoError(t, err)
		assert.Equal(t, 42, retval)
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	assert.Equal(t, 1, sched.activeCount)
}

func TestScheduler_JoinRejectsDetached(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	child, err := sched.Spawn(func(f *Fiber) {}, SpawnOptions{Joinable: false})
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		_, jerr := sched.Join(f, child)
		var invalid *InvalidError
		assert.ErrorAs(t, jerr, &invalid)
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
}

func TestScheduler_InterruptWakesSleeper(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var sleepErr error
	sleeper, err := sched.Spawn(func(f *Fiber) {
		sleepErr = sched.Usleep(f, NoTimeout)
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		sched.Interrupt(sleeper)
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	assert.True(t, IsInterrupted(sleepErr))
}

func TestScheduler_SleepOrdering(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var order []int
	for i, delayUs := range []uint64{30_000, 10_000, 20_000} {
		i, delayUs := i, delayUs
		_, err := sched.Spawn(func(f *Fiber) {
			require.NoError(t, sched.Sleep(f, delayUs))
			order = append(order, i)
		}, SpawnOptions{})
		require.NoError(t, err)
	}

	start := time.Now()
	require.NoError(t, sched.Run())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []int{1, 2, 0}, order)
}

func TestScheduler_StatsReflectsActivity(t *testing.T) {
	sched, err := New(WithMetrics(true))
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	stats := sched.Stats()
	assert.Equal(t, 1, stats.ActiveFibers)
}
