package fiberrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLS_GetSetSpecificRoundTrip(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	key, err := sched.NewKey(nil)
	require.NoError(t, err)

	var got any
	_, err = sched.Spawn(func(f *Fiber) {
		assert.Nil(t, f.GetSpecific(key))
		require.NoError(t, f.SetSpecific(key, "payload"))
		got = f.GetSpecific(key)
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	assert.Equal(t, "payload", got)
}

func TestTLS_SetSpecificRejectsUnknownKey(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var setErr error
	_, err = sched.Spawn(func(f *Fiber) {
		setErr = f.SetSpecific(TLSKey(999999), "x")
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	var invalid *InvalidError
	assert.ErrorAs(t, setErr, &invalid)
}

func TestTLS_DestructorRunsOnExitInKeyOrder(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var order []int
	keyA, err := sched.NewKey(func(v any) { order = append(order, 0); _ = v })
	require.NoError(t, err)
	keyB, err := sched.NewKey(func(v any) { order = append(order, 1); _ = v })
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		require.NoError(t, f.SetSpecific(keyB, "b"))
		require.NoError(t, f.SetSpecific(keyA, "a"))
	}, SpawnOptions{})
	require.NoError(t, err)

	_, err = sched.Spawn(func(f *Fiber) {
		sched.Stop()
	}, SpawnOptions{})
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	assert.Equal(t, []int{0, 1}, order)
}

func TestTLS_NewKeyRejectsPastLimit(t *testing.T) {
	sched, err := New(WithMaxTLSKeys(2))
	require.NoError(t, err)

	_, err = sched.NewKey(nil)
	require.NoError(t, err)
	_, err = sched.NewKey(nil)
	require.NoError(t, err)

	_, err = sched.NewKey(nil)
	var invalid *InvalidError
	assert.ErrorAs(t, err, &invalid)
}
