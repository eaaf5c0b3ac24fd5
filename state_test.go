package fiberrt

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeState_PaddedPastCacheLine(t *testing.T) {
	var s runtimeState
	assert.GreaterOrEqual(t, int(unsafe.Sizeof(s)), sizeOfCacheLine+sizeOfAtomicUint32)
}

func TestRuntimeState_LoadStoreTransition(t *testing.T) {
	s := newRuntimeState()
	assert.Equal(t, schedAwake, s.load())

	assert.True(t, s.tryTransition(schedAwake, schedRunning))
	assert.Equal(t, schedRunning, s.load())

	assert.False(t, s.tryTransition(schedAwake, schedTerminated))
	assert.Equal(t, schedRunning, s.load())

	s.store(schedTerminated)
	assert.Equal(t, schedTerminated, s.load())
}
