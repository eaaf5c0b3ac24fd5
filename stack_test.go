package fiberrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackArena_AllocateRoundsUpToPage(t *testing.T) {
	a := newStackArena(false, 1)
	r, err := a.allocate(1)
	require.NoError(t, err)
	assert.Equal(t, pageSize, r.stkSize)
	assert.Equal(t, pageSize*3, len(r.vaddr)) // 2 guard bands + 1 usable page
}

func TestStackArena_FreeListReuse(t *testing.T) {
	a := newStackArena(false, 1)
	r1, err := a.allocate(pageSize)
	require.NoError(t, err)
	a.release(r1)

	r2, err := a.allocate(pageSize)
	require.NoError(t, err)
	assert.Same(t, r1, r2, "a same-size allocation after release should reuse the free-list entry")
}

func TestStackArena_FreeListFirstFit(t *testing.T) {
	a := newStackArena(false, 1)
	small, err := a.allocate(pageSize)
	require.NoError(t, err)
	large, err := a.allocate(pageSize * 4)
	require.NoError(t, err)
	a.release(small)
	a.release(large)

	// Requesting a mid-size stack reuses the first free-list entry that
	// fits, skipping the earlier-released region that is too small.
	r, err := a.allocate(pageSize * 2)
	require.NoError(t, err)
	assert.Same(t, large, r)
}

func TestStackArena_RandomizedOffsetWithinBounds(t *testing.T) {
	a := newStackArena(true, 7)
	r, err := a.allocate(pageSize)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.offset, 0)
	assert.Less(t, r.offset, pageSize)
	assert.Equal(t, 0, r.offset&0xf, "offset must stay 16-byte aligned")
}

func TestRoundUpPage(t *testing.T) {
	assert.Equal(t, pageSize, roundUpPage(1))
	assert.Equal(t, pageSize, roundUpPage(pageSize))
	assert.Equal(t, pageSize*2, roundUpPage(pageSize+1))
	assert.Equal(t, DefaultStackSize, roundUpPage(0))
}
