package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferFlushesOnlyAfterThresholdExceeded(t *testing.T) {
	var batches [][]int
	b := NewBuffer[int](nil, 2, func(items []int) error {
		batches = append(batches, append([]int(nil), items...))
		return nil
	})

	flushed, err := b.Push(1)
	require.NoError(t, err)
	assert.False(t, flushed)
	flushed, err = b.Push(2)
	require.NoError(t, err)
	assert.False(t, flushed, "reaching the threshold must not flush")

	flushed, err = b.Push(3)
	require.NoError(t, err)
	assert.True(t, flushed)
	assert.Equal(t, [][]int{{1, 2, 3}}, batches)
	assert.Equal(t, 0, b.Len())
}

func TestBufferAutoFlushBeforeAllPushed(t *testing.T) {
	calls := 0
	b := NewBuffer[string](nil, 3, func(items []string) error {
		calls++
		return nil
	})
	for i := 0; i < 10; i++ {
		_, err := b.Push("x")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, calls, 1)
}

func TestBufferForcedFlush(t *testing.T) {
	var got []int
	b := NewBuffer([]int{7}, 100, func(items []int) error {
		got = append(got, items...)
		return nil
	})

	flushed, err := b.Flush(false)
	require.NoError(t, err)
	assert.False(t, flushed)
	assert.Nil(t, got)

	flushed, err = b.Flush(true)
	require.NoError(t, err)
	assert.True(t, flushed)
	assert.Equal(t, []int{7}, got)
	assert.Equal(t, 0, b.Len())
}

func TestBufferKeepsQueueWhenConsumerFails(t *testing.T) {
	boom := errors.New("sink down")
	b := NewBuffer[int](nil, 0, func(items []int) error { return boom })

	flushed, err := b.Push(1)
	assert.ErrorIs(t, err, boom)
	assert.False(t, flushed)
	assert.Equal(t, 1, b.Len())
}

func TestBufferFlushDoesNotAliasDeliveredBatch(t *testing.T) {
	var first []int
	b := NewBuffer[int](nil, 1, func(items []int) error {
		if first == nil {
			first = items
		}
		return nil
	})
	_, _ = b.Push(1)
	_, _ = b.Push(2)
	_, _ = b.Push(3)
	_, _ = b.Push(4)
	assert.Equal(t, []int{1, 2}, first)
}
