package buffer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnboundedPreservesOrder(t *testing.T) {
	in, out := Unbounded[int](4, 0, nil)

	// Producer never blocks even though nobody reads yet.
	for i := 0; i < 1000; i++ {
		in <- i
	}
	close(in)

	var got []int
	for v := range out {
		got = append(got, v)
	}
	require.Len(t, got, 1000)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestUnboundedDropsOldestAtLimit(t *testing.T) {
	var dropped atomic.Int32
	in, out := Unbounded[int](4, 3, func(int) { dropped.Add(1) })

	// Nobody reads: 16 items fit in the output channel, 3 in the queue.
	for i := 0; i < 40; i++ {
		in <- i
	}
	require.Eventually(t, func() bool { return dropped.Load() == 21 }, time.Second, 5*time.Millisecond)
	close(in)

	var got []int
	for v := range out {
		got = append(got, v)
	}
	require.Len(t, got, 19)
	assert.Equal(t, 39, got[len(got)-1])
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}
}
