package byteq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	q := New(16)

	msg := []byte("Hi\n")
	for _, b := range msg {
		require.True(t, q.TryPush(b))
	}

	require.Equal(t, len(msg), q.Len())

	var out [3]byte
	n := q.Drain(out[:], len(out))
	require.Equal(t, len(msg), n)
	require.Equal(t, msg, out[:n])
	require.False(t, q.Overflowed())
}

func TestOverflowDropsExcessAndLatchesFlag(t *testing.T) {
	q := New(16)

	sent := make([]byte, 20)
	for i := range sent {
		sent[i] = byte(i)
	}

	accepted := 0
	for _, b := range sent {
		if q.TryPush(b) {
			accepted++
		}
	}

	require.Equal(t, 16, accepted)
	require.True(t, q.Overflowed())

	var out [32]byte
	n := q.Drain(out[:], len(out))
	require.Equal(t, 16, n)
	require.Equal(t, sent[:16], out[:n])

	require.True(t, q.Overflowed())
	q.ClearOverflow()
	require.False(t, q.Overflowed())
}

func TestDrainRespectsMax(t *testing.T) {
	q := New(8)
	for i := 0; i < 5; i++ {
		require.True(t, q.TryPush(byte(i)))
	}

	var out [2]byte
	n := q.Drain(out[:], 2)
	require.Equal(t, 2, n)
	require.Equal(t, 3, q.Len())
}

func TestClearResetsState(t *testing.T) {
	q := New(4)
	q.TryPush(1)
	q.TryPush(2)
	q.TryPush(3)
	q.TryPush(4)
	require.True(t, q.IsFull())
	require.False(t, q.TryPush(5))
	require.True(t, q.Overflowed())

	q.Clear()
	require.Equal(t, 0, q.Len())
	require.False(t, q.Overflowed())
	require.True(t, q.TryPush(9))
}

func TestUtilizationPct(t *testing.T) {
	q := New(4)
	require.Equal(t, 0, q.UtilizationPct())
	q.TryPush(1)
	require.Equal(t, 25, q.UtilizationPct())
	q.TryPush(1)
	q.TryPush(1)
	q.TryPush(1)
	require.Equal(t, 100, q.UtilizationPct())
}
