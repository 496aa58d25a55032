package logline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitStatus(t *testing.T) {
	buf := make([]byte, 64)
	n := EmitStatus(buf, 1024, 3, 42, 2048)
	require.Equal(t, "STAT bytes=1024 overflows=3 util=42% free=2048\n", string(buf[:n]))
}

func TestEmitCaptured(t *testing.T) {
	buf := make([]byte, 64)
	n := EmitCaptured(buf, "cap_0001.bin", 128)
	require.Equal(t, "CAP cap_0001.bin bytes=128\n", string(buf[:n]))
}

func TestEmitStatusZeroValue(t *testing.T) {
	buf := make([]byte, 64)
	n := EmitStatus(buf, 0, 0, 0, 0)
	require.Equal(t, "STAT bytes=0 overflows=0 util=0% free=0\n", string(buf[:n]))
}

func TestEmitErrorLine(t *testing.T) {
	buf := make([]byte, 64)
	n := EmitError(buf, "NoSpace", "queue overflow")
	require.Equal(t, "ERR NoSpace queue overflow\n", string(buf[:n]))
}
