package hexstream

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scopebridge/firmware/errs"
)

// fakeLink loops write output back as receive input, a queue of lines.
type fakeLink struct {
	lines []string
}

func (l *fakeLink) WriteString(s string) error {
	l.lines = append(l.lines, strings.TrimSuffix(s, "\r\n"))
	return nil
}

func (l *fakeLink) ReadLine(timeout time.Duration) (string, bool, error) {
	if len(l.lines) == 0 {
		return "", false, nil
	}
	line := l.lines[0]
	l.lines = l.lines[1:]
	return line, true, nil
}

func TestWriteThenReceiveRoundTrips(t *testing.T) {
	link := &fakeLink{}
	b := New(link)

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := b.Write("cap_0001.bin", payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	out := make([]byte, 200)
	got, err := b.Receive(out, time.Second)
	require.NoError(t, err)
	require.Equal(t, payload, out[:got])
}

func TestReceiveIgnoresFramingLines(t *testing.T) {
	link := &fakeLink{lines: []string{"BEGIN:X", "SIZE:4", "DEAD BEEF", "END:X"}}
	b := New(link)

	out := make([]byte, 4)
	n, err := b.Receive(out, time.Second)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, out[:n])
}

func TestLineStrideBounded(t *testing.T) {
	b := New(&fakeLink{})
	b.SetLineStride(0)
	require.Equal(t, 1, b.lineStride)
	b.SetLineStride(1000)
	require.Equal(t, MaxLineStride, b.lineStride)
}

func TestWriteRejectsConcurrentTransfer(t *testing.T) {
	link := &fakeLink{}
	b := New(link)
	b.busy.Store(true)

	_, err := b.Write("x", []byte{1})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Busy))
}

// abortAfterLink simulates a concurrent Abort arriving mid-transfer: once
// dataLines data lines have gone out, it flips b.aborted directly, the same
// field a real concurrent Abort call would set.
type abortAfterLink struct {
	fakeLink
	b         *Backend
	dataLines int
	seen      int
}

func (l *abortAfterLink) WriteString(s string) error {
	if !strings.HasPrefix(s, "BEGIN:") && !strings.HasPrefix(s, "SIZE:") && !strings.HasPrefix(s, "END:") {
		l.seen++
		if l.seen == l.dataLines {
			l.b.aborted.Store(true)
		}
	}
	return l.fakeLink.WriteString(s)
}

func TestAbortStopsInFlightWrite(t *testing.T) {
	b := New(nil)
	link := &abortAfterLink{b: b, dataLines: 1}
	b.link = link
	b.SetLineStride(1)

	n, err := b.Write("f", []byte{1, 2, 3, 4})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.ProtocolError))
	require.Equal(t, 1, n)
	require.False(t, b.busy.Load())
}

func TestReceiveStopsOnAbortLine(t *testing.T) {
	link := &fakeLink{lines: []string{"BEGIN:x", "SIZE:3", "010203", "ABORT:peer cancelled"}}
	b := New(link)

	out := make([]byte, 16)
	_, err := b.Receive(out, time.Second)
	require.Error(t, err)
}

func TestReceiveTimesOutWithNoInput(t *testing.T) {
	b := New(&fakeLink{})
	out := make([]byte, 16)
	_, err := b.Receive(out, 10*time.Millisecond)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Timeout))
}

func TestCRCFooterDetectsCorruption(t *testing.T) {
	link := &fakeLink{}
	b := New(link)
	b.SetCRC(true)

	_, err := b.Write("f", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)

	// corrupt the data portion of the single data line, leaving its CRC
	// footer stale.
	for i, l := range link.lines {
		if !strings.HasPrefix(l, "BEGIN:") && !strings.HasPrefix(l, "SIZE:") && !strings.HasPrefix(l, "END:") {
			link.lines[i] = strings.Replace(l, "DEADBEEF", "DEADBEE0", 1)
		}
	}

	out := make([]byte, 16)
	_, err = b.Receive(out, time.Second)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Corruption))
}

func TestDeleteExistsSizeListAreNoopsOnStream(t *testing.T) {
	b := New(&fakeLink{})
	require.False(t, b.Exists("anything"))
	_, ok := b.Size("anything")
	require.False(t, ok)
	require.Equal(t, 0, b.List(make([]string, 4)))
	err := b.Delete("anything")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NotFound))
}

func TestFormatResetsStats(t *testing.T) {
	link := &fakeLink{}
	b := New(link)
	_, err := b.Write("f", []byte{1, 2, 3})
	require.NoError(t, err)
	require.NotZero(t, b.Stats().Bytes)

	require.NoError(t, b.Format())
	require.Zero(t, b.Stats().Bytes)
}
