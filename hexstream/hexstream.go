// Package hexstream implements HexStreamBackend (spec.md §4.6): a framed
// hex-over-serial transfer protocol for ad-hoc export to an engineering
// host, with an opt-in per-line CRC16 footer (SPEC_FULL.md §4 supplement)
// and rate-paced progress pings.
package hexstream

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sigurn/crc16"
	"golang.org/x/time/rate"

	"github.com/scopebridge/firmware/errs"
	"github.com/scopebridge/firmware/storage"
)

const (
	DefaultLineStride = 32
	MaxLineStride     = 64

	// progressChunk is the byte interval at which a PROGRESS ping may be
	// considered, per spec.md §4.6 ("every 1 KiB").
	progressChunk = 1024
)

// Link is the byte-oriented transport HexStreamBackend frames over — a
// serial port, in the reference board wiring.
type Link interface {
	WriteString(s string) error
	// ReadLine blocks for up to timeout for a CRLF-terminated line, returned
	// with the CRLF stripped. ok is false on timeout.
	ReadLine(timeout time.Duration) (line string, ok bool, err error)
}

// Stats are the running totals spec.md §4.6's stats() reports.
type Stats struct {
	Files uint32
	Bytes uint64
}

// Backend is HexStreamBackend.
type Backend struct {
	link Link

	lineStride int
	debug      bool
	useCRC     bool

	busy    atomic.Bool
	aborted atomic.Bool

	filesWritten uint32
	bytesWritten uint64
	filesRead    uint32
	bytesRead    uint64

	limiter *rate.Limiter
	crcTab  *crc16.Table
}

// New constructs a Backend with the default line stride and CRC table
// (CRC-16/CCITT-FALSE, the profile sigurn/crc16 names "CCITT-FALSE").
func New(link Link) *Backend {
	return &Backend{
		link:       link,
		lineStride: DefaultLineStride,
		limiter:    rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		crcTab:     crc16.MakeTable(crc16.CRC16_CCITT_FALSE),
	}
}

func (b *Backend) Kind() storage.Kind { return storage.Hex }

// SetDebug toggles PROGRESS ping emission.
func (b *Backend) SetDebug(on bool) { b.debug = on }

// SetCRC toggles the opt-in per-line CRC16 footer.
func (b *Backend) SetCRC(on bool) { b.useCRC = on }

// SetLineStride bounds K to [1, MaxLineStride].
func (b *Backend) SetLineStride(k int) {
	if k < 1 {
		k = 1
	}
	if k > MaxLineStride {
		k = MaxLineStride
	}
	b.lineStride = k
}

// Update is a no-op: a stream has no mount state to re-probe.
func (b *Backend) Update() {}

// IsReady is always true — the hex stream is the stable last-resort
// backend in the Auto selection policy (spec.md §4.7).
func (b *Backend) IsReady() bool { return true }

// Write streams name's header, hex-framed body, and footer over the link.
func (b *Backend) Write(name string, data []byte) (int, error) {
	if !b.busy.CompareAndSwap(false, true) {
		return 0, errs.New(errs.Busy, "hexstream: transfer already in progress")
	}
	defer b.busy.Store(false)
	b.aborted.Store(false)

	if err := b.link.WriteString("BEGIN:" + name + "\r\n"); err != nil {
		return 0, errs.New(errs.IoError, "hexstream: write begin: "+err.Error())
	}
	if err := b.link.WriteString("SIZE:" + strconv.Itoa(len(data)) + "\r\n"); err != nil {
		return 0, errs.New(errs.IoError, "hexstream: write size: "+err.Error())
	}

	sent := 0
	lastPing := 0

	for off := 0; off < len(data); off += b.lineStride {
		if b.aborted.Load() {
			return sent, errs.New(errs.ProtocolError, "hexstream: write aborted")
		}

		end := off + b.lineStride
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		if err := b.link.WriteString(b.renderLine(chunk)); err != nil {
			return sent, errs.New(errs.IoError, "hexstream: write line: "+err.Error())
		}
		sent += len(chunk)

		if b.debug && sent-lastPing >= progressChunk && b.limiter.Allow() {
			pct := 0
			if len(data) > 0 {
				pct = sent * 100 / len(data)
			}
			ping := fmt.Sprintf("PROGRESS:%s:%d/%d (%d%%)\r\n", name, sent, len(data), pct)
			if err := b.link.WriteString(ping); err == nil {
				lastPing = sent
			}
		}
	}

	if err := b.link.WriteString("END:" + name + "\r\n"); err != nil {
		return sent, errs.New(errs.IoError, "hexstream: write end: "+err.Error())
	}

	b.filesWritten++
	b.bytesWritten += uint64(sent)
	return sent, nil
}

// renderLine hex-encodes chunk, spacing every 8 bytes, and appends an
// opt-in CRC16 footer token before the CRLF.
func (b *Backend) renderLine(chunk []byte) string {
	var sb strings.Builder
	for i, by := range chunk {
		if i > 0 && i%8 == 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", by)
	}
	if b.useCRC {
		sum := crc16.Checksum(chunk, b.crcTab)
		fmt.Fprintf(&sb, " #CRC:%04X", sum)
	}
	sb.WriteString("\r\n")
	return sb.String()
}

// DefaultReceiveTimeout bounds Read, which has no caller-supplied timeout
// in the uniform Backend interface.
const DefaultReceiveTimeout = 30 * time.Second

// Read satisfies the uniform Backend interface by delegating to Receive
// with DefaultReceiveTimeout; name is unused since the stream reconstructs
// whatever file the peer sends.
func (b *Backend) Read(_ string, dst []byte) (int, error) {
	return b.Receive(dst, DefaultReceiveTimeout)
}

// Receive reassembles a file from input framed the same way Write emits
// it, per spec.md §4.6.
func (b *Backend) Receive(dst []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	got := 0

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return got, errs.New(errs.Timeout, "hexstream: receive timed out")
		}

		line, ok, err := b.link.ReadLine(remaining)
		if err != nil {
			return got, errs.New(errs.IoError, "hexstream: read: "+err.Error())
		}
		if !ok {
			return got, errs.New(errs.Timeout, "hexstream: receive timed out")
		}

		switch {
		case strings.HasPrefix(line, "BEGIN:"), strings.HasPrefix(line, "SIZE:"), strings.HasPrefix(line, "PROGRESS:"):
			continue
		case strings.HasPrefix(line, "END:"):
			b.filesRead++
			b.bytesRead += uint64(got)
			return got, nil
		case strings.HasPrefix(line, "ABORT:"):
			return got, errs.New(errs.IoError, "hexstream: aborted by peer: "+strings.TrimPrefix(line, "ABORT:"))
		}

		decoded, crcOK := b.decodeLine(line)
		if !crcOK {
			return got, errs.New(errs.Corruption, "hexstream: line CRC mismatch")
		}
		n := copy(dst[got:], decoded)
		got += n
		if n < len(decoded) {
			return got, errs.New(errs.BufferTooSmall, "hexstream: destination buffer full")
		}
	}
}

// decodeLine strips an optional "<hex-addr>: " prefix and any trailing
// "#CRC:XXXX" footer, then decodes consecutive hex pairs, skipping spaces
// and stopping at the first unrecognized character. crcOK is false only
// when a CRC footer was present and did not match.
func (b *Backend) decodeLine(line string) (out []byte, crcOK bool) {
	crcOK = true

	body := line
	if idx := strings.Index(body, "#CRC:"); idx >= 0 {
		want := strings.TrimSpace(body[idx+len("#CRC:"):])
		body = strings.TrimSpace(body[:idx])
		var parsed uint64
		if v, err := strconv.ParseUint(want, 16, 16); err == nil {
			parsed = v
		}
		defer func() {
			if crc16.Checksum(out, b.crcTab) != uint16(parsed) {
				crcOK = false
			}
		}()
	}

	if idx := strings.Index(body, ": "); idx > 0 && idx <= 10 {
		prefix := body[:idx]
		if isHex(prefix) {
			body = body[idx+2:]
		}
	}

	buf := make([]byte, 0, len(body)/2)
	i := 0
	for i+1 < len(body) {
		if body[i] == ' ' {
			i++
			continue
		}
		if !isHexDigit(body[i]) || !isHexDigit(body[i+1]) {
			break
		}
		hi := hexVal(body[i])
		lo := hexVal(body[i+1])
		buf = append(buf, hi<<4|lo)
		i += 2
	}
	return buf, crcOK
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// Abort signals the in-progress write to stop, emitting an ABORT line.
func (b *Backend) Abort(reason string) error {
	if !b.busy.Load() {
		return nil
	}
	b.aborted.Store(true)
	return b.link.WriteString("ABORT:" + reason + "\r\n")
}

func (b *Backend) Stats() Stats {
	return Stats{Files: b.filesWritten + b.filesRead, Bytes: b.bytesWritten + b.bytesRead}
}

func (b *Backend) ResetStats() {
	b.filesWritten, b.bytesWritten, b.filesRead, b.bytesRead = 0, 0, 0, 0
}

// Exists, Size, List, and Delete are not meaningful on a stream (spec.md
// §4.6): they report zero/false/NotFound rather than attempting anything.
func (b *Backend) Exists(string) bool { return false }

func (b *Backend) Size(string) (int, bool) { return 0, false }

func (b *Backend) List([]string) int { return 0 }

func (b *Backend) Delete(string) error { return errs.New(errs.NotFound, "hexstream: no such file") }

// Format resets the running stats rather than erasing anything.
func (b *Backend) Format() error {
	b.ResetStats()
	return nil
}

func (b *Backend) Space() (available, total uint64) { return 0, 0 }
