// Command hostcapture is a supplemental host-side test/demo harness: it
// talks the hexstream wire grammar (spec.md §4.6) over a real OS serial
// port, so a capture from the device can be received onto this machine
// without the device's own SD/NOR backends. It is not part of the core
// spec — the core treats CLI tooling as an external collaborator.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/scopebridge/firmware/hexstream"
)

func main() {
	port := flag.String("port", "", "serial device, e.g. /dev/ttyUSB0")
	baud := flag.Int("baud", 115200, "baud rate")
	out := flag.String("out", "", "output file to write the received capture to")
	timeout := flag.Duration("timeout", 30*time.Second, "receive timeout")
	flag.Parse()

	if *port == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "usage: hostcapture -port /dev/ttyUSB0 -out capture.bin")
		os.Exit(2)
	}

	mode := &serial.Mode{BaudRate: *baud, Parity: serial.NoParity, DataBits: 8, StopBits: serial.OneStopBit}
	sp, err := serial.Open(*port, mode)
	if err != nil {
		log.Fatalf("hostcapture: open %s: %v", *port, err)
	}
	defer sp.Close()

	link := &serialLink{port: sp, reader: bufio.NewReader(sp)}
	backend := hexstream.New(link)

	buf := make([]byte, 64*1024*1024)
	n, err := backend.Receive(buf, *timeout)
	if err != nil {
		log.Fatalf("hostcapture: receive: %v", err)
	}

	if err := os.WriteFile(*out, buf[:n], 0o644); err != nil {
		log.Fatalf("hostcapture: write %s: %v", *out, err)
	}

	fmt.Printf("hostcapture: wrote %d bytes to %s\n", n, *out)
}

// serialLink adapts go.bug.st/serial's Port to hexstream.Link.
type serialLink struct {
	port   serial.Port
	reader *bufio.Reader
}

func (l *serialLink) WriteString(s string) error {
	_, err := l.port.Write([]byte(s))
	return err
}

// ReadLine blocks for up to timeout for a CRLF-terminated line. The
// underlying port's read deadline is set per call since the hexstream
// reader varies its requested timeout as the overall receive deadline
// approaches.
func (l *serialLink) ReadLine(timeout time.Duration) (string, bool, error) {
	if err := l.port.SetReadTimeout(timeout); err != nil {
		return "", false, err
	}

	line, err := l.reader.ReadString('\n')
	if err != nil {
		if len(line) == 0 {
			return "", false, nil
		}
		return "", false, err
	}

	return strings.TrimRight(line, "\r\n"), true, nil
}
