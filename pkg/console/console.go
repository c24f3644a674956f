// Package console reads the board's serial console: waiting for a boot
// marker after a flash, or mirroring the output for an operator.
package console

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/waltr/flashstation/pkg/errors"
)

// maxLineLength flushes a line that never terminates
const maxLineLength = 4096

// Open opens name as an 8N1 serial port. A read that sees no data within
// readTimeout returns 0, nil.
func Open(name string, baud int, readTimeout time.Duration) (io.ReadCloser, error) {
	slog.Info("console_open", "port", name, "baud", baud)

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		slog.Error("console_open_failed", "port", name, "error", err)
		return nil, errors.Wrap(err, fmt.Sprintf("failed to open %s", name))
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to set read timeout")
	}
	return port, nil
}

// WaitFor reads lines from r until one contains marker and reports true. It
// gives up and reports false once more than maxLines lines were read; a read
// timeout counts as an empty line so a silent board also gives up.
func WaitFor(ctx context.Context, r io.Reader, marker string, maxLines int) (bool, error) {
	lr := newLineReader(r)
	for count := 1; ; count++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		line, err := lr.next()
		if err != nil {
			return false, errors.Wrap(err, "serial read failed")
		}
		slog.Debug("console_line", "n", count, "line", line)

		if len(line) >= 2 && strings.Contains(line, marker) {
			slog.Info("console_marker_seen", "marker", marker, "lines", count)
			return true, nil
		}
		if count > maxLines {
			slog.Warn("console_marker_missing", "marker", marker, "lines", count)
			return false, nil
		}
	}
}

// Monitor copies every line of at least two characters from r to w until ctx
// is done or r reaches EOF.
func Monitor(ctx context.Context, r io.Reader, w io.Writer) error {
	lr := newLineReader(r)
	for ctx.Err() == nil {
		line, err := lr.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "serial read failed")
		}
		if len(line) < 2 {
			continue
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// lineReader splits a timeout-driven stream into lines
type lineReader struct {
	r       io.Reader
	buf     []byte
	pending []byte
	err     error
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: r, buf: make([]byte, 256)}
}

// next returns the next line without its terminator. A read that returned
// no data yields whatever was buffered so far, possibly "".
func (l *lineReader) next() (string, error) {
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			line := l.pending[:i]
			l.pending = l.pending[i+1:]
			return clean(line), nil
		}
		if l.err != nil {
			if len(l.pending) > 0 {
				return l.flush(), nil
			}
			return "", l.err
		}
		if len(l.pending) >= maxLineLength {
			return l.flush(), nil
		}

		n, err := l.r.Read(l.buf)
		l.pending = append(l.pending, l.buf[:n]...)
		if err != nil {
			l.err = err
			continue
		}
		if n == 0 {
			return l.flush(), nil
		}
	}
}

func (l *lineReader) flush() string {
	line := clean(l.pending)
	l.pending = nil
	return line
}

func clean(b []byte) string {
	return strings.ToValidUTF8(strings.TrimRight(string(b), "\r"), "\uFFFD")
}

// BootCheck waits for the board to print a marker after a flash
type BootCheck struct {
	Port        string
	Baud        int
	Marker      string
	MaxLines    int
	ReadTimeout time.Duration

	open func(name string, baud int, readTimeout time.Duration) (io.ReadCloser, error)
}

// NewBootCheck creates a boot check on a serial port
func NewBootCheck(port string, baud int, marker string, maxLines int, readTimeout time.Duration) *BootCheck {
	if readTimeout <= 0 {
		readTimeout = time.Second
	}
	return &BootCheck{
		Port:        port,
		Baud:        baud,
		Marker:      marker,
		MaxLines:    maxLines,
		ReadTimeout: readTimeout,
		open:        Open,
	}
}

// WaitForBoot opens the port and waits for the marker
func (b *BootCheck) WaitForBoot(ctx context.Context) (bool, error) {
	port, err := b.open(b.Port, b.Baud, b.ReadTimeout)
	if err != nil {
		return false, err
	}
	defer port.Close()

	return WaitFor(ctx, port, b.Marker, b.MaxLines)
}
