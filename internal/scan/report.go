package scan

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Tag prefixes every diagnostic line on the error stream.
const Tag = "fist"

// Reporter receives non-fatal diagnostics during a walk. It is an injected
// collaborator so tests can capture the error stream without touching
// os.Stderr.
type Reporter interface {
	// Warnf reports a problem that has no underlying system error.
	Warnf(format string, args ...any)
	// Errno reports a problem caused by a failed system call, carrying the
	// platform's error description and numeric code when available.
	Errno(err error, format string, args ...any)
}

// StreamReporter writes one tagged diagnostic per line to an output stream.
// This is the production sink; records and diagnostics stay on separate
// streams so the record output remains parseable.
type StreamReporter struct {
	W io.Writer
}

func (r *StreamReporter) Warnf(format string, args ...any) {
	fmt.Fprintf(r.W, "%s: %s\n", Tag, fmt.Sprintf(format, args...))
}

func (r *StreamReporter) Errno(err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	var errno unix.Errno
	if errors.As(err, &errno) {
		fmt.Fprintf(r.W, "%s: %s: %.100s (%d)\n", Tag, msg, errno.Error(), int(errno))
		return
	}
	fmt.Fprintf(r.W, "%s: %s: %v\n", Tag, msg, err)
}
