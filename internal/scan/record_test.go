package scan

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestWalker(buf *bytes.Buffer, rep Reporter) *Walker {
	return NewWalker(Options{Output: buf, Reporter: rep})
}

// TestRecordFieldLayout pins the exact field order and rendering.
func TestRecordFieldLayout(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWalker(&buf, &captureReporter{})

	md := &Metadata{
		Blocks: 8,
		Mode:   0o100644,
		Nlink:  1,
		UID:    1000,
		GID:    100,
		Size:   4096,
		Mtime:  1700000000,
		Atime:  1700000001,
		Ctime:  1700000002,
	}
	if err := w.writeRecord("unused", "hello.txt", "", md); err != nil {
		t.Fatalf("writeRecord: %v", err)
	}
	w.out.Flush()

	want := "4:100644:1:1000:100:4096:1700000000:1700000001:1700000002:hello.txt\n"
	if buf.String() != want {
		t.Errorf("record = %q, want %q", buf.String(), want)
	}
}

// TestRecordBlocksRounding: 512-byte units become 1024-byte units, rounding
// half up.
func TestRecordBlocksRounding(t *testing.T) {
	tests := []struct {
		blocks int64
		want   string
	}{
		{0, "0"},
		{1, "1"},
		{2, "1"},
		{3, "2"},
		{8, "4"},
		{15, "8"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		w := newTestWalker(&buf, &captureReporter{})
		md := &Metadata{Blocks: tt.blocks, Mode: 0o100644}
		if err := w.writeRecord("unused", "f", "", md); err != nil {
			t.Fatalf("writeRecord: %v", err)
		}
		w.out.Flush()
		if got := strings.SplitN(buf.String(), ":", 2)[0]; got != tt.want {
			t.Errorf("blocks %d: field = %s, want %s", tt.blocks, got, tt.want)
		}
	}
}

// TestRecordPathEncoding: parent and name are both encoded, joined by a
// bare slash.
func TestRecordPathEncoding(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWalker(&buf, &captureReporter{})

	md := &Metadata{Mode: 0o100644}
	if err := w.writeRecord("unused", "c:d", "a b", md); err != nil {
		t.Fatalf("writeRecord: %v", err)
	}
	w.out.Flush()

	if !strings.HasSuffix(buf.String(), ":a%20b/c%3Ad\n") {
		t.Errorf("path not encoded as expected: %q", buf.String())
	}
}

// TestRecordDotSuppression: '.' and '..' directories below the root
// produce no record; the root itself (no parent) always does.
func TestRecordDotSuppression(t *testing.T) {
	tests := []struct {
		name   string
		parent string
		mode   uint32
		emit   bool
	}{
		{".", "some/dir", 0o40755, false},
		{"..", "some/dir", 0o40755, false},
		{".", "", 0o40755, true},       // synthetic root record
		{".", "some/dir", 0o100644, true}, // a *file* named "." cannot exist, but the rule is mode-gated
		{"...", "some/dir", 0o40755, true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		w := newTestWalker(&buf, &captureReporter{})
		md := &Metadata{Mode: tt.mode}
		if err := w.writeRecord("unused", tt.name, tt.parent, md); err != nil {
			t.Fatalf("writeRecord: %v", err)
		}
		w.out.Flush()
		if got := buf.Len() > 0; got != tt.emit {
			t.Errorf("name %q parent %q: emitted=%v, want %v", tt.name, tt.parent, got, tt.emit)
		}
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("sink closed") }

// TestRecordCountOnWriteFailure: a record that never reaches the output
// stream is not counted.
func TestRecordCountOnWriteFailure(t *testing.T) {
	w := NewWalker(Options{Output: io.Discard, Reporter: &captureReporter{}})
	// A one-byte buffer surfaces the sink's error on the first write.
	w.out = bufio.NewWriterSize(failWriter{}, 1)

	md := &Metadata{Mode: 0o100644}
	if err := w.writeRecord("unused", "f", "", md); err == nil {
		t.Fatalf("expected a write error")
	}
	if w.records != 0 {
		t.Errorf("records = %d after a failed write, want 0", w.records)
	}

	w.out = bufio.NewWriterSize(io.Discard, 1)
	if err := w.writeRecord("unused", "f", "", md); err != nil {
		t.Fatalf("writeRecord: %v", err)
	}
	if w.records != 1 {
		t.Errorf("records = %d after a successful write, want 1", w.records)
	}
}

// TestRecordSymlinkTarget: symlinks carry " -> target" with the target
// encoded.
func TestRecordSymlinkTarget(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "c")
	if err := os.Symlink("b target.txt", link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	md, err := lstatMeta(link)
	if err != nil {
		t.Fatalf("lstatMeta: %v", err)
	}

	var buf bytes.Buffer
	w := newTestWalker(&buf, &captureReporter{})
	if err := w.writeRecord(link, "c", "parent", md); err != nil {
		t.Fatalf("writeRecord: %v", err)
	}
	w.out.Flush()

	if !strings.HasSuffix(buf.String(), ":parent/c -> b%20target.txt\n") {
		t.Errorf("symlink record = %q", buf.String())
	}
}

// TestRecordSymlinkReadFailure: a failed readlink warns and formats an
// empty target; the record still goes out.
func TestRecordSymlinkReadFailure(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "c")
	if err := os.Symlink("b.txt", link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	md, err := lstatMeta(link)
	if err != nil {
		t.Fatalf("lstatMeta: %v", err)
	}

	var buf bytes.Buffer
	rep := &captureReporter{}
	w := newTestWalker(&buf, rep)
	// Point the readlink at a path that no longer exists.
	if err := w.writeRecord(filepath.Join(dir, "gone"), "c", "parent", md); err != nil {
		t.Fatalf("writeRecord: %v", err)
	}
	w.out.Flush()

	if !strings.HasSuffix(buf.String(), ":parent/c -> \n") {
		t.Errorf("record with failed readlink = %q", buf.String())
	}
	if !rep.contains("readlink") {
		t.Errorf("expected a readlink warning, got %v", rep.all())
	}
}
