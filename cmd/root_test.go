package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/fsaudit/fist/internal/scan"
)

// discardReporter keeps walk diagnostics out of the test's stderr.
type discardReporter struct{}

func (discardReporter) Warnf(string, ...any)        {}
func (discardReporter) Errno(error, string, ...any) {}

// TestOpenOutputGzipRoundTrip: a compressed record stream gunzips back to
// exactly the bytes an uncompressed run over the same tree produces.
func TestOpenOutputGzipRoundTrip(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	for _, name := range []string{"a.txt", "my file: notes", "sub/b.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("hi"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	runTo := func(out io.Writer) {
		t.Helper()
		w := scan.NewWalker(scan.Options{Output: out, Reporter: discardReporter{}})
		if err := w.Run(root); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	var plain bytes.Buffer
	runTo(&plain)

	dest := filepath.Join(t.TempDir(), "records.gz")
	out, closeOut, err := openOutput(dest, true)
	if err != nil {
		t.Fatalf("openOutput: %v", err)
	}
	runTo(out)
	if err := closeOut(); err != nil {
		t.Fatalf("closing output: %v", err)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("reading compressed stream: %v", err)
	}
	if err := gr.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	if !bytes.Equal(got, plain.Bytes()) {
		t.Errorf("decompressed stream differs from the plain run:\ngot  %q\nwant %q",
			got, plain.Bytes())
	}
}

// TestOpenOutputUnwritablePath fails up front instead of handing back a
// broken writer.
func TestOpenOutputUnwritablePath(t *testing.T) {
	_, _, err := openOutput(filepath.Join(t.TempDir(), "no", "such", "dir", "out"), false)
	if err == nil {
		t.Fatalf("expected an error for an uncreatable output path")
	}
}
