package scan

import (
	"strconv"

	"golang.org/x/sys/unix"
)

// writeRecord emits the colon-separated record for one object:
//
//	blocks:mode:nlinks:uid:gid:size:mtime:atime:ctime:path
//
// blocks is converted from the kernel's 512-byte units to 1024-byte units,
// rounding half up. mode is unsigned octal. The path is the percent-encoded
// parent, a '/', and the percent-encoded name; when parent is empty only
// the name is printed. Symlinks get a trailing " -> target" with the target
// percent-encoded as well.
//
// Records for a directory named "." or ".." below the root are suppressed,
// so every directory appears exactly once.
//
// osPath is the real filesystem location of the object, used only to read
// a symlink's target.
func (w *Walker) writeRecord(osPath, name, parent string, md *Metadata) error {
	if md.IsDir() && parent != "" && (name == "." || name == "..") {
		return nil
	}

	b := w.buf[:0]
	b = strconv.AppendUint(b, uint64(md.Blocks+1)>>1, 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(md.Mode), 8)
	b = append(b, ':')
	b = strconv.AppendUint(b, md.Nlink, 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(md.UID), 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(md.GID), 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(md.Size), 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(uint32(md.Mtime)), 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(uint32(md.Atime)), 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(uint32(md.Ctime)), 10)
	b = append(b, ':')
	if parent != "" {
		b = appendEncoded(b, parent)
		b = append(b, '/')
	}
	b = appendEncoded(b, name)

	if md.IsSymlink() {
		target, err := w.readlink(osPath)
		if err != nil {
			// Non-fatal: the record still goes out with an empty target.
			w.rep.Errno(err, "unable to readlink(2) '%s'", name)
		}
		b = append(b, " -> "...)
		b = appendEncoded(b, target)
	}

	b = append(b, '\n')
	w.buf = b
	if _, err := w.out.Write(b); err != nil {
		return err
	}
	w.records++
	return nil
}

// readlink reads a symlink target, bounded by the walker's path limit.
func (w *Walker) readlink(path string) (string, error) {
	buf := make([]byte, w.maxPath)
	n, err := unix.Readlink(path, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}
