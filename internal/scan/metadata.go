package scan

import (
	"golang.org/x/sys/unix"
)

// Metadata is an immutable snapshot of one filesystem object's attributes,
// captured without dereferencing symlinks. For a symlink it describes the
// link itself, never its target.
type Metadata struct {
	Dev    uint64 // device identifier, used for mount-point containment
	Mode   uint32 // full st_mode bits (type and permissions)
	Nlink  uint64
	UID    uint32
	GID    uint32
	Size   int64
	Blocks int64 // 512-byte units, as reported by the kernel
	Atime  int64 // seconds since the epoch
	Mtime  int64
	Ctime  int64
}

// lstatMeta captures a metadata snapshot for path via lstat(2).
func lstatMeta(path string) (*Metadata, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return nil, err
	}
	return newMetadata(&st), nil
}

// IsDir reports whether the snapshot describes a directory.
func (m *Metadata) IsDir() bool { return m.Mode&unix.S_IFMT == unix.S_IFDIR }

// IsSymlink reports whether the snapshot describes a symbolic link.
func (m *Metadata) IsSymlink() bool { return m.Mode&unix.S_IFMT == unix.S_IFLNK }
