//go:build darwin

package scan

import "golang.org/x/sys/unix"

func newMetadata(st *unix.Stat_t) *Metadata {
	return &Metadata{
		Dev:    uint64(st.Dev),
		Mode:   uint32(st.Mode),
		Nlink:  uint64(st.Nlink),
		UID:    st.Uid,
		GID:    st.Gid,
		Size:   st.Size,
		Blocks: st.Blocks,
		Atime:  st.Atimespec.Sec,
		Mtime:  st.Mtimespec.Sec,
		Ctime:  st.Ctimespec.Sec,
	}
}
