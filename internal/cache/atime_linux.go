//go:build linux

package cache

import (
	"os"
	"syscall"
	"time"
)

// accessTime returns the file's last access time, falling back to mtime when
// the platform stat does not expose one.
func accessTime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Atim.Sec, st.Atim.Nsec)
	}
	return fi.ModTime()
}
