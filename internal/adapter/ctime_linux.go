package adapter

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// creationTime reads the birth time through statx(2). Only infos backed by a
// real stat are looked up on disk; file systems without birth time fall back
// to the modification time.
func creationTime(path string, info os.FileInfo) int64 {
	if _, ok := info.Sys().(*syscall.Stat_t); !ok {
		return info.ModTime().UnixNano()
	}

	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx); err != nil {
		return info.ModTime().UnixNano()
	}

	if stx.Mask&unix.STATX_BTIME == 0 {
		return info.ModTime().UnixNano()
	}

	return stx.Btime.Sec*1e9 + int64(stx.Btime.Nsec)
}
