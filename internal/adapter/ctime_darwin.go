package adapter

import (
	"os"
	"syscall"
)

func creationTime(_ string, info os.FileInfo) int64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Birthtimespec.Nano()
	}

	return info.ModTime().UnixNano()
}
