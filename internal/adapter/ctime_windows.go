package adapter

import (
	"os"
	"syscall"
)

func creationTime(_ string, info os.FileInfo) int64 {
	if attr, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return attr.CreationTime.Nanoseconds()
	}

	return info.ModTime().UnixNano()
}
