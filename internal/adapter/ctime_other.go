//go:build !linux && !darwin && !windows

package adapter

import "os"

func creationTime(_ string, info os.FileInfo) int64 {
	return info.ModTime().UnixNano()
}
