//go:build !linux

package cache

import (
	"os"
	"time"
)

func accessTime(fi os.FileInfo) time.Time {
	return fi.ModTime()
}
