//go:build !windows

package keystore

import (
	"golang.org/x/sys/unix"
)

// mlock locks the pages holding data. Returns false when the system refuses.
func mlock(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return unix.Mlock(data) == nil
}

func munlock(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Munlock(data)
}
