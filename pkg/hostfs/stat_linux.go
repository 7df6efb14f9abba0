//go:build linux

package hostfs

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func ownerOf(fi os.FileInfo) (uid, gid uint32) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return st.Uid, st.Gid
}

func rdevOf(fi os.FileInfo) (major, minor uint32) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	dev := uint64(st.Rdev)
	return unix.Major(dev), unix.Minor(dev)
}

func linkIdentityOf(fi os.FileInfo) (nlink uint32, dev, ino uint64) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 1, 0, 0
	}
	return uint32(st.Nlink), uint64(st.Dev), st.Ino
}
