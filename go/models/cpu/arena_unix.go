//go:build linux || darwin || freebsd

package cpu

import (
	"golang.org/x/sys/unix"
)

// RAM lives outside the Go heap so execution backends may keep pointers into it.
func allocArena(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func freeArena(p []byte) error {
	return unix.Munmap(p)
}
