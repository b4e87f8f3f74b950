//go:build linux

package obslog

import (
	"syscall"
	"unsafe"
)

const tcgets = 0x5401

// isTerminal reports whether fd is a terminal, deciding whether the text
// handler emits ANSI color codes.
func isTerminal(fd uintptr) bool {
	var termios syscall.Termios
	_, _, err := syscall.Syscall6(
		syscall.SYS_IOCTL,
		fd,
		tcgets,
		uintptr(unsafe.Pointer(&termios)),
		0, 0, 0,
	)
	return err == 0
}
