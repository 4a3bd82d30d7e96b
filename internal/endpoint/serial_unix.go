//go:build linux

package endpoint

import (
	"os"

	"golang.org/x/sys/unix"
)

const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)

// baudToUnix maps the rates the bridge negotiates (spec.md §6 baud_rate,
// §4.10 connect_speed) onto the kernel's Bxxx constants. A rate with no
// exact Bxxx entry falls back to the nearest standard rate rather than
// failing the open outright, matching the original source's tolerant
// pyserial configuration.
var baudToUnix = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

func nearestBaud(rate int) uint32 {
	if b, ok := baudToUnix[rate]; ok {
		return b
	}
	best, bestDiff := uint32(unix.B38400), 1<<30
	for r, b := range baudToUnix {
		diff := r - rate
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = b, diff
		}
	}
	return uint32(best)
}

// openSerialFile opens device in raw (non-canonical) mode at 8N1 and the
// given baud rate, grounded in the termios field layout Daedaluz-goserial's
// port_linux.go configures, reimplemented here against the stable
// TCGETS/TCSETS ioctls rather than that repo's Termios2/BOTHER path.
func openSerialFile(device string, baudRate int) (*os.File, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}

	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | nearestBaud(baudRate)
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, t); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return os.NewFile(uintptr(fd), device), nil
}
