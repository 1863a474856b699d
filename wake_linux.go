//go:build linux

package wgcore

import "golang.org/x/sys/unix"

// createWakeFD creates an eventfd for wake-up notifications.
func createWakeFD() (read, write int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func closeWakeFD(read, write int) {
	if read >= 0 {
		_ = unix.Close(read)
	}
}

func writeWake(fd int) {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(fd, buf[:])
}

func drainWake(fd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}
