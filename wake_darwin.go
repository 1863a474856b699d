//go:build darwin

package wgcore

import "golang.org/x/sys/unix"

// createWakeFD creates a self-pipe for wake-up notifications.
func createWakeFD() (read, write int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func closeWakeFD(read, write int) {
	if read >= 0 {
		_ = unix.Close(read)
	}
	if write >= 0 && write != read {
		_ = unix.Close(write)
	}
}

func writeWake(fd int) {
	var buf [1]byte
	_, _ = unix.Write(fd, buf[:])
}

func drainWake(fd int) {
	var buf [64]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}
