//go:build linux || darwin

package wgcore

import "golang.org/x/sys/unix"

// sysRead and sysWrite perform the actual transfer once the poller has
// reported a socket ready, completing the begin_receive/begin_send
// contract of spec.md §4.2. Errors are surfaced to Port.completeLocked,
// which classifies them as system-failure completions.
func sysRead(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if n < 0 {
		n = 0
	}
	return n, err
}

func sysWrite(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	if n < 0 {
		n = 0
	}
	return n, err
}
