//go:build linux

package transport

import (
	"errors"
	"syscall"
)

// isTransientUSBTimeout reports whether err is the usbdevfs bulk transfer
// timeout errno, which this daemon treats as an empty poll rather than a
// link failure (ETIMEDOUT while idle-polling a HID endpoint is routine).
func isTransientUSBTimeout(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ETIMEDOUT
	}
	return false
}
