//go:build !linux

package transport

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// HIDConfig identifies the USB HID device to open and the interface to
// claim it on.
type HIDConfig struct {
	VendorID, ProductID uint16
	Interface           int
	ReadTimeout         time.Duration
}

// OpenHID is unsupported on this platform; the usbdevfs-based backend is
// Linux-only. Non-Linux hosts talk to the device over the stream transport
// (local socket / BLE GATT bridge) via NewStream instead.
func OpenHID(cfg HIDConfig, log *logrus.Entry) (Transport, error) {
	return nil, fmt.Errorf("transport: hid backend not supported on this platform")
}
