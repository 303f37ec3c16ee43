//go:build linux

package transport

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/raoulh/moolticuted/internal/usbfs"
)

const sysfsDeviceDir = "/sys/bus/usb/devices"

// rawUSBDevice is a trimmed USB device handle, adapted from the teacher's
// generic descriptor-walking Device down to the handful of operations a
// HID report pipe needs: open, claim interface, report reads and writes,
// close.
type rawUSBDevice struct {
	fd           int
	isOpen       bool
	busNumber    int
	deviceNumber int
	inEndpoint   uint8
	outEndpoint  uint8
}

func (d *rawUSBDevice) open() error {
	if d.isOpen {
		return fmt.Errorf("transport: device already open")
	}
	fd, err := usbfs.OpenDevice(d.busNumber, d.deviceNumber)
	if err != nil {
		return err
	}
	d.fd = fd
	d.isOpen = true
	return nil
}

func (d *rawUSBDevice) claim(iface int) error {
	_ = usbfs.Disconnect(d.fd, uint32(iface)) // detach the kernel HID driver if bound
	return usbfs.ClaimInterface(d.fd, iface)
}

func (d *rawUSBDevice) readReport(buf []byte, timeoutMs uint32) (int, error) {
	return usbfs.BulkTransfer(d.fd, uint32(d.inEndpoint), timeoutMs, buf)
}

func (d *rawUSBDevice) writeReport(buf []byte, timeoutMs uint32) (int, error) {
	return usbfs.BulkTransfer(d.fd, uint32(d.outEndpoint), timeoutMs, buf)
}

func (d *rawUSBDevice) close() error {
	if !d.isOpen {
		return nil
	}
	err := syscall.Close(d.fd)
	d.isOpen = false
	return err
}

func readSysfsAttrHex(devName, attrName string) (int, error) {
	data, err := os.ReadFile(fmt.Sprintf("%s/%s/%s", sysfsDeviceDir, devName, attrName))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 16, 32)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func readSysfsAttrInt(devName, attrName string) (int, error) {
	data, err := os.ReadFile(fmt.Sprintf("%s/%s/%s", sysfsDeviceDir, devName, attrName))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// findUSBHIDDevice walks sysfs looking for the device whose idVendor and
// idProduct attributes match, adapted from the teacher's
// EnumerateDevices/FindDevices — generalized from full descriptor parsing
// down to the two attributes the HID transport actually needs, since
// nothing here walks the BOS/capability descriptor tree.
func findUSBHIDDevice(vendorID, productID uint16) (*rawUSBDevice, error) {
	entries, err := os.ReadDir(sysfsDeviceDir)
	if err != nil {
		return nil, fmt.Errorf("transport: enumerate usb devices: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}
		vid, err := readSysfsAttrHex(name, "idVendor")
		if err != nil {
			continue
		}
		pid, err := readSysfsAttrHex(name, "idProduct")
		if err != nil {
			continue
		}
		if uint16(vid) != vendorID || uint16(pid) != productID {
			continue
		}
		busNum, err := readSysfsAttrInt(name, "busnum")
		if err != nil {
			continue
		}
		devNum, err := readSysfsAttrInt(name, "devnum")
		if err != nil {
			continue
		}
		return &rawUSBDevice{busNumber: busNum, deviceNumber: devNum}, nil
	}
	return nil, fmt.Errorf("transport: no usb device matches vid=%#04x pid=%#04x", vendorID, productID)
}
