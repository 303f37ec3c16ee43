//go:build linux

package usbfs

// Minimal binding of the ioctl surface the packet transport needs, trimmed
// from linux/usbdevice_fs.h down to control transfers, bulk transfers,
// interface claim/release and the disconnect/connect/reset pair used to
// hand the HID interface off to this process.

import (
	"strings"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

var (
	USBDEVFS_CONTROL          = ioctl.IOWR('U', 0, unsafe.Sizeof(usbdevfs_ctrltransfer{}))
	USBDEVFS_BULK             = ioctl.IOWR('U', 2, unsafe.Sizeof(usbdevfs_bulktransfer{}))
	USBDEVFS_SETINTERFACE     = ioctl.IOR('U', 4, unsafe.Sizeof(usbdevfs_setinterface{}))
	USBDEVFS_GETDRIVER        = ioctl.IOW('U', 8, unsafe.Sizeof(usbdevfs_getdriver{}))
	USBDEVFS_CLAIMINTERFACE   = ioctl.IOR('U', 15, unsafe.Sizeof(uint32(0)))
	USBDEVFS_RELEASEINTERFACE = ioctl.IOR('U', 16, unsafe.Sizeof(uint32(0)))
	USBDEVFS_CONNECTINFO      = ioctl.IOW('U', 17, unsafe.Sizeof(usbdevfs_connectinfo{}))
	USBDEVFS_IOCTL            = ioctl.IOWR('U', 18, unsafe.Sizeof(usbdevfs_ioctl{}))
	USBDEVFS_RESET            = ioctl.IO('U', 20)
	USBDEVFS_DISCONNECT       = int32(22)
	USBDEVFS_CONNECT          = int32(23)
)

type (
	usbdevfs_ctrltransfer struct {
		RequestType uint8
		Request     uint8
		Value       uint16
		Index       uint16
		Length      uint16
		Timeout     uint32
		Data        uintptr
	}
	usbdevfs_bulktransfer struct {
		Endpoint uint32
		Length   uint32
		Timeout  uint32
		Data     uintptr
	}

	usbdevfs_setinterface struct {
		Interface  uint32
		AltSetting uint32
	}

	usbdevfs_getdriver struct {
		Interface uint32
		Driver    [nUSBDEVFS_MAXDRIVERNAME + 1]byte
	}

	usbdevfs_connectinfo struct {
		DevNum uint32
		Slow   uint8
	}

	usbdevfs_ioctl struct {
		Interface int32
		IoctlCode int32
		Data      uintptr
	}
)

func (d *usbdevfs_getdriver) String() string {
	buff := strings.Builder{}
	for _, x := range d.Driver {
		if x == 0 {
			break
		}
		buff.WriteByte(x)
	}
	return buff.String()
}

func slicePtr(s []byte) uintptr {
	return uintptr(unsafe.Pointer(&s[0]))
}
