// Command moolticuted is the host-side driver daemon for the
// Mooltipass/BLE family of hardware password managers. It owns exactly
// one device link, picked at startup by flag: a USB HID vendor/product ID
// pair, or a local-socket path for the stream transport BLE and the
// desktop test harness both use.
package main

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	moolticuted "github.com/raoulh/moolticuted"
	"github.com/raoulh/moolticuted/internal/protocol"
	"github.com/raoulh/moolticuted/internal/transport"
)

func main() {
	var (
		socketPath  = pflag.String("socket", "", "path to a local socket speaking the stream transport (mutually exclusive with --vendor-id/--product-id)")
		vendorID    = pflag.Uint16("vendor-id", 0, "USB vendor ID of the HID device")
		productID   = pflag.Uint16("product-id", 0, "USB product ID of the HID device")
		hidIface    = pflag.Int("hid-interface", 0, "USB interface number to claim for the HID transport")
		ble         = pflag.Bool("ble", false, "use the BLE protocol variant instead of classic/mini")
		webAuthn    = pflag.Bool("webauthn", false, "advertise WebAuthn node support")
		filesCache  = pflag.Bool("files-cache", false, "advertise files-cache support")
		maxFileName = pflag.Int("max-file-name-len", 32, "device-reported maximum files-cache filename length")
		readTimeout = pflag.Duration("read-timeout", 5*time.Second, "HID transport read timeout")
		verbose     = pflag.BoolP("verbose", "v", false, "enable debug logging")
	)
	pflag.Parse()

	log := logrus.NewEntry(logrus.StandardLogger())
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	tr, err := openTransport(*socketPath, *vendorID, *productID, *hidIface, *readTimeout, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open transport")
	}

	caps := protocol.Capabilities(0)
	if *webAuthn {
		caps |= protocol.CapWebAuthn
	}
	if *filesCache {
		caps |= protocol.CapFilesCache
	}
	var proto protocol.Protocol
	if *ble {
		proto = protocol.NewBLE(caps)
	} else {
		proto = protocol.NewClassic(caps)
	}

	driver := moolticuted.New(tr, proto, *maxFileName, log)
	defer driver.Close()

	log.WithFields(logrus.Fields{
		"protocol": proto.Name(),
		"reqid":    uuid.NewString(),
	}).Info("moolticuted ready")

	select {}
}

// openTransport picks HID vs. stream transport from the flags the caller
// set, rejecting the ambiguous case of neither or both being specified.
func openTransport(socketPath string, vendorID, productID uint16, hidIface int, readTimeout time.Duration, log *logrus.Entry) (transport.Transport, error) {
	useSocket := socketPath != ""
	useHID := vendorID != 0 || productID != 0
	switch {
	case useSocket && useHID:
		return nil, fmt.Errorf("moolticuted: --socket and --vendor-id/--product-id are mutually exclusive")
	case useSocket:
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return nil, fmt.Errorf("moolticuted: dial socket: %w", err)
		}
		return transport.NewStream(conn, log), nil
	case useHID:
		return transport.OpenHID(transport.HIDConfig{
			VendorID:    vendorID,
			ProductID:   productID,
			Interface:   hidIface,
			ReadTimeout: readTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("moolticuted: must specify either --socket or --vendor-id/--product-id")
	}
}
