//go:build linux

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// hidTransport reads and writes fixed 64-byte HID reports against a raw
// USB interrupt/bulk endpoint pair, adapted from the teacher's hid.Device
// (ReadMax/Read/Write over BulkTimeout) generalized from a one-shot probe
// tool into a long-lived read loop feeding a channel.
type hidTransport struct {
	dev *rawUSBDevice
	log *logrus.Entry

	frames chan []byte
	stop   chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

// HIDConfig identifies the USB HID device to open and the interface to
// claim it on.
type HIDConfig struct {
	VendorID, ProductID uint16
	Interface           int
	ReadTimeout         time.Duration
}

// OpenHID finds and opens a USB HID device matching cfg, claims its
// interface, and starts delivering 64-byte report frames.
func OpenHID(cfg HIDConfig, log *logrus.Entry) (Transport, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("transport", "hid")

	dev, err := findUSBHIDDevice(cfg.VendorID, cfg.ProductID)
	if err != nil {
		return nil, err
	}
	if err := dev.open(); err != nil {
		return nil, fmt.Errorf("transport: open hid device: %w", err)
	}
	if err := dev.claim(cfg.Interface); err != nil {
		_ = dev.close()
		return nil, fmt.Errorf("transport: claim hid interface: %w", err)
	}
	// Endpoints 0x81 (in) and 0x01 (out) are the convention this daemon's
	// firmware family uses for its single interrupt-class HID interface;
	// real endpoint discovery would walk the interface descriptors, out
	// of scope per spec.md's "platform-specific USB/HID enumeration"
	// exclusion.
	dev.inEndpoint = 0x81
	dev.outEndpoint = 0x01

	t := &hidTransport{
		dev:    dev,
		log:    log,
		frames: make(chan []byte, 8),
		stop:   make(chan struct{}),
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	go t.readLoop(uint32(timeout.Milliseconds()))
	return t, nil
}

func (t *hidTransport) FrameSize() int { return HIDFrameSize }

func (t *hidTransport) Write(ctx context.Context, frame []byte) error {
	if len(frame) != HIDFrameSize {
		return fmt.Errorf("transport: hid frame must be %d bytes, got %d", HIDFrameSize, len(frame))
	}
	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		_, err := t.dev.writeReport(frame, 1000)
		done <- result{err}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		return r.err
	}
}

func (t *hidTransport) readLoop(timeoutMs uint32) {
	defer close(t.frames)
	buf := make([]byte, HIDFrameSize)
	for {
		select {
		case <-t.stop:
			return
		default:
		}
		n, err := t.dev.readReport(buf, timeoutMs)
		if err != nil {
			// Read timeouts are expected idle polling; only a hard
			// transport failure (device gone) should tear down.
			if isTransientUSBTimeout(err) {
				continue
			}
			t.mu.Lock()
			t.err = fmt.Errorf("transport: hid read: %w", err)
			t.mu.Unlock()
			return
		}
		if n != HIDFrameSize {
			continue
		}
		frame := make([]byte, HIDFrameSize)
		copy(frame, buf)
		select {
		case t.frames <- frame:
		case <-t.stop:
			return
		}
	}
}

func (t *hidTransport) Frames() <-chan []byte { return t.frames }

func (t *hidTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *hidTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	close(t.stop)
	return t.dev.close()
}
