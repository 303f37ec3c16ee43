package dispatcher

import (
	"fmt"

	"github.com/raoulh/moolticuted/internal/protocol"
	"github.com/raoulh/moolticuted/internal/transport"
)

// statusPollCommand is the bare status-poll command injected between
// commands at idle priority, per spec.md §4.3.7.
const statusPollCommand = protocol.CmdGetStatus

// encodeFrame wraps one application-message chunk in the wire envelope
// matching frameSize. The flip bit only exists in the HID envelope (spec.md
// §6); the stream envelope carries none because its underlying transport
// (local socket, BLE notifications) cannot deliver a stale frame the way a
// dropped-and-retried HID report can.
// last sets the HID frame's ack bit, which this daemon uses to mark the
// final chunk of a multi-frame application message rather than a
// transport-level acknowledgement.
func encodeFrame(frameSize int, flip, last bool, chunk []byte) ([]byte, error) {
	switch frameSize {
	case transport.HIDFrameSize:
		return transport.EncodeHIDFrame(flip, last, 0, chunk)
	case transport.StreamFrameSize:
		return transport.EncodeStreamFrame(chunk)
	default:
		return nil, fmt.Errorf("dispatcher: unsupported frame size %d", frameSize)
	}
}

// decodeFrame extracts the application-message payload from one wire frame
// and reports whether it matches expectedFlip. Stream frames carry no flip
// bit at all (see encodeFrame) and always match.
func decodeFrame(frameSize int, frame []byte, expectedFlip bool) (payload []byte, matches bool, err error) {
	switch frameSize {
	case transport.HIDFrameSize:
		f, err := transport.DecodeHIDFrame(frame)
		if err != nil {
			return nil, false, err
		}
		return f.Payload, f.Flip == expectedFlip, nil
	case transport.StreamFrameSize:
		p, err := transport.DecodeStreamFrame(frame)
		if err != nil {
			return nil, false, err
		}
		return p, true, nil
	default:
		return nil, false, fmt.Errorf("dispatcher: unsupported frame size %d", frameSize)
	}
}
