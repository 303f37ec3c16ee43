package transport

import "fmt"

// HID frame header bits, bit-exact to spec: byte 0 = (payload_len & 0x3F) |
// (flip << 7) | (ack_flag << 6).
const (
	hidLenMask  = 0x3F
	hidFlipBit  = 0x80
	hidAckBit   = 0x40
	hidMaxLen   = hidLenMask
	hidCmdByte  = 1
	hidDataByte = 2
)

// MaxHIDPayload is the largest payload a single HID frame can carry: the
// 64-byte report minus its two header bytes.
const MaxHIDPayload = HIDFrameSize - hidDataByte

// EncodeHIDFrame lays out one 64-byte HID report: byte 0 the length/flip/ack
// header, byte 1 the command code, payload from byte 2, the rest zeroed.
func EncodeHIDFrame(flip, ack bool, cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxHIDPayload {
		return nil, fmt.Errorf("transport: hid payload %d exceeds max %d", len(payload), MaxHIDPayload)
	}
	frame := make([]byte, HIDFrameSize)
	header := byte(len(payload)) & hidLenMask
	if flip {
		header |= hidFlipBit
	}
	if ack {
		header |= hidAckBit
	}
	frame[0] = header
	frame[hidCmdByte] = cmd
	copy(frame[hidDataByte:], payload)
	return frame, nil
}

// HIDFrame is one decoded 64-byte HID report.
type HIDFrame struct {
	Flip    bool
	Ack     bool
	Command byte
	Payload []byte
}

// DecodeHIDFrame parses a 64-byte HID report into its header fields and
// payload slice (length-bounded, never including the zero padding).
func DecodeHIDFrame(frame []byte) (HIDFrame, error) {
	if len(frame) != HIDFrameSize {
		return HIDFrame{}, fmt.Errorf("transport: hid frame must be %d bytes, got %d", HIDFrameSize, len(frame))
	}
	length := int(frame[0] & hidLenMask)
	if hidDataByte+length > len(frame) {
		return HIDFrame{}, fmt.Errorf("transport: hid frame declares length %d exceeding frame", length)
	}
	return HIDFrame{
		Flip:    frame[0]&hidFlipBit != 0,
		Ack:     frame[0]&hidAckBit != 0,
		Command: frame[hidCmdByte],
		Payload: frame[hidDataByte : hidDataByte+length],
	}, nil
}
