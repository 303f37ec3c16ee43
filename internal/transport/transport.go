// Package transport implements C1: framing of the underlying byte stream
// or USB HID endpoint into fixed-size wire frames. The transport does not
// know about commands, retries, the flip bit, or multi-frame application
// messages — reassembling frames into a complete application message is
// the dispatcher's job (internal/dispatcher), which owns the one place
// that actually parses frame headers via the active message protocol.
package transport

import "context"

// Transport is the single primitive the command dispatcher depends on: it
// writes one fixed-size wire frame at a time and delivers completed wire
// frames as they arrive. It never interprets their content.
type Transport interface {
	// Write sends one fully-formed wire frame, already padded to the
	// transport's fixed frame size. It blocks until the underlying
	// write completes or ctx is done.
	Write(ctx context.Context, frame []byte) error

	// Frames returns the channel on which completed wire frames are
	// delivered, one []byte per frame, each exactly FrameSize() bytes.
	// The channel is closed when the transport is closed or the link
	// is lost.
	Frames() <-chan []byte

	// FrameSize is the fixed size of every frame this transport reads
	// and writes: 64 for HID, 560 for the stream framing.
	FrameSize() int

	// Err returns the error that caused Frames to close, if any. Only
	// meaningful after Frames() is drained and closed.
	Err() error

	// Close releases the underlying link. Safe to call more than once.
	Close() error
}

// HIDFrameSize is the fixed size of a USB HID report frame.
const HIDFrameSize = 64

// StreamFrameSize is the fixed size of a local-socket / BLE stream frame.
const StreamFrameSize = 560

// StreamPreludeSize is the number of header bytes preceding the payload
// in a stream frame: two reserved bytes plus a little-endian length.
const StreamPreludeSize = 4

// MaxStreamPayload is the largest payload a single stream frame can carry.
const MaxStreamPayload = StreamFrameSize - StreamPreludeSize
