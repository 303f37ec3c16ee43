package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// streamTransport frames an arbitrary net.Conn into fixed 560-byte wire
// frames. Grounded on MPDevice_localSocket.cpp's readData/platformWrite:
// QLocalSocket is stream-based and can arbitrarily merge or split writes,
// so reads accumulate into an internal buffer until a whole frame exists.
type streamTransport struct {
	conn net.Conn
	log  *logrus.Entry

	frames chan []byte

	mu     sync.Mutex
	closed bool
	err    error
}

// NewStream wraps conn (a local socket connection, or a BLE GATT
// pass-through presented as a net.Conn) as a Transport. It starts a
// background reader goroutine that stops when conn is closed.
func NewStream(conn net.Conn, log *logrus.Entry) Transport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &streamTransport{
		conn:   conn,
		log:    log.WithField("transport", "stream"),
		frames: make(chan []byte, 8),
	}
	go t.readLoop()
	return t
}

func (t *streamTransport) FrameSize() int { return StreamFrameSize }

func (t *streamTransport) Write(ctx context.Context, frame []byte) error {
	if len(frame) != StreamFrameSize {
		return fmt.Errorf("transport: stream frame must be %d bytes, got %d", StreamFrameSize, len(frame))
	}
	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		_, err := t.conn.Write(frame)
		done <- result{err}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		return r.err
	}
}

func (t *streamTransport) readLoop() {
	defer close(t.frames)
	buf := make([]byte, 0, StreamFrameSize)
	chunk := make([]byte, StreamFrameSize)
	for {
		n, err := t.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for len(buf) >= StreamFrameSize {
				frame := make([]byte, StreamFrameSize)
				copy(frame, buf[:StreamFrameSize])
				buf = buf[StreamFrameSize:]
				select {
				case t.frames <- frame:
				default:
					t.log.Warn("frame channel full, blocking until the consumer catches up")
					t.frames <- frame
				}
			}
		}
		if err != nil {
			t.mu.Lock()
			if err != io.EOF {
				t.err = fmt.Errorf("transport: stream read: %w", err)
			}
			t.mu.Unlock()
			return
		}
	}
}

func (t *streamTransport) Frames() <-chan []byte { return t.frames }

func (t *streamTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *streamTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}

// EncodeStreamFrame lays out a stream wire frame bit-exact to
// MPDevice_localSocket.cpp::platformWrite: bytes 0-1 reserved (zero),
// bytes 2-3 little-endian payload length, payload from byte 4, the rest
// zero-padded.
func EncodeStreamFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxStreamPayload {
		return nil, fmt.Errorf("transport: stream payload %d exceeds max %d", len(payload), MaxStreamPayload)
	}
	frame := make([]byte, StreamFrameSize)
	frame[2] = byte(len(payload) & 0xff)
	frame[3] = byte((len(payload) >> 8) & 0xff)
	copy(frame[StreamPreludeSize:], payload)
	return frame, nil
}

// DecodeStreamFrame extracts the payload length and bytes from a 560-byte
// stream wire frame.
func DecodeStreamFrame(frame []byte) (payload []byte, err error) {
	if len(frame) != StreamFrameSize {
		return nil, fmt.Errorf("transport: stream frame must be %d bytes, got %d", StreamFrameSize, len(frame))
	}
	length := int(frame[2]) | int(frame[3])<<8
	if length > MaxStreamPayload {
		return nil, fmt.Errorf("transport: stream frame declares length %d exceeding max %d", length, MaxStreamPayload)
	}
	return frame[StreamPreludeSize : StreamPreludeSize+length], nil
}
