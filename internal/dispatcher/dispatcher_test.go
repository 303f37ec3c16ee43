package dispatcher

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raoulh/moolticuted/internal/protocol"
	"github.com/raoulh/moolticuted/internal/transport"
)

// fakeDevice reads stream frames off one end of a net.Pipe and replies with
// a canned application message carrying StatusOK, so tests exercise the
// dispatcher's real framing/decoding path without a real transport.
func fakeDevice(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, transport.StreamFrameSize)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		payload, err := transport.DecodeStreamFrame(buf)
		require.NoError(t, err)
		cmd := protocol.Command(binary.LittleEndian.Uint16(payload[2:4]))

		reply := []byte{byte(protocol.StatusOK)}
		p := protocol.NewClassic(0)
		chunks, err := p.CreatePackets(cmd, reply)
		require.NoError(t, err)
		for _, chunk := range chunks {
			frame, err := transport.EncodeStreamFrame(chunk)
			require.NoError(t, err)
			_, err = conn.Write(frame)
			require.NoError(t, err)
		}
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, func()) {
	client, server := net.Pipe()
	go fakeDevice(t, server)

	tr := transport.NewStream(client, nil)
	proto := protocol.NewClassic(0)
	d := New(tr, proto, nil)
	return d, func() {
		d.Close()
		server.Close()
	}
}

func TestDispatcherRoundTrip(t *testing.T) {
	d, cleanup := newTestDispatcher(t)
	defer cleanup()

	p := protocol.NewClassic(0)
	chunks, err := p.CreatePackets(protocol.CmdPing, nil)
	require.NoError(t, err)

	done := make(chan protocol.Message, 1)
	d.Enqueue(&Command{
		Name:   "ping",
		Chunks: chunks,
		Callback: func(msg protocol.Message, ok bool) bool {
			if ok {
				done <- msg
			}
			return true
		},
	})

	select {
	case msg := <-done:
		require.Equal(t, protocol.StatusOK, msg.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestDispatcherTimeoutWithoutDevice(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := transport.NewStream(client, nil)
	proto := protocol.NewClassic(0)
	d := New(tr, proto, nil)
	defer d.Close()

	p := protocol.NewClassic(0)
	chunks, err := p.CreatePackets(protocol.CmdPing, nil)
	require.NoError(t, err)

	done := make(chan bool, 1)
	d.Enqueue(&Command{
		Name:       "ping",
		Chunks:     chunks,
		Timeout:    50 * time.Millisecond,
		MaxRetries: 1,
		Callback: func(msg protocol.Message, ok bool) bool {
			done <- ok
			return true
		},
	})

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}
