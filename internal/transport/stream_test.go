package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamTransportWriteAndRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := NewStream(client, nil)
	defer ct.Close()

	payload := []byte("hello device")
	frame, err := EncodeStreamFrame(payload)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- ct.Write(context.Background(), frame)
	}()

	buf := make([]byte, StreamFrameSize)
	n, err := io.ReadFull(server, buf)
	require.NoError(t, err)
	require.Equal(t, StreamFrameSize, n)
	require.NoError(t, <-done)

	got, err := DecodeStreamFrame(buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestStreamTransportDeliversFramesFromFragmentedReads(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	st := NewStream(server, nil)
	defer st.Close()

	payload := []byte("fragmented")
	frame, err := EncodeStreamFrame(payload)
	require.NoError(t, err)

	go func() {
		// split the frame into two writes to exercise accumulation
		client.Write(frame[:100])
		client.Write(frame[100:])
	}()

	select {
	case got := <-st.Frames():
		decoded, err := DecodeStreamFrame(got)
		require.NoError(t, err)
		require.Equal(t, payload, decoded)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestStreamTransportWriteRejectsWrongSize(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := NewStream(client, nil)
	defer ct.Close()

	err := ct.Write(context.Background(), []byte{1, 2, 3})
	require.Error(t, err)
}

func TestStreamTransportCloseIsIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	ct := NewStream(client, nil)
	require.NoError(t, ct.Close())
	require.NoError(t, ct.Close())
}
