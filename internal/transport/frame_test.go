package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHIDFrameRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	frame, err := EncodeHIDFrame(true, false, 7, payload)
	require.NoError(t, err)
	require.Len(t, frame, HIDFrameSize)

	decoded, err := DecodeHIDFrame(frame)
	require.NoError(t, err)
	require.True(t, decoded.Flip)
	require.False(t, decoded.Ack)
	require.EqualValues(t, 7, decoded.Command)
	require.Equal(t, payload, decoded.Payload)
}

func TestHIDFramePayloadTooLarge(t *testing.T) {
	_, err := EncodeHIDFrame(false, false, 0, make([]byte, MaxHIDPayload+1))
	require.Error(t, err)
}

func TestDecodeHIDFrameWrongSize(t *testing.T) {
	_, err := DecodeHIDFrame(make([]byte, HIDFrameSize-1))
	require.Error(t, err)
}

func TestStreamFrameRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox")
	frame, err := EncodeStreamFrame(payload)
	require.NoError(t, err)
	require.Len(t, frame, StreamFrameSize)

	decoded, err := DecodeStreamFrame(frame)
	require.NoError(t, err)
	require.Equal(t, payload, decoded)
}

func TestStreamFramePayloadTooLarge(t *testing.T) {
	_, err := EncodeStreamFrame(make([]byte, MaxStreamPayload+1))
	require.Error(t, err)
}

func TestEncodeHIDFrameEmptyPayload(t *testing.T) {
	frame, err := EncodeHIDFrame(false, true, 2, nil)
	require.NoError(t, err)
	decoded, err := DecodeHIDFrame(frame)
	require.NoError(t, err)
	require.Empty(t, decoded.Payload)
	require.True(t, decoded.Ack)
}
