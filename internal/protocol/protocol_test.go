package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDate(t *testing.T) {
	cases := []struct {
		year, month, day int
	}{
		{2010, 1, 1},
		{2024, 12, 31},
		{2035, 6, 15},
	}
	for _, c := range cases {
		encoded := encodeDate(c.year, c.month, c.day)
		year, month, day := decodeDate(encoded)
		require.Equal(t, c.year, year)
		require.Equal(t, c.month, month)
		require.Equal(t, c.day, day)
	}
}

func TestClassicCreatePacketsRoundTrip(t *testing.T) {
	p := NewClassic(CapFw12)
	payload := make([]byte, 140) // forces more than one chunk at MaxHIDPayload
	for i := range payload {
		payload[i] = byte(i)
	}

	chunks, err := p.CreatePackets(CmdGetLogin, payload)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	var flat []byte
	for _, c := range chunks {
		flat = append(flat, c...)
	}

	need := p.MessageLength(flat)
	require.Equal(t, messageHeaderSize+len(payload), need)

	msg, err := p.Decode(flat[:need])
	require.NoError(t, err)
	require.Equal(t, CmdGetLogin, msg.Command)
	require.Equal(t, payload, msg.Payload)
}

func TestMessageLengthIncompleteHeader(t *testing.T) {
	p := NewClassic(0)
	require.Equal(t, 0, p.MessageLength([]byte{0x01, 0x02}))
}

func TestDecodeShortMessage(t *testing.T) {
	p := NewClassic(0)
	_, err := p.Decode([]byte{0x05, 0x00, 0x00, 0x00, 0x01})
	require.ErrorIs(t, err, ErrShortMessage)
}

func TestDecodeStatusAndChangeNumbers(t *testing.T) {
	p := NewClassic(0)
	payload := []byte{byte(StatusOK)}
	payload = append(payload, 0x01, 0x00, 0x00, 0x00) // serial 1
	payload = append(payload, 0x02, 0x00, 0x00, 0x00) // cred db change 2
	payload = append(payload, 0x03, 0x00, 0x00, 0x00) // data db change 3
	payload = append(payload, 0x01)                   // cpz invalid

	chunks, err := p.CreatePackets(CmdGetStatus, payload)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	msg, err := p.Decode(chunks[0])
	require.NoError(t, err)
	require.Equal(t, StatusOK, msg.Status)
	require.EqualValues(t, 1, msg.SerialNumber)
	require.EqualValues(t, 2, msg.CredDBChange)
	require.EqualValues(t, 3, msg.DataDBChange)
	require.True(t, msg.CPZInvalid)
}

func TestClassicASCIICharsetRejectsNonASCII(t *testing.T) {
	p := NewClassic(0)
	_, err := p.EncodeString("café")
	require.Error(t, err)
}

func TestBLEAllowsUTF8(t *testing.T) {
	p := NewBLE(CapWebAuthn)
	b, err := p.EncodeString("café")
	require.NoError(t, err)
	s, err := p.DecodeString(b)
	require.NoError(t, err)
	require.Equal(t, "café", s)
}

func TestCapabilitiesHas(t *testing.T) {
	caps := CapFw12 | CapWebAuthn
	require.True(t, caps.Has(CapFw12))
	require.True(t, caps.Has(CapWebAuthn))
	require.False(t, caps.Has(CapFilesCache))
}
