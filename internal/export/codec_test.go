package export

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalArrayTruncatesToSchema(t *testing.T) {
	p := &Payload{
		Version:          SchemaClassic,
		StartCredentials: 0x10,
		StartData:        0x20,
		DeviceVersion:    "1.2",
		UserLanguage:      "en", // past the classic boundary, must be dropped
	}
	raw, err := MarshalArray(p)
	require.NoError(t, err)

	back, err := UnmarshalArray(raw)
	require.NoError(t, err)
	require.Equal(t, SchemaClassic, back.Version)
	require.Equal(t, p.StartCredentials, back.StartCredentials)
	require.Equal(t, p.DeviceVersion, back.DeviceVersion)
	require.Empty(t, back.UserLanguage)
}

func TestUnmarshalArrayToleratesShorterHistoricalSchema(t *testing.T) {
	// A classic-era export: only the first 10 fields present.
	raw := []byte(`[[0,0,0],[],16,32,[],[],[],[],[],"1.0"]`)
	p, err := UnmarshalArray(raw)
	require.NoError(t, err)
	require.Equal(t, SchemaClassic, p.Version)
	require.EqualValues(t, 16, p.StartCredentials)
	require.EqualValues(t, 32, p.StartData)
	require.Equal(t, "1.0", p.DeviceVersion)
	require.Zero(t, p.BundleVersion)
	require.False(t, p.IsBLE)
}

func TestMarshalArrayFullBLERoundTrip(t *testing.T) {
	p := &Payload{
		Version:           SchemaBLE,
		CTR:               [3]byte{1, 2, 3},
		StartCredentials:  0x10,
		StartData:         0x20,
		DeviceVersion:     "1.2",
		BundleVersion:     7,
		CredChangeNumber:  9,
		DataChangeNumber:  11,
		SerialNumber:      0xdead,
		IsBLE:             true,
		BLEUserCategories: []string{"work", "personal"},
		SecuritySettings:  3,
		UserLanguage:      "en",
		BTKeyboardLayout:  "us",
		USBKeyboardLayout: "us",
	}
	raw, err := MarshalArray(p)
	require.NoError(t, err)

	back, err := UnmarshalArray(raw)
	require.NoError(t, err)
	require.Equal(t, SchemaBLE, back.Version)
	require.Equal(t, p.CTR, back.CTR)
	require.Equal(t, p.BLEUserCategories, back.BLEUserCategories)
	require.Equal(t, p.USBKeyboardLayout, back.USBKeyboardLayout)
}
