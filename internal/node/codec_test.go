package node

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParentEncodeDecodeRoundTrip(t *testing.T) {
	n := &Node{ServiceName: "github.com", Prev: 1, Next: 2, FirstChild: 3}
	raw, err := EncodeParent(n, parentServiceFieldClassic)
	require.NoError(t, err)
	require.Len(t, raw, 8+parentServiceFieldClassic)

	decoded, err := DecodeParent(42, raw)
	require.NoError(t, err)
	require.Equal(t, "github.com", decoded.ServiceName)
	require.Equal(t, Address(1), decoded.Prev)
	require.Equal(t, Address(2), decoded.Next)
	require.Equal(t, Address(3), decoded.FirstChild)
	require.Equal(t, Address(42), decoded.Address)
}

func TestParentEncodeRejectsOversizedServiceName(t *testing.T) {
	n := &Node{ServiceName: string(make([]byte, parentServiceFieldClassic))}
	_, err := EncodeParent(n, parentServiceFieldClassic)
	require.Error(t, err)
}

func TestChildEncodeDecodeRoundTrip(t *testing.T) {
	n := &Node{
		Login:             "alice",
		Description:       "personal",
		DateCreated:       (14 << 9) | (1 << 5) | 1,
		DateUsed:          (14 << 9) | (6 << 5) | 1,
		EncryptedPassword: []byte("0123456789abcdef0123456789abcdef"),
		Prev:              5,
		Next:              6,
	}
	raw, err := EncodeChild(n, childDescFieldClassic, childLoginFieldClassic, childPwdFieldClassic)
	require.NoError(t, err)

	decoded, err := DecodeChild(7, raw, childDescFieldClassic, childLoginFieldClassic, childPwdFieldClassic)
	require.NoError(t, err)
	require.Equal(t, "alice", decoded.Login)
	require.Equal(t, "personal", decoded.Description)
	require.Equal(t, Address(5), decoded.Prev)
	require.Equal(t, Address(6), decoded.Next)
	require.Equal(t, n.DateCreated, decoded.DateCreated)
}
