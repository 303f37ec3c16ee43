package export

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raoulh/moolticuted/internal/mmm"
	"github.com/raoulh/moolticuted/internal/node"
	"github.com/raoulh/moolticuted/internal/protocol"
)

func TestFromGraphToGraphRoundTrip(t *testing.T) {
	proto := protocol.NewClassic(0)
	g := node.NewGraph(proto.MaxFavorites())
	sess := mmm.NewSession(g)

	_, _, err := sess.AddCredential("github.com", "alice", "enc-pw-bytes-aaaaaaaaaaaaaaaaaaa", "work login", 1, 2)
	require.NoError(t, err)
	_, _, err = sess.AddCredential("github.com", "bob", "enc-pw-bytes-bbbbbbbbbbbbbbbbbbb", "", 3, 4)
	require.NoError(t, err)

	p, err := FromGraph(sess.Clone(), proto, SchemaBLE, Metadata{DeviceVersion: "1.0", SerialNumber: 99})
	require.NoError(t, err)
	require.Len(t, p.ServiceNodes, 1)
	require.Len(t, p.ServiceChildNodes, 2)

	raw, err := MarshalArray(p)
	require.NoError(t, err)
	back, err := UnmarshalArray(raw)
	require.NoError(t, err)

	g2, err := ToGraph(back, proto.MaxFavorites(), proto)
	require.NoError(t, err)

	parent, ok := g2.FindByService(node.CredParent, "github.com")
	require.True(t, ok)
	_, ok = g2.FindChildByLoginUnder(parent, "alice")
	require.True(t, ok)
	_, ok = g2.FindChildByLoginUnder(parent, "bob")
	require.True(t, ok)
}
