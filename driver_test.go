package moolticuted

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raoulh/moolticuted/internal/node"
	"github.com/raoulh/moolticuted/internal/protocol"
	"github.com/raoulh/moolticuted/internal/transport"
)

// fakeEmptyDevice answers every command a management-mode scan of a blank
// flash (no credentials, no data) and the device-wide commands in
// driver_misc.go would ever see, each with the minimal response its
// Step.Handle needs to succeed. It never returns CmdReadFlashNode
// responses because an empty graph's chain walks never request one.
func fakeEmptyDevice(t *testing.T, conn net.Conn) {
	t.Helper()
	proto := protocol.NewClassic(0)
	buf := make([]byte, transport.StreamFrameSize)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		reqPayload, err := transport.DecodeStreamFrame(buf)
		if err != nil {
			return
		}
		cmd := protocol.Command(binary.LittleEndian.Uint16(reqPayload[2:4]))
		reqBody := reqPayload[4:]

		respBody := fakeResponseBody(cmd, reqBody)
		chunks, err := proto.CreatePackets(cmd, respBody)
		require.NoError(t, err)
		for _, chunk := range chunks {
			frame, err := transport.EncodeStreamFrame(chunk)
			require.NoError(t, err)
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	}
}

// fakeResponseBody returns [status, ...] for cmd, sized so every
// Step.Handle in this package and internal/mmm that expects cmd is
// satisfied for the "empty flash, no edits" scan-and-leave path.
func fakeResponseBody(cmd protocol.Command, reqBody []byte) []byte {
	ok := []byte{byte(protocol.StatusOK)}
	switch cmd {
	case protocol.CmdGetStartNodes:
		return append(ok, make([]byte, 4)...) // cred head, data head: both none
	case protocol.CmdGetCTRValue:
		return append(ok, make([]byte, 3)...)
	case protocol.CmdGetCPZCTRValues:
		return append(ok, 0) // count = 0
	case protocol.CmdGetFavorite:
		return append(ok, make([]byte, 14*4)...) // classic MaxFavorites()
	case protocol.CmdGetFreeAddresses:
		count := 0
		if len(reqBody) >= 2 {
			count = int(binary.LittleEndian.Uint16(reqBody[0:2]))
		}
		addrs := make([]byte, count*2)
		for i := 0; i < count; i++ {
			binary.LittleEndian.PutUint16(addrs[i*2:i*2+2], uint16(i+1))
		}
		return append(ok, addrs...)
	case protocol.CmdGetSerial:
		return append(ok, make([]byte, 4)...)
	case protocol.CmdGetVersion:
		return append(ok, []byte("1.0.0")...)
	case protocol.CmdGetPassword:
		return append(ok, []byte("s3cret")...)
	case protocol.CmdGetRandomNumbers:
		return append(ok, []byte{1, 2, 3, 4}...)
	case protocol.CmdGetAvailableUsers:
		return append(ok, 5, 'a', 'l', 'i', 'c', 'e', 3, 'b', 'o', 'b')
	case protocol.CmdGetCurrentCardCPZ:
		return append(ok, make([]byte, 24)...)
	default:
		return ok
	}
}

func newTestDriver(t *testing.T) (*Driver, func()) {
	client, server := net.Pipe()
	go fakeEmptyDevice(t, server)

	tr := transport.NewStream(client, nil)
	proto := protocol.NewClassic(0)
	d := New(tr, proto, 32, nil)
	return d, func() {
		d.Close()
		server.Close()
	}
}

func TestLock(t *testing.T) {
	d, cleanup := newTestDriver(t)
	defer cleanup()

	done := make(chan error, 1)
	d.Lock("req-1", func(err error) { done <- err })

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lock")
	}
}

func TestResetCard(t *testing.T) {
	d, cleanup := newTestDriver(t)
	defer cleanup()

	done := make(chan error, 1)
	d.ResetCard("req-1", func(err error) { done <- err })

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reset")
	}
}

func TestGetRandom(t *testing.T) {
	d, cleanup := newTestDriver(t)
	defer cleanup()

	type result struct {
		bytes []byte
		err   error
	}
	done := make(chan result, 1)
	d.GetRandom("req-1", 4, func(bytes []byte, err error) { done <- result{bytes, err} })

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, []byte{1, 2, 3, 4}, r.bytes)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for random bytes")
	}
}

func TestGetAvailableUsers(t *testing.T) {
	d, cleanup := newTestDriver(t)
	defer cleanup()

	type result struct {
		users []string
		err   error
	}
	done := make(chan result, 1)
	d.GetAvailableUsers("req-1", func(users []string, err error) { done <- result{users, err} })

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, []string{"alice", "bob"}, r.users)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for user list")
	}
}

func TestGetCurrentCardCPZ(t *testing.T) {
	d, cleanup := newTestDriver(t)
	defer cleanup()

	type result struct {
		cpz []byte
		err error
	}
	done := make(chan result, 1)
	d.GetCurrentCardCPZ("req-1", func(cpz []byte, err error) { done <- result{cpz, err} })

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Len(t, r.cpz, 24)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cpz")
	}
}

func TestGetCredentialOnEmptyGraphReportsNoSuchService(t *testing.T) {
	d, cleanup := newTestDriver(t)
	defer cleanup()

	type result struct {
		service, login, password, description string
		err                                    error
	}
	done := make(chan result, 1)
	d.GetCredential("req-1", "example.com", "alice", "", func(service, login, password, description string, err error) {
		done <- result{service, login, password, description, err}
	})

	select {
	case r := <-done:
		require.Error(t, r.err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for get_credential")
	}
}

func TestSetCredentialOnEmptyGraphCreatesLogin(t *testing.T) {
	d, cleanup := newTestDriver(t)
	defer cleanup()

	done := make(chan error, 1)
	d.SetCredential("req-1", "example.com", "alice", "encrypted-pw", "my login", true, func(err error) {
		done <- err
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for set_credential")
	}

	g := d.mmm.Authoritative()
	parent, ok := g.FindByService(node.CredParent, "example.com")
	require.True(t, ok, "parent for example.com was not written back")
	require.False(t, parent.FirstChild.IsNone(), "parent has no child linked")

	child, ok := g.FindByAddress(parent.FirstChild)
	require.True(t, ok, "parent.FirstChild %s does not resolve to any node", parent.FirstChild)
	require.Equal(t, "alice", child.Login)
	require.Equal(t, parent.FirstChild, child.Address, "parent's FirstChild must point at the child's actual final address")
}

func TestDecodeUserList(t *testing.T) {
	body := []byte{5, 'a', 'l', 'i', 'c', 'e', 3, 'b', 'o', 'b'}
	require.Equal(t, []string{"alice", "bob"}, decodeUserList(body))
}

func TestDecodeUserListToleratesTruncatedTrailer(t *testing.T) {
	body := []byte{5, 'a', 'l', 'i', 'c', 'e', 9}
	require.Equal(t, []string{"alice"}, decodeUserList(body))
}
