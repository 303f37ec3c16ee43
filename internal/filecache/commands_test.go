package filecache

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raoulh/moolticuted/internal/dispatcher"
	"github.com/raoulh/moolticuted/internal/job"
	"github.com/raoulh/moolticuted/internal/protocol"
	"github.com/raoulh/moolticuted/internal/transport"
)

// fakeListDevice answers CmdGetFilesCacheList with a two-entry list and
// everything else with StatusOK.
func fakeListDevice(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, transport.StreamFrameSize)
	proto := protocol.NewClassic(0)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		payload, err := transport.DecodeStreamFrame(buf)
		require.NoError(t, err)
		cmd := protocol.Command(binary.LittleEndian.Uint16(payload[2:4]))

		var body []byte
		if cmd == protocol.CmdGetFilesCacheList {
			body = encodeFileListForTest(map[string]int64{"a.txt": 10, "b.txt": 20})
		}
		resp := append([]byte{byte(protocol.StatusOK)}, body...)

		chunks, err := proto.CreatePackets(cmd, resp)
		require.NoError(t, err)
		for _, chunk := range chunks {
			frame, err := transport.EncodeStreamFrame(chunk)
			require.NoError(t, err)
			_, err = conn.Write(frame)
			require.NoError(t, err)
		}
	}
}

func encodeFileListForTest(files map[string]int64) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(len(files)))
	for name, size := range files {
		entry := make([]byte, 1+len(name)+4)
		entry[0] = byte(len(name))
		copy(entry[1:], name)
		binary.LittleEndian.PutUint32(entry[1+len(name):], uint32(size))
		buf = append(buf, entry...)
	}
	return buf
}

func TestRefreshStepPopulatesCache(t *testing.T) {
	client, server := net.Pipe()
	go fakeListDevice(t, server)
	defer server.Close()

	tr := transport.NewStream(client, nil)
	proto := protocol.NewClassic(0)
	d := dispatcher.New(tr, proto, nil)
	defer d.Close()
	e := job.NewEngine(d, proto, nil)

	c := New(64)
	done := make(chan job.State, 1)
	j := job.NewJob("req-refresh", []job.Step{RefreshStep(c)})
	j.OnSuccess = func(st job.State) { done <- st }

	e.Enqueue(j)

	select {
	case <-done:
		require.True(t, c.InSync())
		size, ok := c.Size("a.txt")
		require.True(t, ok)
		require.EqualValues(t, 10, size)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh")
	}
}
