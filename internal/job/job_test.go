package job

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raoulh/moolticuted/internal/dispatcher"
	"github.com/raoulh/moolticuted/internal/drivererr"
	"github.com/raoulh/moolticuted/internal/protocol"
	"github.com/raoulh/moolticuted/internal/transport"
)

func fakeDevice(t *testing.T, conn net.Conn) {
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

		chunks, err := proto.CreatePackets(cmd, []byte{byte(protocol.StatusOK)})
		require.NoError(t, err)
		for _, chunk := range chunks {
			frame, err := transport.EncodeStreamFrame(chunk)
			require.NoError(t, err)
			_, err = conn.Write(frame)
			require.NoError(t, err)
		}
	}
}

func newTestEngine(t *testing.T) (*Engine, func()) {
	client, server := net.Pipe()
	go fakeDevice(t, server)

	tr := transport.NewStream(client, nil)
	proto := protocol.NewClassic(0)
	d := dispatcher.New(tr, proto, nil)
	e := NewEngine(d, proto, nil)
	return e, func() {
		d.Close()
		server.Close()
	}
}

func TestEngineRunsStepsInOrder(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	var order []string
	done := make(chan State, 1)

	j := NewJob("req-1", []Step{
		{
			Name: "first",
			Build: func(st State) (protocol.Command, []byte, error) {
				return protocol.CmdPing, nil, nil
			},
			Handle: func(st State, msg protocol.Message, ok bool) Outcome {
				order = append(order, "first")
				st["first_ok"] = ok
				return Continue
			},
		},
		{
			Name: "second",
			Build: func(st State) (protocol.Command, []byte, error) {
				return protocol.CmdGetStatus, nil, nil
			},
			Handle: func(st State, msg protocol.Message, ok bool) Outcome {
				order = append(order, "second")
				return StopSuccess
			},
		},
	})
	j.OnSuccess = func(st State) { done <- st }

	e.Enqueue(j)

	select {
	case st := <-done:
		require.Equal(t, []string{"first", "second"}, order)
		require.Equal(t, true, st["first_ok"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to finish")
	}
}

func TestEngineCancelBeforeStart(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	blocker := NewJob("blocker", []Step{
		{
			Name: "slow",
			Build: func(st State) (protocol.Command, []byte, error) {
				return protocol.CmdPing, nil, nil
			},
			Handle: func(st State, msg protocol.Message, ok bool) Outcome {
				return StopSuccess
			},
		},
	})
	blockerDone := make(chan struct{}, 1)
	blocker.OnSuccess = func(State) { blockerDone <- struct{}{} }
	e.Enqueue(blocker)

	failed := make(chan *drivererr.Error, 1)
	j := NewJob("req-2", []Step{
		{
			Name: "never runs",
			Build: func(st State) (protocol.Command, []byte, error) {
				return protocol.CmdPing, nil, nil
			},
			Handle: func(st State, msg protocol.Message, ok bool) Outcome {
				return StopSuccess
			},
		},
	})
	j.OnFailure = func(err *drivererr.Error) {
		failed <- err
	}
	e.Enqueue(j)
	e.Cancel("req-2")

	select {
	case err := <-failed:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
	<-blockerDone
}
