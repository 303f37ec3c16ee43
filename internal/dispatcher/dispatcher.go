// Package dispatcher implements C3: a single-flight FIFO command queue
// sitting on top of a transport.Transport and a protocol.Protocol. It owns
// frame-level reassembly of application messages (see
// internal/transport's package doc for why that isn't C1's job), the flip
// bit, retries, timeouts and the idle-priority status poll.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raoulh/moolticuted/internal/drivererr"
	"github.com/raoulh/moolticuted/internal/protocol"
	"github.com/raoulh/moolticuted/internal/transport"
)

// Callback is invoked once per inbound application message while a command
// is in flight. Returning done=true releases the dispatcher to move on to
// the next queued command; done=false keeps the slot open for
// multi-response commands (e.g. a credential stream).
type Callback func(msg protocol.Message, ok bool) (done bool)

// Command is one FIFO entry: the frames to send (already chunked by
// protocol.CreatePackets) plus the policy governing retries and timeout.
type Command struct {
	Name       string
	Chunks     [][]byte
	Callback   Callback
	Timeout    time.Duration
	MaxRetries int
}

const defaultTimeout = 2 * time.Second
const statusPollInterval = 5 * time.Second

// Dispatcher serializes Commands onto one Transport, using one Protocol to
// frame and parse application messages.
type Dispatcher struct {
	tr   transport.Transport
	proto protocol.Protocol
	log  *logrus.Entry

	queue   chan *Command
	cancel  chan struct{}
	closed  chan struct{}
	closeMu sync.Mutex
	once    sync.Once

	flip bool
}

// New builds a Dispatcher over tr using proto to frame messages, and starts
// its run loop. Close stops the loop and releases tr.
func New(tr transport.Transport, proto protocol.Protocol, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	d := &Dispatcher{
		tr:     tr,
		proto:  proto,
		log:    log.WithField("component", "dispatcher"),
		queue:  make(chan *Command, 64),
		cancel: make(chan struct{}),
		closed: make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue appends cmd to the FIFO. It blocks only if the queue is full.
func (d *Dispatcher) Enqueue(cmd *Command) {
	if cmd.Timeout <= 0 {
		cmd.Timeout = defaultTimeout
	}
	select {
	case d.queue <- cmd:
	case <-d.closed:
		cmd.Callback(protocol.Message{}, false)
	}
}

// Close stops the dispatcher loop and the underlying transport. Any
// command still in flight or queued has its callback invoked with
// ok=false; the callback receives no error kind, so transport loss is
// not told apart from any other command failure.
func (d *Dispatcher) Close() error {
	d.once.Do(func() { close(d.closed) })
	return d.tr.Close()
}

func (d *Dispatcher) run() {
	pollTimer := time.NewTimer(statusPollInterval)
	defer pollTimer.Stop()

	for {
		select {
		case <-d.closed:
			d.drainFatal()
			return
		case cmd := <-d.queue:
			if !d.execute(cmd) {
				d.drainFatal()
				return
			}
			pollTimer.Reset(statusPollInterval)
		case <-pollTimer.C:
			d.statusPoll()
			pollTimer.Reset(statusPollInterval)
		}
	}
}

// drainFatal fails every command still sitting in the queue once the
// transport is gone, per spec.md §4.3.8: "all pending callbacks fire with
// ok=false".
func (d *Dispatcher) drainFatal() {
	for {
		select {
		case cmd := <-d.queue:
			cmd.Callback(protocol.Message{}, false)
		default:
			return
		}
	}
}

// statusPoll injects a bare status-poll command at idle priority, per
// spec.md §4.3.7. It never competes with a real command: run() only fires
// it between commands, never interrupting one.
func (d *Dispatcher) statusPoll() {
	chunks, err := d.proto.CreatePackets(statusPollCommand, nil)
	if err != nil {
		d.log.WithError(err).Warn("failed to build status poll packet")
		return
	}
	cmd := &Command{
		Name:       "status_poll",
		Chunks:     chunks,
		Timeout:    defaultTimeout,
		MaxRetries: 0,
		Callback:   func(protocol.Message, bool) bool { return true },
	}
	d.execute(cmd)
}

// execute runs one command to completion (success, failure, or fatal
// transport loss) and returns false if the transport is gone.
func (d *Dispatcher) execute(cmd *Command) bool {
	retries := 0
	flip := d.nextFlip()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
		ok, fatal := d.sendAndAwait(ctx, cmd, flip)
		cancel()
		if fatal {
			cmd.Callback(protocol.Message{}, false)
			return false
		}
		if ok {
			return true
		}
		if retries >= cmd.MaxRetries {
			cmd.Callback(protocol.Message{}, false)
			return true
		}
		retries++
		d.log.WithField("command", cmd.Name).WithField("retry", retries).Warn("command timed out, retrying")
	}
}

// sendAndAwait writes cmd's chunks as wire frames and waits for a complete
// application message (possibly itself split across multiple wire frames)
// matching flip, invoking cmd.Callback for each. Returns ok=true once the
// callback signals done, ok=false on timeout, fatal=true if the transport
// is gone.
func (d *Dispatcher) sendAndAwait(ctx context.Context, cmd *Command, flip bool) (ok bool, fatal bool) {
	for i, chunk := range cmd.Chunks {
		frame, err := encodeFrame(d.tr.FrameSize(), flip, i == len(cmd.Chunks)-1, chunk)
		if err != nil {
			d.log.WithError(err).Error("failed to encode wire frame")
			cmd.Callback(protocol.Message{}, false)
			return true, false
		}
		if err := d.tr.Write(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return false, false
			}
			return false, true
		}
	}

	var respBuf []byte
	for {
		select {
		case frame, open := <-d.tr.Frames():
			if !open {
				return false, true
			}
			payload, matches, err := decodeFrame(d.tr.FrameSize(), frame, flip)
			if err != nil {
				d.log.WithError(err).Warn("dropping malformed frame")
				continue
			}
			if !matches {
				d.log.Debug("dropping frame with stale flip bit")
				continue
			}
			respBuf = append(respBuf, payload...)
			need := d.proto.MessageLength(respBuf)
			if need == 0 || len(respBuf) < need {
				continue
			}
			msg, err := d.proto.Decode(respBuf[:need])
			respBuf = respBuf[need:]
			if err != nil {
				d.log.WithError(err).Warn("dropping malformed application message")
				continue
			}
			if cmd.Callback(msg, true) {
				return true, false
			}
		case <-ctx.Done():
			return false, false
		}
	}
}

func (d *Dispatcher) nextFlip() bool {
	d.flip = !d.flip
	return d.flip
}

// Err surfaces a drivererr.TransportLost wrapping the transport's
// terminal error, for callers that want to report why the dispatcher
// shut down.
func (d *Dispatcher) Err() error {
	if err := d.tr.Err(); err != nil {
		return drivererr.Wrap(drivererr.TransportLost, err, "device link lost")
	}
	return nil
}
