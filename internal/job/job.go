// Package job implements C4: a single-flight async job engine sitting on
// top of the command dispatcher. A Job is an ordered list of Steps; each
// Step builds one command from accumulated job state and decides, from
// that command's result, whether the job continues, succeeds, or fails.
package job

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/raoulh/moolticuted/internal/dispatcher"
	"github.com/raoulh/moolticuted/internal/drivererr"
	"github.com/raoulh/moolticuted/internal/protocol"
)

// Outcome is what a Step's result handler decides after seeing a
// response.
type Outcome int

const (
	Continue Outcome = iota
	StopSuccess
	StopFailure
	// Repeat re-runs the same step, letting it rebuild its command from
	// updated State. Used for variable-length operations — a flash scan
	// that doesn't know its node count ahead of time pops one address
	// off a State-held queue per repetition until the queue is empty.
	Repeat
)

// State is the per-job mutable bag steps read and write as they run.
type State map[string]interface{}

// Step builds one command from the job's accumulated state and reacts to
// its response. Build returns the command code plus payload; Handle
// receives the decoded message (or ok=false on failure) and decides the
// Outcome.
type Step struct {
	Name       string
	Build      func(st State) (cmd protocol.Command, payload []byte, err error)
	Handle     func(st State, msg protocol.Message, ok bool) Outcome
	Timeout    time.Duration
	MaxRetries int
}

// Job is an ordered list of Steps sharing one State bag, identified by a
// caller-supplied RequestID for cancellation.
type Job struct {
	ID        string
	RequestID string
	Steps     []Step
	State     State

	OnSuccess func(State)
	OnFailure func(err *drivererr.Error)

	cancelled bool
	started   bool
}

// NewJob allocates a Job with a fresh ID and empty state bag.
func NewJob(requestID string, steps []Step) *Job {
	return &Job{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Steps:     steps,
		State:     State{},
	}
}

// Engine runs at most one Job at a time over a dispatcher.Dispatcher,
// supporting prepend (sub-jobs that must finish within the current job's
// logical span) and cancellation by request ID.
type Engine struct {
	disp  *dispatcher.Dispatcher
	proto protocol.Protocol
	log   *logrus.Entry

	mu      sync.Mutex
	queue   []*Job
	current *Job
}

// NewEngine builds a job Engine driving disp, using proto to turn each
// Step's (command, payload) into wire-ready chunks.
func NewEngine(disp *dispatcher.Dispatcher, proto protocol.Protocol, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{disp: disp, proto: proto, log: log.WithField("component", "job")}
}

// Enqueue appends job to the FIFO, starting it immediately if nothing is
// currently running.
func (e *Engine) Enqueue(j *Job) {
	e.mu.Lock()
	e.queue = append(e.queue, j)
	shouldStart := e.current == nil
	e.mu.Unlock()
	if shouldStart {
		e.advance()
	}
}

// Prepend inserts job at the front of the queue, ahead of anything already
// waiting, so it completes within the logical span of the job that
// requested it.
func (e *Engine) Prepend(j *Job) {
	e.mu.Lock()
	e.queue = append([]*Job{j}, e.queue...)
	shouldStart := e.current == nil
	e.mu.Unlock()
	if shouldStart {
		e.advance()
	}
}

// Cancel marks the job matching requestID as cancelled. If it has not
// started, it is removed from the queue synchronously (its OnFailure fires
// with Cancelled and no frames are written). If it is running, a flag is
// set that the engine observes before issuing the next step and after the
// current step's response, per spec.md §5's cancellation semantics.
func (e *Engine) Cancel(requestID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remaining := e.queue[:0]
	for _, j := range e.queue {
		if j.RequestID == requestID {
			j.cancelled = true
			if j.OnFailure != nil {
				go j.OnFailure(drivererr.New(drivererr.Cancelled, "request cancelled before start"))
			}
			continue
		}
		remaining = append(remaining, j)
	}
	e.queue = remaining

	if e.current != nil && e.current.RequestID == requestID {
		e.current.cancelled = true
	}
}

func (e *Engine) advance() {
	e.mu.Lock()
	if e.current != nil || len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}
	j := e.queue[0]
	e.queue = e.queue[1:]
	e.current = j
	e.mu.Unlock()

	j.started = true
	if j.cancelled {
		e.finish(j, nil)
		return
	}
	e.runStep(j, 0)
}

func (e *Engine) finish(j *Job, failure *drivererr.Error) {
	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()

	switch {
	case j.cancelled:
		if j.OnFailure != nil {
			j.OnFailure(drivererr.New(drivererr.Cancelled, "request cancelled"))
		}
	case failure != nil:
		if j.OnFailure != nil {
			j.OnFailure(failure)
		}
	default:
		if j.OnSuccess != nil {
			j.OnSuccess(j.State)
		}
	}
	e.advance()
}

func (e *Engine) runStep(j *Job, idx int) {
	if j.cancelled {
		e.finish(j, nil)
		return
	}
	if idx >= len(j.Steps) {
		e.finish(j, nil)
		return
	}
	step := j.Steps[idx]
	cmdCode, payload, err := step.Build(j.State)
	if err != nil {
		e.finish(j, drivererr.Wrap(drivererr.ProtocolViolation, err, "failed to build step").WithStep(idx))
		return
	}
	chunks, err := e.proto.CreatePackets(cmdCode, payload)
	if err != nil {
		e.finish(j, drivererr.Wrap(drivererr.ProtocolViolation, err, "failed to frame step command").WithStep(idx))
		return
	}

	e.log.WithField("job", j.ID).WithField("step", step.Name).Debug("dispatching step command")
	e.disp.Enqueue(&dispatcher.Command{
		Name:       step.Name,
		Chunks:     chunks,
		Timeout:    step.Timeout,
		MaxRetries: step.MaxRetries,
		Callback: func(msg protocol.Message, ok bool) bool {
			outcome := step.Handle(j.State, msg, ok)
			switch outcome {
			case Continue:
				if j.cancelled {
					e.finish(j, nil)
					return true
				}
				e.runStep(j, idx+1)
			case Repeat:
				if j.cancelled {
					e.finish(j, nil)
					return true
				}
				e.runStep(j, idx)
			case StopSuccess:
				e.finish(j, nil)
			case StopFailure:
				e.finish(j, drivererr.New(drivererr.DeviceRejected, "step reported failure").
					WithStep(idx).WithCommand(msg.Command.String()))
			}
			return true
		},
	})
}
