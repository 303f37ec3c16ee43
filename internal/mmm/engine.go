package mmm

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/raoulh/moolticuted/internal/job"
	"github.com/raoulh/moolticuted/internal/node"
	"github.com/raoulh/moolticuted/internal/protocol"
)

// Engine drives the nine phases of spec.md §4.6 over a job.Engine. It owns
// the authoritative Graph between MMM visits and hands out a *Session (the
// editable clone) for the duration of one visit; per spec.md §3's
// Ownership note, nothing outside this package ever sees the authoritative
// Graph directly — only through Engine-mediated access.
type Engine struct {
	jobs  *job.Engine
	proto protocol.Protocol
	log   *logrus.Entry

	authoritative *node.Graph
	session       *Session

	credChangeAtEntry uint32
	dataChangeAtEntry uint32
	wantDataAtEntry   bool
}

// NewEngine builds a management-mode Engine driving jobs over proto.
func NewEngine(jobs *job.Engine, proto protocol.Protocol, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{jobs: jobs, proto: proto, log: log.WithField("component", "mmm")}
}

// Authoritative exposes the last committed graph; nil before the first
// successful scan.
func (e *Engine) Authoritative() *node.Graph { return e.authoritative }

// Session exposes the editable clone for the current MMM visit, nil outside
// one.
func (e *Engine) Session() *Session { return e.session }

// InSession reports whether an MMM visit is currently open.
func (e *Engine) InSession() bool { return e.session != nil }

// EnterMMM builds the phase 1-2 job: start MMM and scan the full flash.
// Call OnScanSuccess from the job's OnSuccess to run phases 3-4 (integrity
// check and clone) and obtain the ready Session.
func (e *Engine) EnterMMM(requestID string, wantData bool) *job.Job {
	e.wantDataAtEntry = wantData
	steps := ScanSteps(e.proto, e.proto.MaxFavorites(), wantData)
	return job.NewJob(requestID, steps)
}

// OnScanSuccess runs phases 3-4 over a completed scan job's State: build
// the scanned Graph, integrity-check and repair it, then clone it into a
// fresh editable Session. Returns the integrity Report for the caller to
// log or surface via a progress callback.
func (e *Engine) OnScanSuccess(st job.State) Report {
	g := AssembleGraph(st, e.proto.MaxFavorites(), e.wantDataAtEntry)
	report := CheckAndRepair(g)
	e.authoritative = g
	e.credChangeAtEntry, e.dataChangeAtEntry = ChangeNumbersAtEntry(st)
	e.session = NewSession(g)
	return report
}

// state keys for data that crosses a job step boundary, filled in by a
// device response and read back by a later step in the same job.
const (
	stWBFreeAddrs = "wb_free_addrs"
	stWBPlan      = "wb_plan"
	stWBWrites    = "wb_write_queue"
	stWBDeletes   = "wb_delete_queue"
)

// LeaveMMM builds the phase 6-9 job. If commit is false, it only ends MMM:
// the session's edits (if any) are discarded without touching the device.
// If commit is true, it requests any addresses new nodes need, diffs the
// session's clone against the authoritative graph, writes back every
// changed/removed node, re-uploads favorites/start-nodes/CTR/CPZ-CTR list
// if they changed, bumps change numbers if credentials and/or data
// changed, then ends MMM. An unedited session committed this way issues no
// write-node command and bumps no change number — spec.md §8's "idempotent
// MMM no-op" property.
func (e *Engine) LeaveMMM(requestID string, commit bool) (*job.Job, error) {
	if e.session == nil {
		return nil, fmt.Errorf("mmm: no active session to leave")
	}
	sess := e.session

	if !commit {
		return job.NewJob(requestID, []job.Step{endMMMStep()}), nil
	}

	EnforceMonotonicCTR(e.authoritative, sess.clone)
	needed := NeededAddressCount(sess)

	steps := []job.Step{
		requestFreeAddressesStep(needed),
		prepareWriteBackStep(e, sess),
		writeNodesStep(),
		deleteNodesStep(),
		writeFavoritesStep(sess),
		writeStartNodesStep(sess),
		writeCTRAndCPZStep(sess),
		bumpChangeNumbersStep(sess),
		endMMMStep(),
	}
	return job.NewJob(requestID, steps), nil
}

// OnCommitSuccess runs phase 9's success branch: the clone replaces the
// authoritative copy. Call from the leave job's OnSuccess when it was
// built with commit=true.
func (e *Engine) OnCommitSuccess() {
	if e.session == nil {
		return
	}
	e.authoritative = e.session.clone
	e.session = nil
}

// DiscardSession runs phase 9's failure/cancellation branch, and the
// commit=false path: the clone is dropped, the authoritative graph and its
// change numbers are untouched. Per spec.md §5, this is also how a
// cancellation mid-MMM ends: no partial edit is ever visible afterward.
func (e *Engine) DiscardSession() {
	e.session = nil
}
