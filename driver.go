// Package moolticuted is the host-side driver for the Mooltipass/BLE
// family of hardware password managers (spec.md §1): C1-C8 wired
// together behind the plain Go method surface SPEC_FULL.md §6 names.
// Every method is asynchronous — it enqueues a job.Job and returns
// immediately, delivering its result to the supplied callback once the
// job engine's single-threaded event loop (spec.md §5) runs it to
// completion — mirroring the excluded websocket façade's
// `(ok, error_message, ...payload)` reply shape without owning any
// transport of its own.
package moolticuted

import (
	"github.com/sirupsen/logrus"

	"github.com/raoulh/moolticuted/internal/dispatcher"
	"github.com/raoulh/moolticuted/internal/drivererr"
	"github.com/raoulh/moolticuted/internal/filecache"
	"github.com/raoulh/moolticuted/internal/job"
	"github.com/raoulh/moolticuted/internal/mmm"
	"github.com/raoulh/moolticuted/internal/protocol"
	"github.com/raoulh/moolticuted/internal/transport"
)

// Driver is the client surface of spec.md §6, backed by one device link.
type Driver struct {
	disp  *dispatcher.Dispatcher
	jobs  *job.Engine
	mmm   *mmm.Engine
	files *filecache.Cache
	proto protocol.Protocol
	log   *logrus.Entry
}

// New wires a Driver over tr, using proto for framing and node layout.
// maxFileNameLen bounds the files-cache mirror (C8) to the device
// variant's filename limit, which C2 does not expose on its own.
func New(tr transport.Transport, proto protocol.Protocol, maxFileNameLen int, log *logrus.Entry) *Driver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	disp := dispatcher.New(tr, proto, log)
	jobs := job.NewEngine(disp, proto, log)
	return &Driver{
		disp:  disp,
		jobs:  jobs,
		mmm:   mmm.NewEngine(jobs, proto, log),
		files: filecache.New(maxFileNameLen),
		proto: proto,
		log:   log.WithField("component", "driver"),
	}
}

// Files exposes the C8 mirror for getStoredFiles/hasFilesCache/
// isFilesCacheInSync-style read-only queries.
func (d *Driver) Files() *filecache.Cache { return d.files }

// Cancel aborts the request matching reqID (spec.md §5's cancel(reqid)).
func (d *Driver) Cancel(reqID string) { d.jobs.Cancel(reqID) }

// Close releases the transport and stops the dispatcher and job loops.
func (d *Driver) Close() error { return d.disp.Close() }

// run enqueues a one-shot job built from steps, calling onOK or onErr
// exactly once depending on outcome — the shared plumbing every
// leaf operation in this package uses instead of hand-rolling
// OnSuccess/OnFailure wiring each time.
func (d *Driver) run(reqID string, steps []job.Step, onOK func(job.State), onErr func(error)) {
	j := job.NewJob(reqID, steps)
	j.OnSuccess = onOK
	j.OnFailure = func(err *drivererr.Error) { onErr(err) }
	d.jobs.Enqueue(j)
}
