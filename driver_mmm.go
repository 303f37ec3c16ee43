package moolticuted

import (
	"github.com/raoulh/moolticuted/internal/drivererr"
	"github.com/raoulh/moolticuted/internal/job"
	"github.com/raoulh/moolticuted/internal/mmm"
	"github.com/raoulh/moolticuted/internal/node"
)

// Progress mirrors spec.md §6's `{total, current, msg, msg_args}`
// progress callback shape, reported while a scan is under way.
type Progress struct {
	Total   int
	Current int
	Msg     string
}

// StartMMM opens a management-mode session (spec.md §6's start_mmm),
// scanning the full flash and integrity-checking it before handing the
// caller a ready session. progress is invoked once at the end of the
// scan's single round trip (the transport gives this daemon no
// finer-grained progress signal than "the scan finished"); cb receives
// the integrity mmm.Report on success.
func (d *Driver) StartMMM(reqID string, wantData bool, progress func(Progress), cb func(mmm.Report, error)) {
	if d.mmm.InSession() {
		cb(mmm.Report{}, drivererr.New(drivererr.InvariantViolation, "management mode already open"))
		return
	}
	j := d.mmm.EnterMMM(reqID, wantData)
	j.OnSuccess = func(st job.State) {
		if progress != nil {
			progress(Progress{Total: 1, Current: 1, Msg: "scan complete"})
		}
		report := d.mmm.OnScanSuccess(st)
		cb(report, nil)
	}
	j.OnFailure = func(err *drivererr.Error) { cb(mmm.Report{}, err) }
	d.jobs.Enqueue(j)
}

// ExitMMM closes the current session (spec.md §6's exit_mmm(commit?)),
// either writing back every edit or discarding the clone untouched.
func (d *Driver) ExitMMM(reqID string, commit bool, cb func(error)) {
	j, err := d.mmm.LeaveMMM(reqID, commit)
	if err != nil {
		cb(err)
		return
	}
	j.OnSuccess = func(job.State) {
		if commit {
			d.mmm.OnCommitSuccess()
		} else {
			d.mmm.DiscardSession()
		}
		cb(nil)
	}
	j.OnFailure = func(err *drivererr.Error) {
		d.mmm.DiscardSession()
		cb(err)
	}
	d.jobs.Enqueue(j)
}

// IntegrityCheck (spec.md §6's integrity_check) forces a scan first if
// the graph isn't already warm, leaving management mode afterward without
// committing (a read-only visit). totalBlocks is the number of nodes in
// the authoritative graph; freeBlocks is always 0, as the device's free
// flash block count is not queried.
func (d *Driver) IntegrityCheck(reqID string, cb func(freeBlocks, totalBlocks int, err error)) {
	d.ensureGraph(reqID, func(err error) {
		if err != nil {
			cb(0, 0, err)
			return
		}
		g := d.mmm.Authoritative()
		total := len(g.AllNodes())
		free := 0 // the flash's total addressable node count isn't tracked client-side; only occupancy is.
		cb(free, total, nil)
	})
}

// ServiceExists answers a read-only query against the authoritative
// graph (spec.md §6 supplement), forcing a scan first if it isn't warm
// yet.
func (d *Driver) ServiceExists(reqID, service string, kind node.Kind, cb func(bool, error)) {
	d.ensureGraph(reqID, func(err error) {
		if err != nil {
			cb(false, err)
			return
		}
		_, ok := d.mmm.Authoritative().FindByService(kind, service)
		cb(ok, nil)
	})
}

// ensureGraph makes sure the authoritative graph has been scanned at
// least once, opening and immediately leaving (without commit) a
// throwaway management-mode visit, which scans both the credential and
// the data chains, if not.
func (d *Driver) ensureGraph(reqID string, cb func(error)) {
	if d.mmm.Authoritative() != nil {
		cb(nil)
		return
	}
	d.StartMMM(reqID, true, nil, func(_ mmm.Report, err error) {
		if err != nil {
			cb(err)
			return
		}
		d.ExitMMM(reqID, false, cb)
	})
}

// editAndLeave opens MMM, runs edit against the ready Session, then
// leaves committing the result — the two-job composition SPEC_FULL.md
// §4.6 describes for delCredentialAndLeave/deleteDataNodesAndLeave and
// reused here for every single-edit driver operation (set/delete
// credential, set/delete data).
func (d *Driver) editAndLeave(reqID string, edit func(*mmm.Session) error, cb func(error)) {
	d.StartMMM(reqID, true, nil, func(_ mmm.Report, err error) {
		if err != nil {
			cb(err)
			return
		}
		if err := edit(d.mmm.Session()); err != nil {
			d.ExitMMM(reqID, false, func(error) { cb(err) })
			return
		}
		d.ExitMMM(reqID, true, cb)
	})
}
