package moolticuted

import (
	"fmt"

	"github.com/raoulh/moolticuted/internal/mmm"
	"github.com/raoulh/moolticuted/internal/node"
)

// GetDataNode reassembles the data blob stored under service (spec.md §6's
// get_data_node), warming the authoritative graph with a scan first if
// needed. Unlike credential passwords, data payloads are not re-encrypted
// by the smart card, so this is a pure graph read with no active-context
// round trip.
func (d *Driver) GetDataNode(reqID, service string, cb func(data []byte, err error)) {
	d.ensureGraph(reqID, func(err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		g := d.mmm.Authoritative()
		parent, ok := g.FindByService(node.DataParent, service)
		if !ok {
			cb(nil, fmt.Errorf("moolticuted: no such data node %q", service))
			return
		}
		var blob []byte
		for _, c := range g.ChildrenOf(parent) {
			blob = append(blob, c.Payload...)
		}
		cb(blob, nil)
	})
}

// SetDataNode replaces (or creates) the data blob stored under service
// (spec.md §6's set_data_node), chunked into DataChildPayloadSize-byte
// nodes by a single open/edit/commit/leave MMM visit.
func (d *Driver) SetDataNode(reqID, service string, data []byte, cb func(error)) {
	d.editAndLeave(reqID, func(sess *mmm.Session) error {
		return sess.SetDataNode(service, data, node.DataChildPayloadSize)
	}, cb)
}

// DeleteData removes the data node stored under service (spec.md §6's
// delete_data) — SPEC_FULL.md §4.6's deleteDataNodesAndLeave composition.
func (d *Driver) DeleteData(reqID, service string, cb func(error)) {
	d.editAndLeave(reqID, func(sess *mmm.Session) error {
		return sess.DeleteDataNode(service)
	}, cb)
}
