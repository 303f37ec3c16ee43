package moolticuted

import (
	"encoding/binary"
	"fmt"

	"github.com/raoulh/moolticuted/internal/job"
	"github.com/raoulh/moolticuted/internal/mmm"
	"github.com/raoulh/moolticuted/internal/node"
	"github.com/raoulh/moolticuted/internal/protocol"
)

// contextAndPasswordSteps builds the two-step, non-MMM round trip that asks
// the inserted smart card to decrypt one specific credential: set the
// active context to (parent, child), then read back the plaintext
// password. CmdSetContext's payload here — parent address followed by
// child address, both little-endian — is an implementation choice filling
// a gap the distilled protocol left unspecified; see DESIGN.md.
func contextAndPasswordSteps(parent, child node.Address) []job.Step {
	return []job.Step{
		{
			Name: "set_context",
			Build: func(st job.State) (protocol.Command, []byte, error) {
				payload := make([]byte, 4)
				binary.LittleEndian.PutUint16(payload[0:2], uint16(parent))
				binary.LittleEndian.PutUint16(payload[2:4], uint16(child))
				return protocol.CmdSetContext, payload, nil
			},
			Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
				if !ok || msg.Status != protocol.StatusOK {
					return job.StopFailure
				}
				return job.Continue
			},
		},
		{
			Name: "get_password",
			Build: func(st job.State) (protocol.Command, []byte, error) {
				return protocol.CmdGetPassword, nil, nil
			},
			Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
				if !ok || msg.Status != protocol.StatusOK {
					return job.StopFailure
				}
				st["password"] = string(msg.Payload[1:])
				return job.StopSuccess
			},
		},
	}
}

// GetCredential looks up login's password and description under service
// (spec.md §6's get_credential), warming the authoritative graph with a
// scan if it hasn't been visited yet, then asking the card to decrypt the
// stored password over an active-context round trip distinct from MMM
// editing. If service isn't found and fallbackService is non-empty, it is
// tried next — mirroring the original client's behavior of falling back
// from a full URL to its registrable domain.
func (d *Driver) GetCredential(reqID, service, login, fallbackService string, cb func(gotService, login, password, description string, err error)) {
	d.ensureGraph(reqID, func(err error) {
		if err != nil {
			cb("", "", "", "", err)
			return
		}
		g := d.mmm.Authoritative()
		parent, ok := g.FindByService(node.CredParent, service)
		resolvedService := service
		if !ok && fallbackService != "" {
			parent, ok = g.FindByService(node.CredParent, fallbackService)
			resolvedService = fallbackService
		}
		if !ok {
			cb("", "", "", "", fmt.Errorf("moolticuted: no such service %q", service))
			return
		}
		child, ok := g.FindChildByLoginUnder(parent, login)
		if !ok {
			cb("", "", "", "", fmt.Errorf("moolticuted: no such login %q under service %q", login, resolvedService))
			return
		}
		d.run(reqID, contextAndPasswordSteps(parent.Address, child.Address),
			func(st job.State) {
				password, _ := st["password"].(string)
				cb(resolvedService, login, password, child.Description, nil)
			},
			func(err error) { cb("", "", "", "", err) },
		)
	})
}

// SetCredential creates or updates login under service (spec.md §6's
// set_credential), touching only the description when descChanged is set
// — an upsert driven through a single open/edit/commit/leave MMM visit.
func (d *Driver) SetCredential(reqID, service, login, encryptedPassword, description string, descChanged bool, cb func(error)) {
	d.editAndLeave(reqID, func(sess *mmm.Session) error {
		_, _, err := sess.UpdateCredential(service, login, encryptedPassword, description, descChanged, 0)
		return err
	}, cb)
}

// DeleteCredentials removes login under service (spec.md §6's
// delete_credentials), reaping the parent too if it was the last login —
// SPEC_FULL.md §4.6's delCredentialAndLeave composition.
func (d *Driver) DeleteCredentials(reqID, service, login string, cb func(error)) {
	d.editAndLeave(reqID, func(sess *mmm.Session) error {
		return sess.DeleteCredential(service, login)
	}, cb)
}
