package moolticuted

import (
	"github.com/raoulh/moolticuted/internal/job"
	"github.com/raoulh/moolticuted/internal/protocol"
)

// Lock tells the device to lock immediately (spec.md §6's lock()).
func (d *Driver) Lock(reqID string, cb func(error)) {
	d.run(reqID, []job.Step{{
		Name: "lock_device",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdLockDevice, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			return job.StopSuccess
		},
	}}, func(job.State) { cb(nil) }, cb)
}

// ResetCard asks the inserted smart card to be wiped and reinitialized
// (spec.md §6's reset_card(), SPEC_FULL.md §6's resetSmartCard — the same
// firmware operation under the distilled spec's client-facing name and the
// original daemon's internal one).
func (d *Driver) ResetCard(reqID string, cb func(error)) {
	d.run(reqID, []job.Step{{
		Name: "reset_card",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdResetCard, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			return job.StopSuccess
		},
	}}, func(job.State) { cb(nil) }, cb)
}

// GetRandom asks the device's hardware RNG for n bytes (spec.md §6's
// get_random(n)).
func (d *Driver) GetRandom(reqID string, n int, cb func(bytes []byte, err error)) {
	d.run(reqID, []job.Step{{
		Name: "get_random_numbers",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			payload := make([]byte, 1)
			payload[0] = byte(n)
			return protocol.CmdGetRandomNumbers, payload, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			st["random"] = append([]byte(nil), msg.Payload[1:]...)
			return job.StopSuccess
		},
	}},
		func(st job.State) {
			bytes, _ := st["random"].([]byte)
			cb(bytes, nil)
		},
		func(err error) { cb(nil, err) },
	)
}

// GetAvailableUsers lists the user slots the device knows about, one name
// per entry — SPEC_FULL.md §6's supplement for the original daemon's
// multi-user enumeration, decoded from the device's single-frame
// length-prefixed name list.
func (d *Driver) GetAvailableUsers(reqID string, cb func(users []string, err error)) {
	d.run(reqID, []job.Step{{
		Name: "get_available_users",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdGetAvailableUsers, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			st["users"] = decodeUserList(msg.Payload[1:])
			return job.StopSuccess
		},
	}},
		func(st job.State) {
			users, _ := st["users"].([]string)
			cb(users, nil)
		},
		func(err error) { cb(nil, err) },
	)
}

// decodeUserList splits a sequence of 1-byte-length-prefixed names, the
// same framing filecache.encodeName uses for a device-bound string list.
func decodeUserList(body []byte) []string {
	var users []string
	for len(body) > 0 {
		n := int(body[0])
		body = body[1:]
		if n > len(body) {
			break
		}
		users = append(users, string(body[:n]))
		body = body[n:]
	}
	return users
}

// GetCurrentCardCPZ reads the CPZ (card protection zone identifier) of the
// smart card presently inserted — SPEC_FULL.md §6's supplement backing the
// add-unknown-card enrollment flow, where the caller compares this value
// against the known CPZ/CTR list before deciding to call AddUnknownCard.
func (d *Driver) GetCurrentCardCPZ(reqID string, cb func(cpz []byte, err error)) {
	d.run(reqID, []job.Step{{
		Name: "get_current_card_cpz",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdGetCurrentCardCPZ, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			st["cpz"] = append([]byte(nil), msg.Payload[1:]...)
			return job.StopSuccess
		},
	}},
		func(st job.State) {
			cpz, _ := st["cpz"].([]byte)
			cb(cpz, nil)
		},
		func(err error) { cb(nil, err) },
	)
}

// AddUnknownCard enrolls a freshly inserted, not-yet-paired smart card by
// uploading a fresh CTR value for it (spec.md §4.6's CPZ/CTR list, the
// device-level counterpart to GetCurrentCardCPZ's read side).
func (d *Driver) AddUnknownCard(reqID string, cpz []byte, ctr [3]byte, cb func(error)) {
	d.run(reqID, []job.Step{{
		Name: "add_unknown_card",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			payload := make([]byte, len(cpz)+3)
			copy(payload, cpz)
			copy(payload[len(cpz):], ctr[:])
			return protocol.CmdAddUnknownCard, payload, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			return job.StopSuccess
		},
	}}, func(job.State) { cb(nil) }, cb)
}
