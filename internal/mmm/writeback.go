package mmm

import (
	"encoding/binary"

	"github.com/raoulh/moolticuted/internal/job"
	"github.com/raoulh/moolticuted/internal/node"
	"github.com/raoulh/moolticuted/internal/protocol"
)

// requestFreeAddressesStep asks the device for count fresh addresses
// (spec.md §4.6 phase 6), requesting zero being a harmless round trip when
// the session allocated no new nodes.
func requestFreeAddressesStep(count int) job.Step {
	return job.Step{
		Name: "request_free_addresses",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			payload := make([]byte, 2)
			binary.LittleEndian.PutUint16(payload, uint16(count))
			return protocol.CmdGetFreeAddresses, payload, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			body := msg.Payload[1:]
			if len(body) < count*2 {
				return job.StopFailure
			}
			addrs := make([]node.Address, count)
			for i := 0; i < count; i++ {
				addrs[i] = node.Address(binary.LittleEndian.Uint16(body[i*2 : i*2+2]))
			}
			st[stWBFreeAddrs] = addrs
			return job.Continue
		},
	}
}

// prepareWriteBackStep allocates the addresses the device just handed out
// onto sess's still-virtual nodes, then diffs the patched clone against
// e's authoritative graph to produce the write-back Plan (phase 6-7). It
// rides on a harmless ping round trip: the work itself is local.
func prepareWriteBackStep(e *Engine, sess *Session) job.Step {
	return job.Step{
		Name: "prepare_writeback",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdPing, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			free, _ := st[stWBFreeAddrs].([]node.Address)
			if err := AllocateAddresses(sess, free); err != nil {
				return job.StopFailure
			}
			plan, err := Diff(e.authoritative, sess, e.proto)
			if err != nil {
				return job.StopFailure
			}
			st[stWBPlan] = plan
			st[stWBWrites] = append([]NodeWrite(nil), plan.WriteNodes...)
			st[stWBDeletes] = append([]node.Address(nil), plan.DeleteNodes...)
			return job.Continue
		},
	}
}

// writeNodePayload lays out a CmdMMMWriteFlashNode request: kind byte,
// little-endian address, then the node's exact raw bytes.
func writeNodePayload(w NodeWrite) []byte {
	buf := make([]byte, 3+len(w.Raw))
	buf[0] = byte(w.Kind)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(w.Address))
	copy(buf[3:], w.Raw)
	return buf
}

// writeNodesStep uploads every NodeWrite the diff produced, looping with
// job.Repeat since the count isn't known until prepareWriteBackStep runs.
// If the plan had no writes, Build finds an empty queue immediately and
// sends no CmdMMMWriteFlashNode at all.
func writeNodesStep() job.Step {
	const pendingKey = "wb_pending_write"
	return job.Step{
		Name: "write_nodes",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			queue, _ := st[stWBWrites].([]NodeWrite)
			if len(queue) == 0 {
				delete(st, pendingKey)
				return protocol.CmdPing, nil, nil
			}
			w := queue[0]
			st[stWBWrites] = queue[1:]
			st[pendingKey] = w
			return protocol.CmdMMMWriteFlashNode, writeNodePayload(w), nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			_, pending := st[pendingKey].(NodeWrite)
			if !pending {
				return job.Continue
			}
			delete(st, pendingKey)
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			if queue, _ := st[stWBWrites].([]NodeWrite); len(queue) > 0 {
				return job.Repeat
			}
			return job.Continue
		},
	}
}

// deleteNodesStep unlinks every address the diff found orphaned on the
// device, same Repeat-until-empty pattern as writeNodesStep.
func deleteNodesStep() job.Step {
	const pendingKey = "wb_pending_delete"
	return job.Step{
		Name: "delete_nodes",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			queue, _ := st[stWBDeletes].([]node.Address)
			if len(queue) == 0 {
				delete(st, pendingKey)
				return protocol.CmdPing, nil, nil
			}
			addr := queue[0]
			st[stWBDeletes] = queue[1:]
			st[pendingKey] = addr
			payload := make([]byte, 2)
			binary.LittleEndian.PutUint16(payload, uint16(addr))
			return protocol.CmdDeleteFlashNode, payload, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			_, pending := st[pendingKey].(node.Address)
			if !pending {
				return job.Continue
			}
			delete(st, pendingKey)
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			if queue, _ := st[stWBDeletes].([]node.Address); len(queue) > 0 {
				return job.Repeat
			}
			return job.Continue
		},
	}
}

func encodeFavorites(favs []node.Favorite) []byte {
	buf := make([]byte, len(favs)*4)
	for i, f := range favs {
		binary.LittleEndian.PutUint16(buf[i*4:i*4+2], uint16(f.Parent))
		binary.LittleEndian.PutUint16(buf[i*4+2:i*4+4], uint16(f.Child))
	}
	return buf
}

// writeFavoritesStep re-uploads the favorites vector wholesale, only if the
// diff found it changed (spec.md §4.6 phase 7).
func writeFavoritesStep(sess *Session) job.Step {
	return job.Step{
		Name: "write_favorites",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			plan, _ := st[stWBPlan].(Plan)
			if !plan.FavoritesChanged {
				return protocol.CmdPing, nil, nil
			}
			return protocol.CmdSetFavorite, encodeFavorites(sess.clone.Favorites), nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			plan, _ := st[stWBPlan].(Plan)
			if !plan.FavoritesChanged {
				return job.Continue
			}
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			return job.Continue
		},
	}
}

// writeStartNodesStep re-uploads the credential/data chain heads, only if
// the diff found either changed.
func writeStartNodesStep(sess *Session) job.Step {
	return job.Step{
		Name: "write_start_nodes",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			plan, _ := st[stWBPlan].(Plan)
			if !plan.StartNodesChanged {
				return protocol.CmdPing, nil, nil
			}
			payload := make([]byte, 4)
			binary.LittleEndian.PutUint16(payload[0:2], uint16(sess.clone.CredHead))
			binary.LittleEndian.PutUint16(payload[2:4], uint16(sess.clone.DataHead))
			return protocol.CmdSetStartNodes, payload, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			plan, _ := st[stWBPlan].(Plan)
			if !plan.StartNodesChanged {
				return job.Continue
			}
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			return job.Continue
		},
	}
}

// writeCTRAndCPZStep re-uploads CTR and the CPZ/CTR list together, only if
// the diff found either changed (both live in the same small flash region
// on real firmware).
func writeCTRAndCPZStep(sess *Session) job.Step {
	return job.Step{
		Name: "write_ctr_and_cpz",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			plan, _ := st[stWBPlan].(Plan)
			if !plan.CTRChanged && !plan.CPZCTRChanged {
				return protocol.CmdPing, nil, nil
			}
			payload := make([]byte, 3+1+len(sess.clone.CPZCTRs)*(24+3))
			copy(payload[0:3], sess.clone.CTR[:])
			payload[3] = byte(len(sess.clone.CPZCTRs))
			for i, c := range sess.clone.CPZCTRs {
				off := 4 + i*(24+3)
				copy(payload[off:off+24], c.CPZ[:])
				copy(payload[off+24:off+27], c.CTR[:])
			}
			return protocol.CmdSetCTRAndCPZCTRValues, payload, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			plan, _ := st[stWBPlan].(Plan)
			if !plan.CTRChanged && !plan.CPZCTRChanged {
				return job.Continue
			}
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			return job.Continue
		},
	}
}

// bumpChangeNumbersStep sends the "update change numbers" command with a
// flag byte (bit0=credentials, bit1=data), only for the databases the
// session actually edited (spec.md §4.6 phase 8).
func bumpChangeNumbersStep(sess *Session) job.Step {
	return job.Step{
		Name: "bump_change_numbers",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			if !sess.CredentialsChanged() && !sess.DataChanged() {
				return protocol.CmdPing, nil, nil
			}
			var flag byte
			if sess.CredentialsChanged() {
				flag |= 1 << 0
			}
			if sess.DataChanged() {
				flag |= 1 << 1
			}
			return protocol.CmdUpdateChangeNumbers, []byte{flag}, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !sess.CredentialsChanged() && !sess.DataChanged() {
				return job.Continue
			}
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			return job.Continue
		},
	}
}

// endMMMStep leaves management mode (phase 9's device side; the in-memory
// commit/discard is the caller's job via OnCommitSuccess/DiscardSession).
func endMMMStep() job.Step {
	return job.Step{
		Name: "end_mmm",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdEndMemoryManagement, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			return job.StopSuccess
		},
	}
}
