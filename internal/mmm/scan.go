package mmm

import (
	"encoding/binary"

	"github.com/raoulh/moolticuted/internal/job"
	"github.com/raoulh/moolticuted/internal/node"
	"github.com/raoulh/moolticuted/internal/protocol"
)

// State keys shared between the scan steps below and AssembleGraph, which
// the engine calls from the scan job's OnSuccess once every step has run.
const (
	stCredChangeAtEntry = "mmm_cred_change_at_entry"
	stDataChangeAtEntry = "mmm_data_change_at_entry"
	stCredHead          = "mmm_cred_head"
	stDataHead          = "mmm_data_head"
	stCTR               = "mmm_ctr"
	stCPZList           = "mmm_cpz_list"
	stFavorites         = "mmm_favorites"
	stCredQueue         = "mmm_cred_parent_queue"
	stDataQueue         = "mmm_data_parent_queue"
	stCredParents       = "mmm_cred_parents"
	stDataParents       = "mmm_data_parents"
	stCredChildQueue    = "mmm_cred_child_queue"
	stDataChildQueue    = "mmm_data_child_queue"
	stCredChildren      = "mmm_cred_children"
	stDataChildren      = "mmm_data_children"

	stPendingParentAddr = "mmm_pending_parent_addr"
	stPendingChildAddr  = "mmm_pending_child_addr"
)

// ScanSteps builds phase 1 (enter MMM) and phase 2 (scan) of spec.md §4.6:
// start MMM, snapshot change numbers, read CTR/start-nodes/favorites/
// CPZ-CTR list, then walk the credential parent chain — and, if wantData,
// the data parent chain — reading every parent and child along the way.
// AssembleGraph turns the resulting job.State into a *node.Graph once the
// job succeeds.
func ScanSteps(proto protocol.Protocol, favSlots int, wantData bool) []job.Step {
	steps := []job.Step{
		enterMMMStep(),
		readStartNodesStep(),
		readCTRStep(),
		readCPZCTRListStep(),
		readFavoritesStep(favSlots),
	}
	steps = append(steps, walkParentChainStep(node.CredParent, proto, stCredHead, stCredQueue, stCredParents))
	steps = append(steps, walkChildChainStep(node.CredChild, proto, stCredParents, stCredChildQueue, stCredChildren))
	if wantData {
		steps = append(steps, walkParentChainStep(node.DataParent, proto, stDataHead, stDataQueue, stDataParents))
		steps = append(steps, walkChildChainStep(node.DataChild, proto, stDataParents, stDataChildQueue, stDataChildren))
	}
	return steps
}

// AssembleGraph builds the scanned *node.Graph from a completed scan job's
// State. Pure Go, no device round-trip: the scan steps already gathered
// everything needed.
func AssembleGraph(st job.State, favSlots int, wantData bool) *node.Graph {
	g := node.NewGraph(favSlots)
	if ctr, ok := st[stCTR].([3]byte); ok {
		g.CTR = ctr
	}
	if cpz, ok := st[stCPZList].([]node.CPZCTR); ok {
		g.CPZCTRs = cpz
	}
	if fav, ok := st[stFavorites].([]node.Favorite); ok {
		g.Favorites = fav
	}

	credParents, _ := st[stCredParents].([]*node.Node)
	g.LoadParentChain(node.CredParent, credParents)
	credChildren, _ := st[stCredChildren].([]*node.Node)
	for _, c := range credChildren {
		g.AddNode(c)
	}

	if wantData {
		dataParents, _ := st[stDataParents].([]*node.Node)
		g.LoadParentChain(node.DataParent, dataParents)
		dataChildren, _ := st[stDataChildren].([]*node.Node)
		for _, c := range dataChildren {
			g.AddNode(c)
		}
	}
	return g
}

// ChangeNumbersAtEntry returns the credential/data change numbers the
// device reported when MMM was entered, the snapshot phase 1 takes so the
// engine can tell whether a later write-back actually changed anything.
func ChangeNumbersAtEntry(st job.State) (cred, data uint32) {
	cred, _ = st[stCredChangeAtEntry].(uint32)
	data, _ = st[stDataChangeAtEntry].(uint32)
	return
}

func enterMMMStep() job.Step {
	return job.Step{
		Name: "enter_mmm",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdStartMemoryManagement, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				return job.StopFailure
			}
			st[stCredChangeAtEntry] = msg.CredDBChange
			st[stDataChangeAtEntry] = msg.DataDBChange
			return job.Continue
		},
	}
}

func readStartNodesStep() job.Step {
	return job.Step{
		Name: "read_start_nodes",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdGetStartNodes, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK || len(msg.Payload) < 5 {
				return job.StopFailure
			}
			body := msg.Payload[1:]
			st[stCredHead] = node.Address(binary.LittleEndian.Uint16(body[0:2]))
			st[stDataHead] = node.Address(binary.LittleEndian.Uint16(body[2:4]))
			return job.Continue
		},
	}
}

func readCTRStep() job.Step {
	return job.Step{
		Name: "read_ctr",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdGetCTRValue, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK || len(msg.Payload) < 4 {
				return job.StopFailure
			}
			var ctr [3]byte
			copy(ctr[:], msg.Payload[1:4])
			st[stCTR] = ctr
			return job.Continue
		},
	}
}

// readCPZCTRListStep reads the list of (CPZ, CTR) pairs: response payload
// is [status][count][count*(24+3) bytes].
func readCPZCTRListStep() job.Step {
	return job.Step{
		Name: "read_cpz_ctr_list",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdGetCPZCTRValues, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK || len(msg.Payload) < 2 {
				return job.StopFailure
			}
			body := msg.Payload[1:]
			count := int(body[0])
			body = body[1:]
			const entrySize = 24 + 3
			if len(body) < count*entrySize {
				return job.StopFailure
			}
			list := make([]node.CPZCTR, count)
			for i := 0; i < count; i++ {
				off := i * entrySize
				var entry node.CPZCTR
				copy(entry.CPZ[:], body[off:off+24])
				copy(entry.CTR[:], body[off+24:off+27])
				list[i] = entry
			}
			st[stCPZList] = list
			return job.Continue
		},
	}
}

// readFavoritesStep reads the fixed-length favorites vector: response
// payload is [status][favSlots*4 bytes], each slot (parentAddr, childAddr).
func readFavoritesStep(favSlots int) job.Step {
	return job.Step{
		Name: "read_favorites",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdGetFavorite, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			need := 1 + favSlots*4
			if !ok || msg.Status != protocol.StatusOK || len(msg.Payload) < need {
				return job.StopFailure
			}
			body := msg.Payload[1:]
			favs := make([]node.Favorite, favSlots)
			for i := 0; i < favSlots; i++ {
				off := i * 4
				favs[i] = node.Favorite{
					Parent: node.Address(binary.LittleEndian.Uint16(body[off : off+2])),
					Child:  node.Address(binary.LittleEndian.Uint16(body[off+2 : off+4])),
				}
			}
			st[stFavorites] = favs
			return job.Continue
		},
	}
}

// readNodePayload builds the request payload for CmdReadFlashNode: a kind
// byte (so the device knows which fixed record size to return) followed by
// the little-endian address.
func readNodePayload(kind node.Kind, addr node.Address) []byte {
	buf := make([]byte, 3)
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(addr))
	return buf
}

// walkParentChainStep reads every parent on kind's chain, starting from
// st[headKey], following Next until none, using job.Repeat to loop without
// knowing the chain length ahead of time (per internal/job's doc comment on
// Repeat). An empty chain costs one harmless round trip whose response is
// discarded — Build has no way to skip a step's command entirely.
func walkParentChainStep(kind node.Kind, proto protocol.Protocol, headKey, queueKey, parentsKey string) job.Step {
	return job.Step{
		Name: "walk_" + kind.String() + "_parents",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			queue, _ := st[queueKey].([]node.Address)
			if queue == nil {
				if head, ok := st[headKey].(node.Address); ok && !head.IsNone() {
					queue = []node.Address{head}
				}
			}
			if len(queue) == 0 {
				st[queueKey] = queue
				delete(st, stPendingParentAddr)
				return protocol.CmdPing, nil, nil
			}
			addr := queue[0]
			st[queueKey] = queue[1:]
			st[stPendingParentAddr] = addr
			return protocol.CmdReadFlashNode, readNodePayload(kind, addr), nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			addr, pending := st[stPendingParentAddr].(node.Address)
			if !pending {
				return job.Continue
			}
			delete(st, stPendingParentAddr)
			if !ok || msg.Status != protocol.StatusOK || len(msg.Payload) < 1 {
				return job.StopFailure
			}
			parent, err := node.DecodeNode(kind, addr, msg.Payload[1:], proto)
			if err != nil {
				return job.StopFailure
			}
			parents, _ := st[parentsKey].([]*node.Node)
			st[parentsKey] = append(parents, parent)
			if !parent.Next.IsNone() {
				queue, _ := st[queueKey].([]node.Address)
				st[queueKey] = append(queue, parent.Next)
			}
			if queue, _ := st[queueKey].([]node.Address); len(queue) > 0 {
				return job.Repeat
			}
			return job.Continue
		},
	}
}

// childKindFor maps a parent kind to the child kind living under it.
func childKindFor(parentKind node.Kind) node.Kind {
	if parentKind == node.DataParent {
		return node.DataChild
	}
	return node.CredChild
}

// walkChildChainStep reads every child under every parent collected by a
// prior walkParentChainStep, seeding its queue from each parent's
// FirstChild and following Next per child, same Repeat pattern.
func walkChildChainStep(childKind node.Kind, proto protocol.Protocol, parentsKey, queueKey, childrenKey string) job.Step {
	return job.Step{
		Name: "walk_" + childKind.String(),
		Build: func(st job.State) (protocol.Command, []byte, error) {
			queue, seeded := st[queueKey].([]node.Address)
			if !seeded {
				parents, _ := st[parentsKey].([]*node.Node)
				for _, p := range parents {
					if !p.FirstChild.IsNone() {
						queue = append(queue, p.FirstChild)
					}
				}
				st[queueKey] = queue
			}
			if len(queue) == 0 {
				delete(st, stPendingChildAddr)
				return protocol.CmdPing, nil, nil
			}
			addr := queue[0]
			st[queueKey] = queue[1:]
			st[stPendingChildAddr] = addr
			return protocol.CmdReadFlashNode, readNodePayload(childKind, addr), nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			addr, pending := st[stPendingChildAddr].(node.Address)
			if !pending {
				return job.Continue
			}
			delete(st, stPendingChildAddr)
			if !ok || msg.Status != protocol.StatusOK || len(msg.Payload) < 1 {
				return job.StopFailure
			}
			child, err := node.DecodeNode(childKind, addr, msg.Payload[1:], proto)
			if err != nil {
				return job.StopFailure
			}
			children, _ := st[childrenKey].([]*node.Node)
			st[childrenKey] = append(children, child)
			if !child.Next.IsNone() {
				queue, _ := st[queueKey].([]node.Address)
				st[queueKey] = append(queue, child.Next)
			}
			if queue, _ := st[queueKey].([]node.Address); len(queue) > 0 {
				return job.Repeat
			}
			return job.Continue
		},
	}
}
