package mmm

import (
	"bytes"

	"github.com/raoulh/moolticuted/internal/node"
	"github.com/raoulh/moolticuted/internal/protocol"
)

// NodeWrite is one pending device write: the real address and the exact
// bytes to write there.
type NodeWrite struct {
	Address node.Address
	Kind    node.Kind
	Raw     []byte
}

// Plan is the write-back plan spec.md §4.6 phase 7 produces: every node
// whose bytes differ from the authoritative pre-image (or that has none)
// gets written; every authoritative node no longer present in the clone
// gets unlinked; favorites/start-nodes/CTR/CPZ-CTR are re-uploaded wholesale
// only if they changed.
type Plan struct {
	WriteNodes        []NodeWrite
	DeleteNodes       []node.Address
	FavoritesChanged  bool
	StartNodesChanged bool
	CTRChanged        bool
	CPZCTRChanged     bool
}

// IsEmpty reports whether committing this plan would be a no-op — the
// "idempotent MMM no-op" property of spec.md §8: enter MMM, make no edits,
// leave with commit ⇒ no write-node commands issued, change numbers
// unchanged.
func (p Plan) IsEmpty() bool {
	return len(p.WriteNodes) == 0 && len(p.DeleteNodes) == 0 &&
		!p.FavoritesChanged && !p.StartNodesChanged && !p.CTRChanged && !p.CPZCTRChanged
}

// Diff compares sess's clone against authoritative, producing the
// write-back Plan. Must run after AllocateAddresses: every clone node is
// expected to carry a real Address by this point.
func Diff(authoritative *node.Graph, sess *Session, proto protocol.Protocol) (Plan, error) {
	var plan Plan
	clone := sess.clone

	seen := make(map[node.Address]bool, len(clone.AllNodes()))
	for _, n := range clone.AllNodes() {
		if n.IsVirtual {
			return plan, &stillVirtualError{addr: n.VirtualAddress}
		}
		raw, err := node.EncodeNode(n, proto)
		if err != nil {
			return plan, err
		}
		seen[n.Address] = true

		if orig, ok := authoritative.FindByAddress(n.Address); ok && bytes.Equal(orig.Raw, raw) {
			continue
		}
		plan.WriteNodes = append(plan.WriteNodes, NodeWrite{Address: n.Address, Kind: n.Kind, Raw: raw})
	}

	for _, n := range authoritative.AllNodes() {
		if !seen[n.Address] {
			plan.DeleteNodes = append(plan.DeleteNodes, n.Address)
		}
	}

	plan.FavoritesChanged = !favoritesEqual(authoritative.Favorites, clone.Favorites)
	plan.StartNodesChanged = authoritative.CredHead != clone.CredHead || authoritative.DataHead != clone.DataHead
	plan.CTRChanged = authoritative.CTR != clone.CTR
	plan.CPZCTRChanged = !cpzEqual(authoritative.CPZCTRs, clone.CPZCTRs)

	return plan, nil
}

type stillVirtualError struct{ addr uint64 }

func (e *stillVirtualError) Error() string {
	return "mmm: diff run before address allocation completed (node still virtual)"
}

// EnforceMonotonicCTR applies the tie-break policy of spec.md §4.6: "if CTR
// on the clone is numerically less than authoritative, keep authoritative
// (monotonic)". Run before Diff so a stale clone CTR never regresses the
// device's counter.
func EnforceMonotonicCTR(authoritative, clone *node.Graph) {
	if ctrValue(clone.CTR) < ctrValue(authoritative.CTR) {
		clone.CTR = authoritative.CTR
	}
}

func ctrValue(ctr [3]byte) uint32 {
	return uint32(ctr[0]) | uint32(ctr[1])<<8 | uint32(ctr[2])<<16
}

func favoritesEqual(a, b []node.Favorite) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cpzEqual(a, b []node.CPZCTR) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
