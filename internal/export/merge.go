package export

import (
	"fmt"

	"github.com/raoulh/moolticuted/internal/mmm"
	"github.com/raoulh/moolticuted/internal/node"
)

// MergeCredentials folds an imported credential graph into sess's clone
// (spec.md §4.7's import rules): for each (service, login) pair present in
// incoming, prefer incoming's child if its DateUsed is newer than the
// clone's matching child, otherwise leave the clone's alone. A login that
// only exists in incoming is added outright. A login that collides under
// the same service with a different password keeps both, the incoming
// one's login suffixed "(imported)" to disambiguate — neither entry is
// ever silently dropped.
func MergeCredentials(sess *mmm.Session, incoming *node.Graph) error {
	for _, p := range incoming.ParentsOf(node.CredParent) {
		for _, c := range incoming.ChildrenOf(p) {
			if err := mergeOneCredential(sess, p.ServiceName, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func mergeOneCredential(sess *mmm.Session, service string, incoming *node.Node) error {
	existing, ok := sess.Clone().FindByService(node.CredParent, service)
	if !ok {
		_, _, err := sess.AddCredential(service, incoming.Login, string(incoming.EncryptedPassword), incoming.Description, incoming.DateCreated, incoming.DateUsed)
		return err
	}

	match, ok := sess.Clone().FindChildByLoginUnder(existing, incoming.Login)
	if !ok {
		_, _, err := sess.AddCredential(service, incoming.Login, string(incoming.EncryptedPassword), incoming.Description, incoming.DateCreated, incoming.DateUsed)
		return err
	}

	if samePassword(match.EncryptedPassword, incoming.EncryptedPassword) {
		if incoming.DateUsed > match.DateUsed {
			match.EncryptedPassword = append([]byte(nil), incoming.EncryptedPassword...)
			match.Description = incoming.Description
			match.DateUsed = incoming.DateUsed
		}
		return nil
	}

	// Same service+login, different password: keep both under a
	// disambiguated login rather than choosing a winner.
	_, _, err := sess.AddCredential(service, incoming.Login+" (imported)", string(incoming.EncryptedPassword), incoming.Description, incoming.DateCreated, incoming.DateUsed)
	return err
}

func samePassword(a, b []byte) bool {
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

// MergeData folds an imported data-node graph into sess's clone: each
// incoming service's blob replaces the clone's matching one outright
// (data nodes have no per-record timestamp to arbitrate on, spec.md §4.7).
func MergeData(sess *mmm.Session, incoming *node.Graph) error {
	for _, p := range incoming.ParentsOf(node.DataParent) {
		blob, err := reassembleDataBlob(incoming, p)
		if err != nil {
			return err
		}
		if err := sess.SetDataNode(p.ServiceName, blob, node.DataChildPayloadSize); err != nil {
			return err
		}
	}
	return nil
}

func reassembleDataBlob(g *node.Graph, parent *node.Node) ([]byte, error) {
	var out []byte
	seen := map[node.Address]bool{}
	for _, c := range g.ChildrenOf(parent) {
		if seen[c.Address] {
			return nil, fmt.Errorf("export: data chain for %q loops at %v", parent.ServiceName, c.Address)
		}
		seen[c.Address] = true
		out = append(out, c.Payload...)
	}
	return out, nil
}
