package mmm

import (
	"fmt"

	"github.com/raoulh/moolticuted/internal/node"
)

// Session wraps the editable clone of spec.md §4.6 phase 4: all edits
// (phase 5) mutate only the clone, creating new nodes with virtual
// addresses as needed. The authoritative Graph is untouched until
// Engine.OnCommitSuccess replaces it after a successful write-back.
type Session struct {
	clone *node.Graph
	credDBChanged bool
	dataDBChanged bool
}

// NewSession deep-copies authoritative into an editable clone.
func NewSession(authoritative *node.Graph) *Session {
	return &Session{clone: authoritative.Clone()}
}

// Clone exposes the editable graph for read access (diffing, export).
func (s *Session) Clone() *node.Graph { return s.clone }

// CredentialsChanged reports whether any edit in this session touched the
// credential graph, for the change-number bump in phase 8.
func (s *Session) CredentialsChanged() bool { return s.credDBChanged }

// DataChanged reports the same for the data graph.
func (s *Session) DataChanged() bool { return s.dataDBChanged }

// AddCredential creates (or adds a login under an existing) service
// parent, allocating virtual addresses for any new nodes. A login that
// already exists under the service is rejected with an error; spec.md
// §4.6's keep-both tie-break for duplicate logins is applied only by
// import merging (internal/export).
func (s *Session) AddCredential(service, login, encryptedPassword, description string, dateCreated, dateUsed uint16) (*node.Node, *node.Node, error) {
	parent, ok := s.clone.FindByService(node.CredParent, service)
	if !ok {
		virtual, addr := s.clone.AllocateVirtualNode()
		parent = &node.Node{
			Kind:           node.CredParent,
			IsVirtual:      true,
			VirtualAddress: virtual,
			Address:        addr,
			ServiceName:    service,
		}
		s.clone.InsertParentSorted(parent)
	} else if _, exists := s.clone.FindChildByLoginUnder(parent, login); exists {
		return nil, nil, fmt.Errorf("mmm: login %q already exists under service %q", login, service)
	}

	virtual, addr := s.clone.AllocateVirtualNode()
	child := &node.Node{
		Kind:              node.CredChild,
		IsVirtual:         true,
		VirtualAddress:    virtual,
		Address:           addr,
		Login:             login,
		Description:       description,
		EncryptedPassword: []byte(encryptedPassword),
		DateCreated:       dateCreated,
		DateUsed:          dateUsed,
	}
	s.clone.AddNode(child)
	child.Next = parent.FirstChild
	if first, ok := s.clone.FindByAddress(parent.FirstChild); ok {
		first.Prev = child.Address
	}
	parent.FirstChild = child.Address
	s.credDBChanged = true
	return parent, child, nil
}

// UpdateCredential sets the password (and, if descChanged, the
// description) on an existing login under service, creating it if it
// doesn't exist yet — spec.md §6's set_credential is an upsert, gated by
// the same set_desc_flag the client surface names.
func (s *Session) UpdateCredential(service, login, encryptedPassword, description string, descChanged bool, dateUsed uint16) (*node.Node, *node.Node, error) {
	if parent, ok := s.clone.FindByService(node.CredParent, service); ok {
		if child, ok := s.clone.FindChildByLoginUnder(parent, login); ok {
			child.EncryptedPassword = []byte(encryptedPassword)
			if descChanged {
				child.Description = description
			}
			child.DateUsed = dateUsed
			s.credDBChanged = true
			return parent, child, nil
		}
	}
	return s.AddCredential(service, login, encryptedPassword, description, dateUsed, dateUsed)
}

// DeleteCredential removes login under service, reaping the parent too if
// it has no remaining children. Matches MPDevice.h's
// delCredentialAndLeave intent (see SPEC_FULL.md §4.6 supplement).
func (s *Session) DeleteCredential(service, login string) error {
	parent, ok := s.clone.FindByService(node.CredParent, service)
	if !ok {
		return fmt.Errorf("mmm: no such service %q", service)
	}
	child, ok := s.clone.FindChildByLoginUnder(parent, login)
	if !ok {
		return fmt.Errorf("mmm: no such login %q under service %q", login, service)
	}

	for i, f := range s.clone.Favorites {
		if f.Parent == parent.Address && f.Child == child.Address {
			s.clone.Favorites[i] = node.Favorite{}
		}
	}

	s.clone.UnlinkChild(parent, child)
	if parent.FirstChild.IsNone() {
		s.clone.UnlinkParent(parent)
	}
	s.credDBChanged = true
	return nil
}

// SetDataNode replaces (or creates) the data blob stored under service,
// chunked into DataChild nodes of at most chunkSize payload bytes each.
func (s *Session) SetDataNode(service string, data []byte, chunkSize int) error {
	if parent, ok := s.clone.FindByService(node.DataParent, service); ok {
		for _, c := range s.clone.ChildrenOf(parent) {
			s.clone.UnlinkChild(parent, c)
		}
		s.clone.UnlinkParent(parent)
	}

	parentVirtual, parentAddr := s.clone.AllocateVirtualNode()
	parent := &node.Node{
		Kind:           node.DataParent,
		IsVirtual:      true,
		VirtualAddress: parentVirtual,
		Address:        parentAddr,
		ServiceName:    service,
	}
	s.clone.InsertParentSorted(parent)

	var prev *node.Node
	seq := uint16(0)
	for off := 0; off < len(data) || off == 0 && len(data) == 0; off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunkVirtual, chunkAddr := s.clone.AllocateVirtualNode()
		chunk := &node.Node{
			Kind:           node.DataChild,
			IsVirtual:      true,
			VirtualAddress: chunkVirtual,
			Address:        chunkAddr,
			SequenceNumber: seq,
			Payload:        append([]byte(nil), data[off:end]...),
		}
		s.clone.AddNode(chunk)
		if prev == nil {
			parent.FirstChild = chunk.Address
		} else {
			prev.Next = chunk.Address
			chunk.Prev = prev.Address
		}
		prev = chunk
		seq++
		if len(data) == 0 {
			break
		}
	}
	s.dataDBChanged = true
	return nil
}

// DeleteDataNode removes the data node stored under service, unlinking its
// parent and every chunk child. Matches MPDevice.h's
// deleteDataNodesAndLeave intent (see SPEC_FULL.md §4.6 supplement).
func (s *Session) DeleteDataNode(service string) error {
	parent, ok := s.clone.FindByService(node.DataParent, service)
	if !ok {
		return fmt.Errorf("mmm: no such data node %q", service)
	}
	for _, c := range s.clone.ChildrenOf(parent) {
		s.clone.UnlinkChild(parent, c)
	}
	s.clone.UnlinkParent(parent)
	s.dataDBChanged = true
	return nil
}
