package export

import (
	"github.com/raoulh/moolticuted/internal/node"
	"github.com/raoulh/moolticuted/internal/protocol"
)

// Metadata carries the device-reported fields FromGraph stamps onto a
// Payload alongside the node graph itself — nothing a Graph tracks on its
// own.
type Metadata struct {
	DeviceVersion     string
	BundleVersion     uint32
	CredChangeNumber  uint32
	DataChangeNumber  uint32
	SerialNumber      uint32
	IsBLE             bool
	BLEUserCategories []string
	SecuritySettings  uint32
	UserLanguage      string
	BTKeyboardLayout  string
	USBKeyboardLayout string
}

// FromGraph serializes g's full node set into a Payload at the given
// Schema, encoding each node's raw bytes with proto's field widths
// (spec.md §4.7).
func FromGraph(g *node.Graph, proto protocol.Protocol, schema Schema, meta Metadata) (*Payload, error) {
	p := &Payload{
		Version:          schema,
		CTR:              g.CTR,
		CPZCTRList:       append([]node.CPZCTR(nil), g.CPZCTRs...),
		StartCredentials: g.CredHead,
		StartData:        g.DataHead,
		Favorites:        append([]node.Favorite(nil), g.Favorites...),

		DeviceVersion:     meta.DeviceVersion,
		BundleVersion:     meta.BundleVersion,
		CredChangeNumber:  meta.CredChangeNumber,
		DataChangeNumber:  meta.DataChangeNumber,
		SerialNumber:      meta.SerialNumber,
		IsBLE:             meta.IsBLE,
		BLEUserCategories: append([]string(nil), meta.BLEUserCategories...),
		SecuritySettings:  meta.SecuritySettings,
		UserLanguage:      meta.UserLanguage,
		BTKeyboardLayout:  meta.BTKeyboardLayout,
		USBKeyboardLayout: meta.USBKeyboardLayout,
	}

	var err error
	if p.ServiceNodes, p.ServiceChildNodes, err = encodeChain(g, proto, node.CredParent); err != nil {
		return nil, err
	}
	if p.DataServiceNodes, p.DataServiceChildNodes, err = encodeChain(g, proto, node.DataParent); err != nil {
		return nil, err
	}
	return p, nil
}

func encodeChain(g *node.Graph, proto protocol.Protocol, parentKind node.Kind) ([]NodeRecord, []NodeRecord, error) {
	var parents, children []NodeRecord
	for _, p := range g.ParentsOf(parentKind) {
		raw, err := node.EncodeNode(p, proto)
		if err != nil {
			return nil, nil, err
		}
		parents = append(parents, NodeRecord{Address: p.Address, Kind: p.Kind, Raw: raw})
		for _, c := range g.ChildrenOf(p) {
			raw, err := node.EncodeNode(c, proto)
			if err != nil {
				return nil, nil, err
			}
			children = append(children, NodeRecord{Address: c.Address, Kind: c.Kind, Raw: raw})
		}
	}
	return parents, children, nil
}

// ToGraph reconstructs a Graph from p's node records, decoding each
// record's raw bytes with proto's field widths. Fields past p.Version's
// schema boundary are already zero-valued by the caller's decode step, so
// an older export simply produces an emptier Graph — never an error.
func ToGraph(p *Payload, favSlots int, proto protocol.Protocol) (*node.Graph, error) {
	g := node.NewGraph(favSlots)
	g.CTR = p.CTR
	g.CPZCTRs = append([]node.CPZCTR(nil), p.CPZCTRList...)
	copy(g.Favorites, p.Favorites)

	credParents, credChildren, err := decodeChain(proto, node.CredParent, node.CredChild, p.ServiceNodes, p.ServiceChildNodes)
	if err != nil {
		return nil, err
	}
	dataParents, dataChildren, err := decodeChain(proto, node.DataParent, node.DataChild, p.DataServiceNodes, p.DataServiceChildNodes)
	if err != nil {
		return nil, err
	}

	g.LoadParentChain(node.CredParent, credParents)
	g.LoadParentChain(node.DataParent, dataParents)
	for _, c := range credChildren {
		g.AddNode(c)
	}
	for _, c := range dataChildren {
		g.AddNode(c)
	}
	g.CredHead = p.StartCredentials
	g.DataHead = p.StartData
	g.Reindex()
	return g, nil
}

// decodeChain decodes a flat list of parent records and a flat list of
// child records back into Nodes. Prev/Next/FirstChild links are already
// baked into each record's raw bytes (decoded by node.DecodeNode), so no
// relinking is needed here — only registration into the graph, done by
// the caller.
func decodeChain(proto protocol.Protocol, parentKind, childKind node.Kind, parentRecs, childRecs []NodeRecord) ([]*node.Node, []*node.Node, error) {
	parents := make([]*node.Node, 0, len(parentRecs))
	for _, rec := range parentRecs {
		n, err := node.DecodeNode(parentKind, rec.Address, rec.Raw, proto)
		if err != nil {
			return nil, nil, err
		}
		parents = append(parents, n)
	}
	children := make([]*node.Node, 0, len(childRecs))
	for _, rec := range childRecs {
		n, err := node.DecodeNode(childKind, rec.Address, rec.Raw, proto)
		if err != nil {
			return nil, nil, err
		}
		children = append(children, n)
	}
	return parents, children, nil
}
