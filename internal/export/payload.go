// Package export implements C7: serializing the node graph (plus device
// metadata) to a versioned export payload, and back, with an optional
// symmetric encryption envelope. Grounded on
// _examples/original_source/src/MPDevice.h's ExportPayloadData enum —
// reproduced in full in SPEC_FULL.md §4.7's index table.
package export

import "github.com/raoulh/moolticuted/internal/node"

// Schema names the three historical field-count boundaries a reader must
// tolerate, per spec.md §4.7/§8.
type Schema int

const (
	SchemaClassic Schema = iota // 10 fields
	SchemaMini                  // 14 fields
	SchemaBLE                   // >=18 fields
)

// Field counts pinned to the schema boundaries in SPEC_FULL.md §4.7's
// index table.
const (
	classicFieldCount = 10
	miniFieldCount    = 14
	bleFieldCount     = 22
)

// Field indices into the marshaled export array (see MarshalArray),
// SPEC_FULL.md §4.7 table, verbatim.
const (
	IdxCTR = iota
	IdxCPZCTRList
	IdxStartCredentials
	IdxStartData
	IdxFavorites
	IdxServiceNodes
	IdxServiceChildNodes
	IdxDataServiceNodes
	IdxDataServiceChildNodes
	IdxDeviceVersion
	IdxBundleVersion
	IdxCredChangeNumber
	IdxDataChangeNumber
	IdxSerialNumber
	IdxIsBLE
	IdxBLEUserCategories
	IdxWebAuthnServiceNodes
	IdxWebAuthnServiceChildNodes
	IdxSecuritySettings
	IdxUserLanguage
	IdxBTKeyboardLayout
	IdxUSBKeyboardLayout

	fieldCount
)

// NodeRecord is one exported node: its raw on-device bytes plus the 2-byte
// address tag spec.md §6 says every exported node carries alongside its
// payload.
type NodeRecord struct {
	Address node.Address `json:"address"`
	Kind    node.Kind    `json:"kind"`
	Raw     []byte       `json:"raw"`
}

// Payload is the in-memory form of the 22-indexed export array. Fields
// past a reader's schema boundary are left at their zero value — never an
// error, per spec.md §4.7/§8.
type Payload struct {
	Version Schema `json:"version"`

	CTR              [3]byte        `json:"ctr"`
	CPZCTRList       []node.CPZCTR  `json:"cpz_ctr_list,omitempty"`
	StartCredentials node.Address   `json:"start_credentials"`
	StartData        node.Address   `json:"start_data"`
	Favorites        []node.Favorite `json:"favorites,omitempty"`

	ServiceNodes             []NodeRecord `json:"service_nodes,omitempty"`
	ServiceChildNodes        []NodeRecord `json:"service_child_nodes,omitempty"`
	DataServiceNodes         []NodeRecord `json:"data_service_nodes,omitempty"`
	DataServiceChildNodes    []NodeRecord `json:"data_service_child_nodes,omitempty"`
	WebAuthnServiceNodes     []NodeRecord `json:"webauthn_service_nodes,omitempty"`
	WebAuthnServiceChildNodes []NodeRecord `json:"webauthn_service_child_nodes,omitempty"`

	DeviceVersion string `json:"device_version,omitempty"`
	BundleVersion uint32 `json:"bundle_version,omitempty"`

	CredChangeNumber uint32 `json:"cred_change_number,omitempty"`
	DataChangeNumber uint32 `json:"data_change_number,omitempty"`
	SerialNumber     uint32 `json:"serial_number,omitempty"`

	IsBLE             bool     `json:"is_ble,omitempty"`
	BLEUserCategories []string `json:"ble_user_categories,omitempty"`
	SecuritySettings  uint32   `json:"security_settings,omitempty"`
	UserLanguage      string   `json:"user_language,omitempty"`
	BTKeyboardLayout  string   `json:"bt_keyboard_layout,omitempty"`
	USBKeyboardLayout string   `json:"usb_keyboard_layout,omitempty"`
}

// schemaFieldCount reports how many of the 22 indices a given Schema
// populates, the truncation boundary readers must tolerate.
func schemaFieldCount(s Schema) int {
	switch s {
	case SchemaClassic:
		return classicFieldCount
	case SchemaMini:
		return miniFieldCount
	default:
		return bleFieldCount
	}
}
