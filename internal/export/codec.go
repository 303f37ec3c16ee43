package export

import "encoding/json"

// MarshalArray serializes p as the ordered JSON array SPEC_FULL.md §4.7
// describes, truncated to p.Version's schema field count — the "structured
// payload" spec.md §4.7 calls an "ordered array".
func MarshalArray(p *Payload) ([]byte, error) {
	return json.Marshal(p.toArray())
}

// UnmarshalArray parses an ordered JSON array into a Payload, tolerating
// any of the three historical truncation points (10/14/>=18 fields,
// spec.md §8) by leaving fields past the array's length at their zero
// value rather than erroring.
func UnmarshalArray(data []byte) (*Payload, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return fromArray(raw)
}

// toArray lays out p as the literal ordered array spec.md §4.7 describes,
// truncated to p.Version's field count.
func (p *Payload) toArray() []interface{} {
	full := []interface{}{
		p.CTR,
		p.CPZCTRList,
		p.StartCredentials,
		p.StartData,
		p.Favorites,
		p.ServiceNodes,
		p.ServiceChildNodes,
		p.DataServiceNodes,
		p.DataServiceChildNodes,
		p.DeviceVersion,
		p.BundleVersion,
		p.CredChangeNumber,
		p.DataChangeNumber,
		p.SerialNumber,
		p.IsBLE,
		p.BLEUserCategories,
		p.WebAuthnServiceNodes,
		p.WebAuthnServiceChildNodes,
		p.SecuritySettings,
		p.UserLanguage,
		p.BTKeyboardLayout,
		p.USBKeyboardLayout,
	}
	n := schemaFieldCount(p.Version)
	if n > len(full) {
		n = len(full)
	}
	return full[:n]
}

// fromArray is toArray's inverse: each present index is unmarshalled into
// its typed field; indices past len(raw) are left zero-valued.
func fromArray(raw []json.RawMessage) (*Payload, error) {
	p := &Payload{}
	get := func(i int, dst interface{}) error {
		if i >= len(raw) {
			return nil
		}
		return json.Unmarshal(raw[i], dst)
	}
	fields := []struct {
		idx int
		dst interface{}
	}{
		{IdxCTR, &p.CTR},
		{IdxCPZCTRList, &p.CPZCTRList},
		{IdxStartCredentials, &p.StartCredentials},
		{IdxStartData, &p.StartData},
		{IdxFavorites, &p.Favorites},
		{IdxServiceNodes, &p.ServiceNodes},
		{IdxServiceChildNodes, &p.ServiceChildNodes},
		{IdxDataServiceNodes, &p.DataServiceNodes},
		{IdxDataServiceChildNodes, &p.DataServiceChildNodes},
		{IdxDeviceVersion, &p.DeviceVersion},
		{IdxBundleVersion, &p.BundleVersion},
		{IdxCredChangeNumber, &p.CredChangeNumber},
		{IdxDataChangeNumber, &p.DataChangeNumber},
		{IdxSerialNumber, &p.SerialNumber},
		{IdxIsBLE, &p.IsBLE},
		{IdxBLEUserCategories, &p.BLEUserCategories},
		{IdxWebAuthnServiceNodes, &p.WebAuthnServiceNodes},
		{IdxWebAuthnServiceChildNodes, &p.WebAuthnServiceChildNodes},
		{IdxSecuritySettings, &p.SecuritySettings},
		{IdxUserLanguage, &p.UserLanguage},
		{IdxBTKeyboardLayout, &p.BTKeyboardLayout},
		{IdxUSBKeyboardLayout, &p.USBKeyboardLayout},
	}
	for _, f := range fields {
		if err := get(f.idx, f.dst); err != nil {
			return nil, err
		}
	}
	p.Version = schemaFromLen(len(raw))
	return p, nil
}

func schemaFromLen(n int) Schema {
	switch {
	case n <= classicFieldCount:
		return SchemaClassic
	case n <= miniFieldCount:
		return SchemaMini
	default:
		return SchemaBLE
	}
}
