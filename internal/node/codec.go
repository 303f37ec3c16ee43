package node

import (
	"encoding/binary"
	"fmt"

	"github.com/raoulh/moolticuted/internal/protocol"
)

// Layout sizes for the classic/mini node byte-field breakdown given in
// spec.md §6. A BLE-sized layout swaps in different field widths but
// keeps the same field order; EncodeParent/EncodeChild take the field
// widths as parameters so both variants share one codec.
const (
	parentServiceFieldClassic = 58
	childDescFieldClassic     = 24
	childLoginFieldClassic    = 63
	childPwdFieldClassic      = 32
)

// EncodeParent lays out a parent node's raw on-device bytes:
// flags(2)=0 | prev(2) | next(2) | first_child(2) | service_name, the
// service name field zero-padded to serviceFieldLen. A name longer than
// serviceFieldLen-1 bytes is rejected with an error, not truncated.
func EncodeParent(n *Node, serviceFieldLen int) ([]byte, error) {
	if len(n.ServiceName) > serviceFieldLen-1 {
		return nil, fmt.Errorf("node: service name %q exceeds field length %d", n.ServiceName, serviceFieldLen)
	}
	buf := make([]byte, 8+serviceFieldLen)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(n.Prev))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(n.Next))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(n.FirstChild))
	copy(buf[8:], n.ServiceName)
	return buf, nil
}

// DecodeParent parses raw bytes produced by EncodeParent back into a Node.
func DecodeParent(addr Address, raw []byte) (*Node, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("node: parent record too short: %d bytes", len(raw))
	}
	n := &Node{
		Kind:       CredParent,
		Address:    addr,
		Prev:       Address(binary.LittleEndian.Uint16(raw[2:4])),
		Next:       Address(binary.LittleEndian.Uint16(raw[4:6])),
		FirstChild: Address(binary.LittleEndian.Uint16(raw[6:8])),
		Raw:        append([]byte(nil), raw...),
	}
	n.ServiceName = cString(raw[8:])
	return n, nil
}

// EncodeChild lays out a credential child's raw bytes: flags(2)=0 |
// prev(2) | next(2) | description(descFieldLen) | date_created(2) |
// date_used(2) | login(loginFieldLen) | pad(1) | password_enc(pwdFieldLen).
func EncodeChild(n *Node, descFieldLen, loginFieldLen, pwdFieldLen int) ([]byte, error) {
	if len(n.Description) > descFieldLen-1 {
		return nil, fmt.Errorf("node: description exceeds field length %d", descFieldLen)
	}
	if len(n.Login) > loginFieldLen-1 {
		return nil, fmt.Errorf("node: login %q exceeds field length %d", n.Login, loginFieldLen)
	}
	if len(n.EncryptedPassword) > pwdFieldLen {
		return nil, fmt.Errorf("node: encrypted password exceeds field length %d", pwdFieldLen)
	}
	total := 6 + descFieldLen + 2 + 2 + loginFieldLen + 1 + pwdFieldLen
	buf := make([]byte, total)
	off := 2
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(n.Prev))
	off += 2
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(n.Next))
	off += 2
	copy(buf[off:off+descFieldLen], n.Description)
	off += descFieldLen
	binary.LittleEndian.PutUint16(buf[off:off+2], n.DateCreated)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:off+2], n.DateUsed)
	off += 2
	copy(buf[off:off+loginFieldLen], n.Login)
	off += loginFieldLen
	off++ // pad byte
	copy(buf[off:off+pwdFieldLen], n.EncryptedPassword)
	return buf, nil
}

// DecodeChild parses raw bytes produced by EncodeChild back into a Node.
func DecodeChild(addr Address, raw []byte, descFieldLen, loginFieldLen, pwdFieldLen int) (*Node, error) {
	total := 6 + descFieldLen + 2 + 2 + loginFieldLen + 1 + pwdFieldLen
	if len(raw) < total {
		return nil, fmt.Errorf("node: child record too short: %d bytes, want %d", len(raw), total)
	}
	n := &Node{Kind: CredChild, Address: addr, Raw: append([]byte(nil), raw...)}
	off := 2
	n.Prev = Address(binary.LittleEndian.Uint16(raw[off : off+2]))
	off += 2
	n.Next = Address(binary.LittleEndian.Uint16(raw[off : off+2]))
	off += 2
	n.Description = cString(raw[off : off+descFieldLen])
	off += descFieldLen
	n.DateCreated = binary.LittleEndian.Uint16(raw[off : off+2])
	off += 2
	n.DateUsed = binary.LittleEndian.Uint16(raw[off : off+2])
	off += 2
	n.Login = cString(raw[off : off+loginFieldLen])
	off += loginFieldLen
	off++
	n.EncryptedPassword = append([]byte(nil), raw[off:off+pwdFieldLen]...)
	return n, nil
}

// DataChildPayloadSize is the fixed payload size spec.md §6 gives a
// DataChild: 128 bytes, used to chunk a blob across multiple children.
const DataChildPayloadSize = 128

// EncodeDataParent lays out a DataParent node. Same field shape as a
// CredParent — flags(2)=0 | prev(2) | next(2) | first_child(2) |
// service_name — DataParents just live on a separate chain (spec.md §3).
func EncodeDataParent(n *Node, serviceFieldLen int) ([]byte, error) {
	raw, err := EncodeParent(n, serviceFieldLen)
	return raw, err
}

// DecodeDataParent parses raw bytes produced by EncodeDataParent.
func DecodeDataParent(addr Address, raw []byte) (*Node, error) {
	n, err := DecodeParent(addr, raw)
	if err != nil {
		return nil, err
	}
	n.Kind = DataParent
	return n, nil
}

// EncodeDataChild lays out a data child's raw bytes: flags(2)=0 |
// seq(2) | next(2) | payload(payloadFieldLen).
func EncodeDataChild(n *Node, payloadFieldLen int) ([]byte, error) {
	if len(n.Payload) > payloadFieldLen {
		return nil, fmt.Errorf("node: data payload exceeds field length %d", payloadFieldLen)
	}
	buf := make([]byte, 6+payloadFieldLen)
	binary.LittleEndian.PutUint16(buf[2:4], n.SequenceNumber)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(n.Next))
	copy(buf[6:], n.Payload)
	return buf, nil
}

// DecodeDataChild parses raw bytes produced by EncodeDataChild.
func DecodeDataChild(addr Address, raw []byte, payloadFieldLen int) (*Node, error) {
	total := 6 + payloadFieldLen
	if len(raw) < total {
		return nil, fmt.Errorf("node: data child record too short: %d bytes, want %d", len(raw), total)
	}
	n := &Node{Kind: DataChild, Address: addr, Raw: append([]byte(nil), raw...)}
	n.SequenceNumber = binary.LittleEndian.Uint16(raw[2:4])
	n.Next = Address(binary.LittleEndian.Uint16(raw[4:6]))
	n.Payload = append([]byte(nil), raw[6:total]...)
	return n, nil
}

// EncodeNode lays out n's raw on-device bytes using proto's per-variant
// field widths, dispatching on n.Kind. Used by the management-mode
// engine's write-back diff (internal/mmm) and the export codec
// (internal/export), so both compare/serialize nodes the same way the
// device itself would.
func EncodeNode(n *Node, proto protocol.Protocol) ([]byte, error) {
	switch n.Kind {
	case CredParent:
		return EncodeParent(n, proto.ServiceNameFieldLen())
	case DataParent:
		return EncodeDataParent(n, proto.ServiceNameFieldLen())
	case CredChild:
		return EncodeChild(n, proto.DescriptionFieldLen(), proto.LoginFieldLen(), proto.PasswordFieldLen())
	case DataChild:
		return EncodeDataChild(n, DataChildPayloadSize)
	default:
		return nil, fmt.Errorf("node: unknown kind %v", n.Kind)
	}
}

// DecodeNode parses raw bytes into a Node of kind, using proto's per-variant
// field widths.
func DecodeNode(kind Kind, addr Address, raw []byte, proto protocol.Protocol) (*Node, error) {
	switch kind {
	case CredParent:
		return DecodeParent(addr, raw)
	case DataParent:
		return DecodeDataParent(addr, raw)
	case CredChild:
		return DecodeChild(addr, raw, proto.DescriptionFieldLen(), proto.LoginFieldLen(), proto.PasswordFieldLen())
	case DataChild:
		return DecodeDataChild(addr, raw, DataChildPayloadSize)
	default:
		return nil, fmt.Errorf("node: unknown kind %v", kind)
	}
}

// cString trims a fixed-width field at its first NUL byte, the
// null-terminated string convention spec.md §3 specifies for service
// names and logins.
func cString(field []byte) string {
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}
