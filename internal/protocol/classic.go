package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/raoulh/moolticuted/internal/transport"
)

// messageHeaderSize is the flat application-message header this daemon
// uses ahead of every command's payload: a 2-byte payload length followed
// by a 2-byte command code, both little-endian. This convention is an
// implementation choice filling a gap the distilled protocol left
// unspecified (it names the decoder's *outputs*, not byte offsets); see
// DESIGN.md.
const messageHeaderSize = 4

// classicProtocol implements the node-size and limit conventions shared by
// Mooltipass classic and Mini, grounded on
// MessageProtocolMini.h::getParentNodeSize/getChildNodeSize (both
// MP_NODE_SIZE), getMaxFavorite, getCredentialPackageSize,
// getLoginMaxLength, getPwdMaxLength.
type classicProtocol struct {
	caps Capabilities
}

// NewClassic returns the Protocol for Mooltipass classic/Mini devices,
// paired with the HID fixed-frame transport.
func NewClassic(caps Capabilities) Protocol {
	return &classicProtocol{caps: caps}
}

// Node sizes are the literal byte-field sums spec.md §6 gives for
// classic/mini: parent flags(2)+prev(2)+next(2)+first_child(2)+
// service_name(58) = 66; child flags(2)+prev(2)+next(2)+description(24)+
// date_created(2)+date_used(2)+login(63)+pad(1)+password_enc(32) = 130.
func (p *classicProtocol) Name() string               { return "classic" }
func (p *classicProtocol) Capabilities() Capabilities  { return p.caps }
func (p *classicProtocol) ParentNodeSize() int         { return 66 }
func (p *classicProtocol) ChildNodeSize() int          { return 130 }
func (p *classicProtocol) MaxFavorites() int           { return 14 }
func (p *classicProtocol) MaxLoginLength() int         { return 63 }
func (p *classicProtocol) MaxPasswordLength() int      { return 32 }
func (p *classicProtocol) CredentialPackageFields() int { return 6 }

// Field widths are the literal breakdown spec.md §6 gives for classic/mini:
// parent service_name(58); child description(24), login(63), password(32).
func (p *classicProtocol) ServiceNameFieldLen() int { return 58 }
func (p *classicProtocol) DescriptionFieldLen() int { return 24 }
func (p *classicProtocol) LoginFieldLen() int       { return 63 }
func (p *classicProtocol) PasswordFieldLen() int    { return 32 }

func (p *classicProtocol) CreatePackets(cmd Command, payload []byte) ([][]byte, error) {
	return createPackets(cmd, payload, transport.MaxHIDPayload)
}

func (p *classicProtocol) MessageLength(buf []byte) int { return messageLength(buf) }

func (p *classicProtocol) Decode(buf []byte) (Message, error) { return decodeMessage(buf) }

func (p *classicProtocol) EncodeDate(year, month, day int) uint16 {
	return encodeDate(year, month, day)
}

func (p *classicProtocol) DecodeDate(encoded uint16) (int, int, int) {
	return decodeDate(encoded)
}

// EncodeString converts to the ASCII charset classic/mini firmware speaks,
// grounded on MessageProtocolMini::toByteArray.
func (p *classicProtocol) EncodeString(s string) ([]byte, error) {
	return encodeASCII(s)
}

func (p *classicProtocol) DecodeString(b []byte) (string, error) {
	return decodeASCII(b)
}

// createPackets is shared chunking logic: lay out the flat
// [length][command][payload] message, then split it into chunkCap-sized
// ordered pieces for the dispatcher to hand to the transport's frame
// encoder one at a time.
func createPackets(cmd Command, payload []byte, chunkCap int) ([][]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("protocol: payload %d exceeds max message size", len(payload))
	}
	flat := make([]byte, messageHeaderSize+len(payload))
	binary.LittleEndian.PutUint16(flat[0:2], uint16(len(payload)))
	binary.LittleEndian.PutUint16(flat[2:4], uint16(cmd))
	copy(flat[messageHeaderSize:], payload)

	if chunkCap <= 0 {
		return nil, fmt.Errorf("protocol: invalid chunk capacity %d", chunkCap)
	}
	var chunks [][]byte
	for len(flat) > 0 {
		n := chunkCap
		if n > len(flat) {
			n = len(flat)
		}
		chunk := make([]byte, n)
		copy(chunk, flat[:n])
		chunks = append(chunks, chunk)
		flat = flat[n:]
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}
	return chunks, nil
}

// messageLength reports how many bytes of a reassembled application
// message buf claims to need once the 4-byte header is available.
func messageLength(buf []byte) int {
	if len(buf) < messageHeaderSize {
		return 0
	}
	payloadLen := binary.LittleEndian.Uint16(buf[0:2])
	return messageHeaderSize + int(payloadLen)
}

// decodeMessage parses a complete flat message. The convention used
// throughout this daemon is that the first payload byte of any *response*
// is the status byte, and — when present — bytes 1:14 carry serial number
// and change-number fields; commands whose payload is too short for a
// field simply report it as zero, which getDefaultFuncDone-style callers
// never read.
func decodeMessage(buf []byte) (Message, error) {
	if len(buf) < messageHeaderSize {
		return Message{}, ErrShortMessage
	}
	payloadLen := binary.LittleEndian.Uint16(buf[0:2])
	cmd := Command(binary.LittleEndian.Uint16(buf[2:4]))
	need := messageHeaderSize + int(payloadLen)
	if len(buf) < need {
		return Message{}, ErrShortMessage
	}
	payload := buf[messageHeaderSize:need]

	msg := Message{Command: cmd, Payload: payload}
	if len(payload) == 0 {
		return msg, nil
	}
	msg.Status = Status(payload[0])
	rest := payload[1:]
	if len(rest) >= 4 {
		msg.SerialNumber = binary.LittleEndian.Uint32(rest[0:4])
	}
	if len(rest) >= 8 {
		msg.CredDBChange = binary.LittleEndian.Uint32(rest[4:8])
	}
	if len(rest) >= 12 {
		msg.DataDBChange = binary.LittleEndian.Uint32(rest[8:12])
	}
	if len(rest) >= 13 {
		msg.CPZInvalid = rest[12] != 0
	}
	return msg, nil
}

// encodeDate packs (year, month, day) as (year_since_base<<9) |
// (month<<5) | day, bit-exact to spec.
const dateBaseYear = 2010

func encodeDate(year, month, day int) uint16 {
	yearsSinceBase := year - dateBaseYear
	return uint16(yearsSinceBase<<9) | uint16(month<<5) | uint16(day)
}

func decodeDate(encoded uint16) (year, month, day int) {
	day = int(encoded & 0x1F)
	month = int((encoded >> 5) & 0xF)
	year = int(encoded>>9) + dateBaseYear
	return
}

func encodeASCII(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0x7F {
			return nil, fmt.Errorf("protocol: character %q outside ASCII charset", r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}

func decodeASCII(b []byte) (string, error) {
	for _, c := range b {
		if c > 0x7F {
			return "", fmt.Errorf("protocol: byte %#02x outside ASCII charset", c)
		}
	}
	return string(b), nil
}
