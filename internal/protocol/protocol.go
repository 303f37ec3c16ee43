// Package protocol implements C2: encoding application messages into
// transport frames and decoding frames back into messages, across the two
// historical device families. Grounded on
// _examples/original_source/src/MessageProtocol/MessageProtocolMini.h's
// IMessageProtocol interface — createPackets/getStatus/getMessageSize/
// getCommand/getFirstPayloadByte/getSerialNumber/getChangeNumber/
// isCPZInvalid/toByteArray/convertDate all carried over as methods and
// Message fields here (getDefaultFuncDone as the package-level function
// DefaultFuncDone), generalized from a single Qt class hierarchy into a Go
// interface with two implementations.
package protocol

import "fmt"

// Status is the single status byte every device response carries.
type Status uint8

const (
	StatusOK Status = iota
	StatusFail
	StatusNeedPowerOff
	StatusCPZNotInserted
)

// Capabilities reports which optional feature families a device variant or
// firmware advertises, replacing the original daemon's single isFw12()
// bool: later firmware gates WebAuthn, the files cache and node categories
// independently of each other.
type Capabilities uint32

const (
	CapFw12 Capabilities = 1 << iota
	CapWebAuthn
	CapFilesCache
	CapNodeCategories
)

func (c Capabilities) Has(flag Capabilities) bool { return c&flag != 0 }

// Message is one decoded application message: command, status, and the
// payload past the header, plus the scalar fields the dispatcher and job
// engine read out of nearly every response.
type Message struct {
	Command      Command
	Status       Status
	Payload      []byte
	SerialNumber uint32
	CredDBChange uint32
	DataDBChange uint32
	CPZInvalid   bool
}

// FirstPayloadByte returns payload[0], or 0 if the payload is empty —
// mirrors IMessageProtocol::getFirstPayloadByte, which several dispatcher
// callbacks use as a single boolean/enum result without slicing the whole
// payload out.
func (m Message) FirstPayloadByte() byte {
	if len(m.Payload) == 0 {
		return 0
	}
	return m.Payload[0]
}

// Protocol turns (Command, payload) pairs into ordered wire frames and
// turns inbound frame bytes into Messages, encapsulating everything that
// differs between device families: frame size, node sizes, field limits,
// and date encoding.
type Protocol interface {
	// Name identifies the device family for logging, e.g. "classic" or
	// "ble".
	Name() string

	// Capabilities reports the feature bitset this protocol (and the
	// firmware version it was constructed for) advertises.
	Capabilities() Capabilities

	// CreatePackets splits the message for cmd and payload into one or
	// more chunks, each small enough for one wire frame of the paired
	// transport, in the order they must be sent; the dispatcher wraps
	// each chunk in its wire frame.
	CreatePackets(cmd Command, payload []byte) ([][]byte, error)

	// MessageLength reports how many bytes of buf, accumulated so far
	// from C1, make up one complete application message, or 0 if buf
	// does not yet hold enough bytes to know.
	MessageLength(buf []byte) int

	// Decode parses one complete application message (as delimited by
	// MessageLength) into a Message.
	Decode(buf []byte) (Message, error)

	// ParentNodeSize and ChildNodeSize are the fixed flash node sizes
	// this protocol variant uses; classic and mini share one constant,
	// BLE may differ.
	ParentNodeSize() int
	ChildNodeSize() int

	// ServiceNameFieldLen, DescriptionFieldLen, LoginFieldLen and
	// PasswordFieldLen are the individual fixed-width field lengths that
	// sum (with the flags/prev/next/date header bytes) to ParentNodeSize
	// and ChildNodeSize — the node codec (internal/node) needs the
	// per-field split, not just the node totals, to lay out or parse a
	// record.
	ServiceNameFieldLen() int
	DescriptionFieldLen() int
	LoginFieldLen() int
	PasswordFieldLen() int

	// MaxFavorites, MaxLoginLength, MaxPasswordLength and
	// CredentialPackageFields are the remaining per-variant limits the
	// node graph and export codec need to validate against.
	MaxFavorites() int
	MaxLoginLength() int
	MaxPasswordLength() int
	CredentialPackageFields() int

	// EncodeDate packs (year, month, day) using this variant's date
	// encoding: (year_since_base<<9) | (month<<5) | day.
	EncodeDate(year, month, day int) uint16
	DecodeDate(encoded uint16) (year, month, day int)

	// EncodeString and DecodeString convert between the device's
	// on-wire charset (ASCII for classic/mini) and a Go string.
	EncodeString(s string) ([]byte, error)
	DecodeString(b []byte) (string, error)
}

// ErrShortMessage is returned by Decode when buf is shorter than
// MessageLength(buf) claims.
var ErrShortMessage = fmt.Errorf("protocol: message shorter than declared length")

// DefaultFuncDone is the protocol-supplied default response handler,
// mirroring IMessageProtocol::getDefaultFuncDone: it only checks the
// status byte and reports success or failure, for commands whose callback
// has nothing else to extract from the payload.
func DefaultFuncDone(msg Message) bool {
	return msg.Status == StatusOK
}
