// Package packet implements the DNS wire format: header flag packing,
// label-compression-aware name decoding, and resource record encoding,
// limited to what an iterative UDP resolver needs (RFC 1035 §4, A/NS/AAAA
// rdata, plus the CNAME/SOA/PTR/MX type codes a client may legally ask for
// even though this resolver never synthesizes or decodes their rdata).
package packet

import (
	"errors"
)

var (
	// ErrMessageTooShort indicates a truncated DNS message.
	ErrMessageTooShort = errors.New("packet: message too short")

	// ErrMalformed indicates an illegal label-length flag or other
	// structurally invalid encoding.
	ErrMalformed = errors.New("packet: malformed message")

	// ErrInvalidOffset indicates a compression pointer outside message bounds,
	// or a pointer at the very start of a name that does not point before
	// that name's start.
	ErrInvalidOffset = errors.New("packet: invalid compression pointer offset")

	// ErrCompressionBomb indicates a pointer loop or excessive pointer chain
	// depth while decoding a name.
	ErrCompressionBomb = errors.New("packet: compression bomb detected")

	// ErrNameTooLong indicates a decoded or encoded name exceeds 255 octets
	// of wire representation.
	ErrNameTooLong = errors.New("packet: domain name too long")

	// ErrLabelTooLong indicates a label exceeds 63 octets.
	ErrLabelTooLong = errors.New("packet: label too long")

	// ErrTooManyRRs indicates a section count exceeds the sanity ceiling
	// applied to guard against hostile ANCOUNT/NSCOUNT/ARCOUNT values.
	ErrTooManyRRs = errors.New("packet: too many resource records")

	// ErrRRSetTooLarge indicates the message's total rdata size, summed
	// over all sections, exceeds the
	// sanity ceiling applied to guard against hostile RDLENGTH values.
	ErrRRSetTooLarge = errors.New("packet: rrset too large")

	// ErrUnsupportedRData is returned by ToBytes when asked to encode a
	// record whose type this codec never learned how to render (anything
	// outside A, NS, AAAA).
	ErrUnsupportedRData = errors.New("packet: cannot encode rdata for this type")
)

// Security limits, independent of the DNS protocol itself: they bound how
// much work a single malicious datagram can force the decoder to do.
const (
	maxCompressionDepth = 20
	maxRRsPerSection    = 100
	maxRRSetSize        = 32 * 1024
	maxMessageSize       = 65535

	headerSize      = 12
	maxLabelLength  = 63
	maxDomainLength = 255
)

// Record types this codec knows about. The enumeration matches what a
// stub client may legally place in a question; only A, NS and AAAA have
// their rdata decoded/encoded, the rest are type-only (§4.1).
const (
	TypeA     uint16 = 1
	TypeNS    uint16 = 2
	TypeCNAME uint16 = 5
	TypeSOA   uint16 = 6
	TypePTR   uint16 = 12
	TypeMX    uint16 = 15
	TypeAAAA  uint16 = 28
)

// Record classes.
const (
	ClassIN uint16 = 1
	ClassCS uint16 = 2
	ClassCH uint16 = 3
	ClassHS uint16 = 4
)

// Response codes (RCODE), per RFC 1035 §4.1.1.
const (
	RcodeNoError        uint8 = 0
	RcodeFormatError    uint8 = 1
	RcodeServerFailure  uint8 = 2
	RcodeNameError      uint8 = 3
	RcodeNotImplemented uint8 = 4
	RcodeRefused        uint8 = 5
)

// Header is the fixed 12-octet DNS message header.
type Header struct {
	ID      uint16
	QR      bool
	Opcode  uint8 // 4 bits
	AA      bool
	TC      bool
	RD      bool
	RA      bool
	Z       uint8 // 3 reserved bits, preserved verbatim on round-trip
	Rcode   uint8 // 4 bits
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Question is a single entry of the question section.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// RR is a single resource record. Data/DataOK hold the decoded rendering
// for the types this codec understands (A → "a.b.c.d", NS → domain name,
// AAAA → colon-separated hex groups); DataOK is false for any other type,
// or when Class is not IN, matching the "absent sentinel" rule of §4.1:
// an unsupported rdata is never a parse error.
type RR struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  string
	DataOK bool
}

// Message is a full DNS message: header, questions, and the three RR
// sections, in wire order.
type Message struct {
	Header     Header
	Question   []Question
	Answer     []RR
	Authority  []RR
	Additional []RR

	// DecompressOps counts compression-pointer dereferences performed while
	// parsing this message. Purely informational: nothing in this module
	// reads it, and it has no bearing on correctness.
	DecompressOps int
}
