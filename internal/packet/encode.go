package packet

import (
	"crypto/rand"
	"encoding/binary"
)

// ToBytes serializes the message to its wire form. No compression
// pointers are ever emitted: every name is written as a literal,
// self-contained label sequence, matching the encoder contract of §4.1.
func (m *Message) ToBytes() ([]byte, error) {
	out := make([]byte, headerSize)
	m.Header.QDCount = uint16(len(m.Question))
	m.Header.ANCount = uint16(len(m.Answer))
	m.Header.NSCount = uint16(len(m.Authority))
	m.Header.ARCount = uint16(len(m.Additional))
	m.Header.encodeInto(out)

	for _, q := range m.Question {
		b, err := encodeQuestion(q)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	for _, section := range [][]RR{m.Answer, m.Authority, m.Additional} {
		for _, rr := range section {
			b, err := encodeRR(rr)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
	}
	return out, nil
}

func (h Header) encodeInto(out []byte) {
	binary.BigEndian.PutUint16(out[0:2], h.ID)

	var flags uint16
	if h.QR {
		flags |= 0x8000
	}
	flags |= uint16(h.Opcode&0x0F) << 11
	if h.AA {
		flags |= 0x0400
	}
	if h.TC {
		flags |= 0x0200
	}
	if h.RD {
		flags |= 0x0100
	}
	if h.RA {
		flags |= 0x0080
	}
	flags |= uint16(h.Z&0x07) << 4
	flags |= uint16(h.Rcode & 0x0F)
	binary.BigEndian.PutUint16(out[2:4], flags)

	binary.BigEndian.PutUint16(out[4:6], h.QDCount)
	binary.BigEndian.PutUint16(out[6:8], h.ANCount)
	binary.BigEndian.PutUint16(out[8:10], h.NSCount)
	binary.BigEndian.PutUint16(out[10:12], h.ARCount)
}

func encodeQuestion(q Question) ([]byte, error) {
	name, err := encodeName(q.Name)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(name)+4)
	out = append(out, name...)
	var tail [4]byte
	binary.BigEndian.PutUint16(tail[0:2], q.Type)
	binary.BigEndian.PutUint16(tail[2:4], q.Class)
	return append(out, tail[:]...), nil
}

func encodeRR(rr RR) ([]byte, error) {
	name, err := encodeName(rr.Name)
	if err != nil {
		return nil, err
	}
	rdata, err := encodeRData(rr)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(name)+10+len(rdata))
	out = append(out, name...)

	var fixed [10]byte
	binary.BigEndian.PutUint16(fixed[0:2], rr.Type)
	binary.BigEndian.PutUint16(fixed[2:4], rr.Class)
	binary.BigEndian.PutUint32(fixed[4:8], rr.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed[:]...)
	return append(out, rdata...), nil
}

// encodeRData renders the rdata this codec knows how to write: A, NS and
// AAAA. Anything else is a programming error at the call site — this
// resolver never constructs or forwards records of other types in a
// response it sends itself.
func encodeRData(rr RR) ([]byte, error) {
	switch rr.Type {
	case TypeA:
		ip, ok := parseIPv4(rr.Data)
		if !ok {
			return nil, ErrUnsupportedRData
		}
		return ip[:], nil
	case TypeAAAA:
		ip, ok := parseIPv6(rr.Data)
		if !ok {
			return nil, ErrUnsupportedRData
		}
		return ip[:], nil
	case TypeNS:
		return encodeName(rr.Data)
	default:
		return nil, ErrUnsupportedRData
	}
}

// NewID draws a cryptographically random 16-bit transaction ID. Using
// crypto/rand rather than math/rand keeps an off-path attacker from
// predicting the ID this resolver will use for its next upstream query.
func NewID() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("packet: failed to read random transaction id: " + err.Error())
	}
	return binary.BigEndian.Uint16(b[:])
}

// CreateQuery builds a standard query for qname/qtype, class IN, with
// the given transaction ID. RD is false by default, matching a purely
// iterative resolver's own queries upstream; callers speaking to a
// client that wants recursion (or re-querying a forwarder) set
// query.Header.RD themselves.
func CreateQuery(qname string, qtype uint16, id uint16) *Message {
	return &Message{
		Header: Header{
			ID:     id,
			Opcode: 0,
			RD:     false,
		},
		Question: []Question{{Name: qname, Type: qtype, Class: ClassIN}},
	}
}

// CreateResponse builds a response message carrying the given answer
// records for the given id/questions, with QR set and RD/RA copied as
// requested by the caller.
func CreateResponse(id uint16, rcode uint8, rd, ra bool, questions []Question, answers []RR) *Message {
	return &Message{
		Header: Header{
			ID:      id,
			QR:      true,
			RD:      rd,
			RA:      ra,
			Rcode:   rcode,
		},
		Question: questions,
		Answer:   answers,
	}
}

// CreateRR builds an answer record of type A or NS from a cached value
// and its absolute expiry. An expiry of -1 (the "never expires" sentinel
// used for root hints) is rendered with a fixed 24-hour TTL, matching the
// convention of the on-disk cache seed.
func CreateRR(name string, rtype uint16, data string, expiryUnix int64, now int64) RR {
	var ttl uint32
	if expiryUnix == -1 {
		ttl = 86400
	} else if expiryUnix > now {
		ttl = uint32(expiryUnix - now)
	}
	return RR{Name: name, Type: rtype, Class: ClassIN, TTL: ttl, Data: data, DataOK: true}
}
