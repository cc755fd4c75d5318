package packet

import (
	"encoding/binary"
	"hash/fnv"
)

// Parser decodes a single DNS message from a byte slice captured off the
// wire. It is single-use: construct one per message with NewParser.
type Parser struct {
	msg    []byte
	offset int
	rrSize int // running total of rdata bytes decoded, across all sections
	jumps  int // running total of compression-pointer dereferences
}

// NewParser prepares a parser over msg. msg is retained, not copied: the
// caller must not mutate it while the returned *Message is in use.
func NewParser(msg []byte) *Parser {
	return &Parser{msg: msg}
}

// Parse decodes the full message: header, question, and the three RR
// sections, honoring the counts declared in the header.
func (p *Parser) Parse() (*Message, error) {
	if len(p.msg) < headerSize {
		return nil, ErrMessageTooShort
	}

	hdr := p.parseHeader()

	m := &Message{Header: hdr}

	for i := 0; i < int(hdr.QDCount); i++ {
		q, err := p.parseQuestion()
		if err != nil {
			return nil, err
		}
		m.Question = append(m.Question, q)
	}

	var err error
	if m.Answer, err = p.parseRRSection(int(hdr.ANCount)); err != nil {
		return nil, err
	}
	if m.Authority, err = p.parseRRSection(int(hdr.NSCount)); err != nil {
		return nil, err
	}
	if m.Additional, err = p.parseRRSection(int(hdr.ARCount)); err != nil {
		return nil, err
	}

	m.DecompressOps = p.jumps
	return m, nil
}

func (p *Parser) parseHeader() Header {
	b := p.msg
	flags := binary.BigEndian.Uint16(b[2:4])

	h := Header{
		ID:      binary.BigEndian.Uint16(b[0:2]),
		QR:      flags&0x8000 != 0,
		Opcode:  uint8(flags>>11) & 0x0F,
		AA:      flags&0x0400 != 0,
		TC:      flags&0x0200 != 0,
		RD:      flags&0x0100 != 0,
		RA:      flags&0x0080 != 0,
		Z:       uint8(flags>>4) & 0x07,
		Rcode:   uint8(flags) & 0x0F,
		QDCount: binary.BigEndian.Uint16(b[4:6]),
		ANCount: binary.BigEndian.Uint16(b[6:8]),
		NSCount: binary.BigEndian.Uint16(b[8:10]),
		ARCount: binary.BigEndian.Uint16(b[10:12]),
	}
	p.offset = headerSize
	return h
}

func (p *Parser) parseQuestion() (Question, error) {
	name, consumed, jumps, err := decodeName(p.msg, p.offset)
	if err != nil {
		return Question{}, err
	}
	p.offset += consumed
	p.jumps += jumps

	if p.offset+4 > len(p.msg) {
		return Question{}, ErrMessageTooShort
	}
	q := Question{
		Name:  name,
		Type:  binary.BigEndian.Uint16(p.msg[p.offset : p.offset+2]),
		Class: binary.BigEndian.Uint16(p.msg[p.offset+2 : p.offset+4]),
	}
	p.offset += 4
	return q, nil
}

func (p *Parser) parseRRSection(count int) ([]RR, error) {
	if count > maxRRsPerSection {
		return nil, ErrTooManyRRs
	}
	rrs := make([]RR, 0, count)
	for i := 0; i < count; i++ {
		rr, err := p.parseRR()
		if err != nil {
			return nil, err
		}
		rrs = append(rrs, rr)
	}
	return rrs, nil
}

// parseRR decodes a single resource record. It always advances the cursor
// by exactly RDLENGTH octets after the fixed fields, regardless of
// whether the rdata's content is understood — the "always advance" rule
// of §4.1 that keeps a single unrecognized record from desynchronizing
// the rest of the message.
func (p *Parser) parseRR() (RR, error) {
	name, consumed, jumps, err := decodeName(p.msg, p.offset)
	if err != nil {
		return RR{}, err
	}
	p.offset += consumed
	p.jumps += jumps

	if p.offset+10 > len(p.msg) {
		return RR{}, ErrMessageTooShort
	}
	rtype := binary.BigEndian.Uint16(p.msg[p.offset : p.offset+2])
	rclass := binary.BigEndian.Uint16(p.msg[p.offset+2 : p.offset+4])
	ttl := binary.BigEndian.Uint32(p.msg[p.offset+4 : p.offset+8])
	rdlength := int(binary.BigEndian.Uint16(p.msg[p.offset+8 : p.offset+10]))
	p.offset += 10

	if p.offset+rdlength > len(p.msg) {
		return RR{}, ErrMessageTooShort
	}

	p.rrSize += rdlength
	if p.rrSize > maxRRSetSize {
		return RR{}, ErrRRSetTooLarge
	}

	rdataOffset := p.offset
	data, ok := p.decodeRData(rtype, rclass, rdataOffset, rdlength)

	// Always advance by the declared length, independent of whether the
	// rdata was understood.
	p.offset += rdlength

	return RR{
		Name:   name,
		Type:   rtype,
		Class:  rclass,
		TTL:    ttl,
		Data:   data,
		DataOK: ok,
	}, nil
}

// decodeRData renders the rdata of a record whose fixed fields have
// already been consumed. It never returns an error: an rdata this codec
// does not understand (wrong class, or a type outside A/NS/AAAA) simply
// yields the absent sentinel (ok == false), per §4.1.
func (p *Parser) decodeRData(rtype, rclass uint16, offset, length int) (string, bool) {
	if rclass != ClassIN {
		return "", false
	}
	switch rtype {
	case TypeA:
		if length != 4 {
			return "", false
		}
		return formatIPv4(p.msg[offset : offset+4]), true
	case TypeAAAA:
		if length != 16 {
			return "", false
		}
		return formatIPv6(p.msg[offset : offset+16]), true
	case TypeNS:
		name, _, jumps, err := decodeName(p.msg, offset)
		if err != nil {
			return "", false
		}
		p.jumps += jumps
		return name, true
	default:
		return "", false
	}
}

// HashQuery returns a stable, non-cryptographic identifier for a
// (qname, qtype, qclass) triple. The resolver does not use it. It is not a
// security boundary — see internal/spoofguard for reply correlation
// against off-path spoofing.
func HashQuery(qname string, qtype, qclass uint16) uint64 {
	h := fnv.New64a()
	h.Write([]byte(qname))
	var buf [4]byte
	binary.BigEndian.PutUint16(buf[0:2], qtype)
	binary.BigEndian.PutUint16(buf[2:4], qclass)
	h.Write(buf[:])
	return h.Sum64()
}


