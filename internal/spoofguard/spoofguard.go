// Package spoofguard binds an outstanding upstream query to its reply
// with a SipHash correlation tag, independent of the 16-bit transaction
// ID. It is the purely in-process analogue of the teacher's DNS Cookie
// manager: both defend a specific outstanding exchange against being
// satisfied by the wrong packet, but a cookie travels on the wire while
// a correlation tag is computed and checked entirely locally around a
// single ephemeral-socket query.
package spoofguard

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/dchest/siphash"
)

// Guard computes correlation tags under a per-process random secret, so
// a tag cannot be precomputed by anything outside this process.
type Guard struct {
	key [16]byte
}

// New creates a Guard with a fresh random secret.
func New() *Guard {
	g := &Guard{}
	if _, err := rand.Read(g.key[:]); err != nil {
		panic("spoofguard: failed to read random secret: " + err.Error())
	}
	return g
}

// Tag computes the correlation value for one outstanding query: the
// transaction ID, the question exactly as sent, and the destination the
// query was sent to. The resolver recomputes it from a reply's echoed
// question (after matching the transaction ID) and compares the result
// with the tag of the query it sent, so a reply that echoes a different
// question is rejected.
func (g *Guard) Tag(id uint16, qname string, qtype, qclass uint16, dest string) uint64 {
	h := siphash.New(g.key[:])

	var idBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], id)
	h.Write(idBuf[:])

	h.Write([]byte(qname))

	var typeClass [4]byte
	binary.BigEndian.PutUint16(typeClass[0:2], qtype)
	binary.BigEndian.PutUint16(typeClass[2:4], qclass)
	h.Write(typeClass[:])

	h.Write([]byte(dest))

	return h.Sum64()
}
