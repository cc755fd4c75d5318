// Package resolver implements the iterative resolution engine: cache
// lookup first, then walking the DNS hierarchy from cached delegations,
// one outer iteration per deeper referral, exactly as described by the
// source's own serial, cache-driven algorithm.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dnsscience/ripd/internal/cache"
	"github.com/dnsscience/ripd/internal/packet"
	"github.com/dnsscience/ripd/internal/spoofguard"
)

// ErrNoConnectivity is the transport-exhaustion error distinct from any
// RCODE: every candidate server/IP for a query timed out or was
// otherwise unreachable.
var ErrNoConnectivity = errors.New("resolver: no connectivity to any candidate server")

// NoConnectivityPolicy controls what Resolve returns to its caller when
// ErrNoConnectivity occurs. The spec leaves this open ("the
// implementation MUST choose"); see DESIGN.md for the rationale.
type NoConnectivityPolicy int

const (
	// PolicyServfail maps no-connectivity to (SERVER_FAILURE, nil, nil):
	// a normal, answerable outcome from the caller's point of view.
	PolicyServfail NoConnectivityPolicy = iota
	// PolicyFatal propagates ErrNoConnectivity to the caller instead of
	// synthesizing an RCODE.
	PolicyFatal
)

// Config configures a Resolver.
type Config struct {
	// QueryTimeout bounds each individual (IP, query) upstream wait.
	// Defaults to 3 seconds, per §5.
	QueryTimeout time.Duration

	// MaxSubResolveDepth bounds glueless NS sub-resolution recursion.
	// Defaults to 16, per §4.3's "implementations SHOULD impose a
	// maximum depth" note.
	MaxSubResolveDepth int

	// MaxOuterIterations bounds the outer delegation-following loop as
	// a defensive ceiling against a pathological, non-advancing
	// NS-cache; the spec does not name a figure for this loop
	// specifically (only for sub-resolution), so a generous default is
	// used. Exceeding it is treated as ErrNoConnectivity.
	MaxOuterIterations int

	// NoConnectivity selects the behavior on transport exhaustion.
	NoConnectivity NoConnectivityPolicy
}

func (c *Config) setDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 3 * time.Second
	}
	if c.MaxSubResolveDepth == 0 {
		c.MaxSubResolveDepth = 16
	}
	if c.MaxOuterIterations == 0 {
		c.MaxOuterIterations = 32
	}
}

// Resolver is the iterative resolution engine. It holds no per-question
// state beyond a single call's stack: all resolution progress is
// realized as writes to the cache, which is what makes resolution
// restartable from cache after a crash (§4.3 "Design rationale").
type Resolver struct {
	cache *cache.Cache
	guard *spoofguard.Guard
	cfg   Config
}

// New builds a Resolver over the given cache.
func New(c *cache.Cache, cfg Config) *Resolver {
	cfg.setDefaults()
	return &Resolver{cache: c, guard: spoofguard.New(), cfg: cfg}
}

// Resolve implements §4.3's single operation: resolve(question) ->
// (RCODE, answers). ctx governs cancellation of in-flight upstream
// waits only; there is no overall per-call deadline (matching the
// source, which the spec notes as a gap an implementation SHOULD close
// — callers wanting a cap should derive ctx with their own timeout).
func (r *Resolver) Resolve(ctx context.Context, q packet.Question) (rcode uint8, answers []packet.RR, err error) {
	return r.resolveDepth(ctx, q, 0)
}

func (r *Resolver) resolveDepth(ctx context.Context, q packet.Question, depth int) (uint8, []packet.RR, error) {
	if q.Class != packet.ClassIN {
		return packet.RcodeNotImplemented, nil, nil
	}

	now := time.Now()

	if q.Type == packet.TypeA || q.Type == packet.TypeNS {
		if rrs := r.cacheAnswer(q, now); len(rrs) > 0 {
			return packet.RcodeNoError, rrs, nil
		}
	}

	rcode, answers, err := r.resolveIterative(ctx, q, depth, now)
	if err != nil {
		if errors.Is(err, ErrNoConnectivity) && r.cfg.NoConnectivity == PolicyServfail {
			return packet.RcodeServerFailure, nil, nil
		}
		return 0, nil, err
	}
	return rcode, answers, nil
}

// cacheAnswer synthesizes RRs for a cache hit, per §4.3 step 1.
func (r *Resolver) cacheAnswer(q packet.Question, now time.Time) []packet.RR {
	var recs []cache.Record
	switch q.Type {
	case packet.TypeA:
		recs = r.cache.LookupA(q.Name, now)
	case packet.TypeNS:
		recs = r.cache.LookupNS(q.Name, now)
	default:
		return nil
	}
	if len(recs) == 0 {
		return nil
	}
	out := make([]packet.RR, len(recs))
	for i, rec := range recs {
		out[i] = packet.CreateRR(q.Name, q.Type, rec.Data, rec.Expiry, now.Unix())
	}
	return out
}

// resolveIterative implements §4.3 step 2: the outer delegation-
// following loop.
func (r *Resolver) resolveIterative(ctx context.Context, q packet.Question, depth int, now time.Time) (uint8, []packet.RR, error) {
	for iter := 0; iter < r.cfg.MaxOuterIterations; iter++ {
		now = time.Now()
		zone := r.cache.ZoneFor(q.Name, now)
		servers := r.cache.LookupNS(zone, now)
		if len(servers) == 0 {
			// The root-zone invariant guarantees this cannot happen in
			// steady state; treat it as exhaustion rather than panic.
			return 0, nil, ErrNoConnectivity
		}

		pureDelegation := false

		for _, srv := range servers {
			ips, err := r.serverIPs(ctx, srv.Data, depth, now)
			if err != nil || len(ips) == 0 {
				continue
			}

			for _, ip := range ips {
				reply, err := r.queryOne(ctx, ip.Data, q)
				if err != nil {
					continue // timeout: try next IP
				}

				if reply.Header.Rcode != packet.RcodeNoError {
					return reply.Header.Rcode, nil, nil
				}

				if ingestErr := r.cache.Ingest(reply, time.Now()); ingestErr != nil {
					return 0, nil, fmt.Errorf("resolver: ingesting reply: %w", ingestErr)
				}

				if len(reply.Answer) > 0 {
					return packet.RcodeNoError, reply.Answer, nil
				}

				pureDelegation = true
				break
			}
			if pureDelegation {
				break
			}
		}

		if pureDelegation {
			continue
		}
		return 0, nil, ErrNoConnectivity
	}
	return 0, nil, ErrNoConnectivity
}

// serverIPs returns the live A-cache IPs for a nameserver name,
// recursively sub-resolving it first if no glue is cached (§4.3 step
// 2b).
func (r *Resolver) serverIPs(ctx context.Context, nsName string, depth int, now time.Time) ([]cache.Record, error) {
	if ips := r.cache.LookupA(nsName, now); len(ips) > 0 {
		return ips, nil
	}

	if depth >= r.cfg.MaxSubResolveDepth {
		return nil, nil
	}

	subRcode, _, err := r.resolveDepth(ctx, packet.Question{Name: nsName, Type: packet.TypeA, Class: packet.ClassIN}, depth+1)
	if err != nil {
		return nil, err
	}
	if subRcode != packet.RcodeNoError {
		return nil, nil
	}

	return r.cache.LookupA(nsName, time.Now()), nil
}

// upstreamPort is the port every upstream query is sent to. Tests point
// it at a local fake server.
var upstreamPort = "53"

// queryOne sends q to addr:upstreamPort (53) over a fresh ephemeral UDP
// socket and waits up to QueryTimeout for a correlated reply (matching
// ID), per §5's recommended deviation from the source's shared-socket
// model.
func (r *Resolver) queryOne(ctx context.Context, addr string, q packet.Question) (*packet.Message, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	id := packet.NewID()
	query := packet.CreateQuery(q.Name, q.Type, id)
	query.Header.RD = false // iterative queries do not request recursion
	wire, err := query.ToBytes()
	if err != nil {
		return nil, err
	}

	dest, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr, upstreamPort))
	if err != nil {
		return nil, err
	}
	wantTag := r.guard.Tag(id, q.Name, q.Type, q.Class, dest.String())

	deadline := time.Now().Add(r.cfg.QueryTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	if _, err := conn.WriteToUDP(wire, dest); err != nil {
		return nil, err
	}

	buf := make([]byte, 512)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("resolver: timeout waiting for reply from %s", addr)
		}
		if err := conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return nil, err
		}

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, err
		}
		if !from.IP.Equal(dest.IP) {
			continue // not from the server we queried; keep waiting
		}

		reply, err := packet.NewParser(buf[:n]).Parse()
		if err != nil {
			continue // malformed reply: keep waiting for the real one
		}
		if reply.Header.ID != id {
			continue // drop mismatched ID, keep waiting within budget
		}
		if len(reply.Question) == 0 {
			continue // no echoed question to correlate against: not our reply
		}
		rq := reply.Question[0]
		if r.guard.Tag(id, rq.Name, rq.Type, rq.Class, dest.String()) != wantTag {
			continue // correlation tag mismatch: not the reply we sent for
		}
		return reply, nil
	}
}


