package resolver

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/dnsscience/ripd/internal/cache"
	"github.com/dnsscience/ripd/internal/packet"
)

func TestResolve_RejectsNonIN(t *testing.T) {
	r := New(cache.New(cache.Config{}), Config{})
	rcode, answers, err := r.Resolve(context.Background(), packet.Question{
		Name: "example.com", Type: packet.TypeA, Class: packet.ClassCH,
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if rcode != packet.RcodeNotImplemented {
		t.Errorf("rcode = %d, want RcodeNotImplemented", rcode)
	}
	if answers != nil {
		t.Errorf("answers = %v, want nil", answers)
	}
}

func TestResolve_CacheHitA(t *testing.T) {
	c := cache.New(cache.Config{})
	now := time.Now()
	c.InsertA("example.com", "192.0.2.1", now.Unix()+300)

	r := New(c, Config{})
	rcode, answers, err := r.Resolve(context.Background(), packet.Question{
		Name: "example.com", Type: packet.TypeA, Class: packet.ClassIN,
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if rcode != packet.RcodeNoError {
		t.Errorf("rcode = %d, want RcodeNoError", rcode)
	}
	if len(answers) != 1 || answers[0].Data != "192.0.2.1" {
		t.Errorf("answers = %v, want one A record for 192.0.2.1", answers)
	}
}

func TestResolve_CacheHitNS(t *testing.T) {
	c := cache.New(cache.Config{})
	now := time.Now()
	c.InsertNS("example.com", "ns1.example.com", now.Unix()+300)

	r := New(c, Config{})
	rcode, answers, err := r.Resolve(context.Background(), packet.Question{
		Name: "example.com", Type: packet.TypeNS, Class: packet.ClassIN,
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if rcode != packet.RcodeNoError {
		t.Errorf("rcode = %d, want RcodeNoError", rcode)
	}
	if len(answers) != 1 || answers[0].Data != "ns1.example.com" {
		t.Errorf("answers = %v, want one NS record", answers)
	}
}

// TestResolve_NoConnectivityServfail exercises the iterative path with a
// cache that has the root-zone invariant (NS[""]) but whose only
// delegation points at a nameserver with no reachable A record and
// nothing further to sub-resolve — transport is exhausted immediately,
// and the default policy must map that to SERVER_FAILURE rather than an
// error.
func TestResolve_NoConnectivityServfail(t *testing.T) {
	c := cache.New(cache.Config{})
	now := time.Now()
	// Root NS delegation to a nameserver name with no A glue and no
	// deeper zone that could resolve it (points at itself, which the
	// depth bound will eventually give up on).
	c.InsertNS("", "ns.invalid", cache.NeverExpires)

	r := New(c, Config{MaxSubResolveDepth: 1, MaxOuterIterations: 2})
	rcode, answers, err := r.Resolve(context.Background(), packet.Question{
		Name: "example.com", Type: packet.TypeA, Class: packet.ClassIN,
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if rcode != packet.RcodeServerFailure {
		t.Errorf("rcode = %d, want RcodeServerFailure", rcode)
	}
	if answers != nil {
		t.Errorf("answers = %v, want nil", answers)
	}
}

func TestResolve_NoConnectivityFatal(t *testing.T) {
	c := cache.New(cache.Config{})
	c.InsertNS("", "ns.invalid", cache.NeverExpires)

	r := New(c, Config{MaxSubResolveDepth: 1, MaxOuterIterations: 2, NoConnectivity: PolicyFatal})
	_, _, err := r.Resolve(context.Background(), packet.Question{
		Name: "example.com", Type: packet.TypeA, Class: packet.ClassIN,
	})
	if err == nil {
		t.Fatal("expected ErrNoConnectivity, got nil")
	}
}

// TestResolve_IterativeAgainstFakeServer spins up a real UDP listener
// that answers any A query with a fixed record, proving out the full
// socket-per-query path (queryOne) end to end.
func TestResolve_IterativeAgainstFakeServer(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error: %v", err)
	}
	defer conn.Close()

	serverPort := conn.LocalAddr().(*net.UDPAddr).Port
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 512)
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		query, err := packet.NewParser(buf[:n]).Parse()
		if err != nil {
			return
		}
		reply := packet.CreateResponse(query.Header.ID, packet.RcodeNoError, false, true,
			query.Question,
			[]packet.RR{{Name: query.Question[0].Name, Type: packet.TypeA, Class: packet.ClassIN, TTL: 300, Data: "192.0.2.50", DataOK: true}},
		)
		wire, err := reply.ToBytes()
		if err != nil {
			return
		}
		conn.WriteToUDP(wire, from)
	}()

	c := cache.New(cache.Config{})
	c.InsertNS("", "ns.test", cache.NeverExpires)
	c.InsertA("ns.test", "127.0.0.1", cache.NeverExpires)

	r := New(c, Config{QueryTimeout: 2 * time.Second})
	// Exercise queryOne in isolation, with upstream queries redirected
	// from the well-known port to the fake server's port.
	upstreamPort = strconv.Itoa(serverPort)
	defer func() { upstreamPort = "53" }()
	reply, err := r.queryOne(context.Background(), "127.0.0.1", packet.Question{Name: "example.com", Type: packet.TypeA, Class: packet.ClassIN})
	<-done
	if err != nil {
		t.Fatalf("queryOne() error: %v", err)
	}
	if len(reply.Answer) != 1 || reply.Answer[0].Data != "192.0.2.50" {
		t.Errorf("reply.Answer = %v, want one record for 192.0.2.50", reply.Answer)
	}
}

// TestQueryOne_RejectsMismatchedQuestionEcho proves the correlation
// check does more than recompute its own tag from the outgoing
// request: a reply with the right ID and source address but an
// echoed question for a different name must be rejected, not
// accepted as a match.
func TestQueryOne_RejectsMismatchedQuestionEcho(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error: %v", err)
	}
	defer conn.Close()

	serverPort := conn.LocalAddr().(*net.UDPAddr).Port
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 512)
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		query, err := packet.NewParser(buf[:n]).Parse()
		if err != nil {
			return
		}
		// Echo the right ID but a different question than was asked.
		forged := []packet.Question{{Name: "attacker.example", Type: packet.TypeA, Class: packet.ClassIN}}
		reply := packet.CreateResponse(query.Header.ID, packet.RcodeNoError, false, true,
			forged,
			[]packet.RR{{Name: "attacker.example", Type: packet.TypeA, Class: packet.ClassIN, TTL: 300, Data: "198.51.100.9", DataOK: true}},
		)
		wire, err := reply.ToBytes()
		if err != nil {
			return
		}
		conn.WriteToUDP(wire, from)
	}()

	c := cache.New(cache.Config{})
	r := New(c, Config{QueryTimeout: 200 * time.Millisecond})

	upstreamPort = strconv.Itoa(serverPort)
	defer func() { upstreamPort = "53" }()
	_, err = r.queryOne(context.Background(), "127.0.0.1", packet.Question{Name: "example.com", Type: packet.TypeA, Class: packet.ClassIN})
	<-done
	if err == nil {
		t.Fatal("queryOne() succeeded on a reply echoing the wrong question, want a timeout error")
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()
	if cfg.QueryTimeout != 3*time.Second {
		t.Errorf("QueryTimeout = %v, want 3s", cfg.QueryTimeout)
	}
	if cfg.MaxSubResolveDepth != 16 {
		t.Errorf("MaxSubResolveDepth = %d, want 16", cfg.MaxSubResolveDepth)
	}
	if cfg.MaxOuterIterations != 32 {
		t.Errorf("MaxOuterIterations = %d, want 32", cfg.MaxOuterIterations)
	}
}

func TestServerIPs_CachedGlue(t *testing.T) {
	c := cache.New(cache.Config{})
	now := time.Now()
	// ns1.example.com already has A glue cached, so serverIPs returns it
	// directly without starting a sub-resolution.
	c.InsertA("ns1.example.com", "192.0.2.9", now.Unix()+300)

	r := New(c, Config{})
	recs, err := r.serverIPs(context.Background(), "ns1.example.com", 0, now)
	if err != nil {
		t.Fatalf("serverIPs() error: %v", err)
	}
	if len(recs) != 1 || recs[0].Data != "192.0.2.9" {
		t.Errorf("recs = %v, want cached glue", recs)
	}
}

func TestServerIPs_DepthExhausted(t *testing.T) {
	c := cache.New(cache.Config{})
	r := New(c, Config{MaxSubResolveDepth: 1})
	recs, err := r.serverIPs(context.Background(), "ns1.example.com", 1, time.Now())
	if err != nil {
		t.Fatalf("serverIPs() error: %v", err)
	}
	if recs != nil {
		t.Errorf("recs = %v, want nil at depth bound", recs)
	}
}
