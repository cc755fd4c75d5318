package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dnsscience/ripd/internal/hints"
	"github.com/dnsscience/ripd/internal/packet"
)

func TestInsertDedupAndMaxExpiry(t *testing.T) {
	c := New(Config{})
	t1 := time.Unix(1000, 0)
	t2 := time.Unix(2000, 0)

	c.InsertA("example.com", "192.0.2.1", t1.Unix()+60)
	c.InsertA("example.com", "192.0.2.1", t2.Unix()+60)

	recs := c.LookupA("example.com", time.Unix(1500, 0))
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1 (deduped)", len(recs))
	}
	if recs[0].Expiry != 2060 {
		t.Errorf("expiry = %d, want max(1060,2060)=2060", recs[0].Expiry)
	}
}

func TestLookupFiltersExpired(t *testing.T) {
	c := New(Config{})
	now := time.Unix(10_000, 0)
	c.InsertA("stale.example", "192.0.2.9", now.Unix()-1)
	c.InsertA("fresh.example", "192.0.2.10", now.Unix()+60)

	if recs := c.LookupA("stale.example", now); len(recs) != 0 {
		t.Errorf("expected stale record filtered out, got %v", recs)
	}
	if recs := c.LookupA("fresh.example", now); len(recs) != 1 {
		t.Errorf("expected fresh record present, got %v", recs)
	}
}

func TestNeverExpiresSurvives(t *testing.T) {
	c := New(Config{})
	c.InsertA("a.root-servers.net", "198.41.0.4", NeverExpires)

	far := time.Unix(1<<40, 0)
	recs := c.LookupA("a.root-servers.net", far)
	if len(recs) != 1 || recs[0].Expiry != NeverExpires {
		t.Errorf("expected never-expiring record to survive, got %v", recs)
	}
}

func TestSweepDropsExpired(t *testing.T) {
	c := New(Config{})
	now := time.Unix(10_000, 0)
	c.InsertA("gone.example", "192.0.2.1", now.Unix()-5)
	c.InsertA("keep.example", "192.0.2.2", now.Unix()+5)

	c.Sweep(now)

	if recs := c.A.lookup("gone.example", now.Unix()); len(recs) != 0 {
		t.Errorf("expected gone.example purged, got %v", recs)
	}
	if recs := c.A.lookup("keep.example", now.Unix()); len(recs) != 1 {
		t.Errorf("expected keep.example retained, got %v", recs)
	}
}

func TestZoneForLongestSuffix(t *testing.T) {
	c := New(Config{})
	now := time.Unix(1000, 0)
	future := now.Unix() + 3600

	c.InsertNS("", "a.root-servers.net", NeverExpires)
	c.InsertNS("com", "a.gtld-servers.net", future)
	c.InsertNS("example.com", "ns1.example.com", future)

	cases := []struct {
		name string
		want string
	}{
		{"www.example.com", "example.com"},
		{"example.com", "example.com"},
		{"other.com", "com"},
		{"net", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := c.ZoneFor(tc.name, now); got != tc.want {
			t.Errorf("ZoneFor(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestZoneForIgnoresExpiredDelegation(t *testing.T) {
	c := New(Config{})
	now := time.Unix(10_000, 0)
	c.InsertNS("", "a.root-servers.net", NeverExpires)
	c.InsertNS("example.com", "ns1.example.com", now.Unix()-1) // expired

	if got := c.ZoneFor("www.example.com", now); got != "" {
		t.Errorf("ZoneFor with expired delegation = %q, want root \"\"", got)
	}
}

func TestIngestSkipsNonANSTypes(t *testing.T) {
	c := New(Config{})
	now := time.Unix(1000, 0)

	msg := &packet.Message{
		Answer: []packet.RR{
			{Name: "example.com", Type: packet.TypeA, Class: packet.ClassIN, TTL: 60, Data: "192.0.2.1", DataOK: true},
			{Name: "example.com", Type: packet.TypeCNAME, Class: packet.ClassIN, TTL: 60, DataOK: false},
			{Name: "ns1.example.com", Type: packet.TypeAAAA, Class: packet.ClassIN, TTL: 60, Data: "::1", DataOK: true},
		},
		Authority: []packet.RR{
			{Name: "example.com", Type: packet.TypeNS, Class: packet.ClassIN, TTL: 120, Data: "ns1.example.com", DataOK: true},
		},
	}

	if err := c.Ingest(msg, now); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	if recs := c.LookupA("example.com", now); len(recs) != 1 {
		t.Errorf("expected 1 A record, got %v", recs)
	}
	if recs := c.LookupNS("example.com", now); len(recs) != 1 {
		t.Errorf("expected 1 NS record, got %v", recs)
	}
	// AAAA is decoded but never cached.
	if recs := c.A.lookup("ns1.example.com", now.Unix()); len(recs) != 0 {
		t.Errorf("expected AAAA not cached, got %v", recs)
	}
}

func TestInsertRRRejectsNonIN(t *testing.T) {
	c := New(Config{})
	rr := packet.RR{Name: "example.com", Type: packet.TypeA, Class: packet.ClassCH, TTL: 60, Data: "192.0.2.1", DataOK: true}
	if err := c.InsertRR(rr, time.Unix(1000, 0)); err == nil {
		t.Error("expected ErrUnsupportedClass for class != IN")
	}
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	paths := PersistPaths{
		ACache:  filepath.Join(dir, "a_records_cache.txt"),
		NSCache: filepath.Join(dir, "ns_records_cache.txt"),
	}

	c := New(Config{})
	now := time.Unix(50_000, 0)
	c.InsertA("example.com", "192.0.2.1", now.Unix()+300)
	c.InsertNS("", "a.root-servers.net", NeverExpires)

	if err := c.Persist(paths, now); err != nil {
		t.Fatalf("Persist() error: %v", err)
	}

	loaded := New(Config{})
	if err := loaded.LoadOrSeed(paths, nil, now); err != nil {
		t.Fatalf("LoadOrSeed() error: %v", err)
	}

	if recs := loaded.LookupA("example.com", now); len(recs) != 1 || recs[0].Data != "192.0.2.1" {
		t.Errorf("A cache did not round-trip: %v", recs)
	}
	if recs := loaded.LookupNS("", now); len(recs) != 1 {
		t.Errorf("NS cache did not round-trip: %v", recs)
	}
}

func TestLoadOrSeedFallsBackToHintsWhenFilesMissing(t *testing.T) {
	dir := t.TempDir()
	paths := PersistPaths{
		ACache:  filepath.Join(dir, "missing_a.txt"),
		NSCache: filepath.Join(dir, "missing_ns.txt"),
	}
	rootHints := hints.Hints{"a.root-servers.net": "198.41.0.4"}

	c := New(Config{})
	if err := c.LoadOrSeed(paths, rootHints, time.Unix(1000, 0)); err != nil {
		t.Fatalf("LoadOrSeed() error: %v", err)
	}

	now := time.Unix(1000, 0)
	if recs := c.LookupNS("", now); len(recs) != 1 || recs[0].Data != "a.root-servers.net" {
		t.Errorf("expected NS[\"\"] seeded from hints, got %v", recs)
	}
	if recs := c.LookupA("a.root-servers.net", now); len(recs) != 1 || recs[0].Data != "198.41.0.4" {
		t.Errorf("expected A[root] seeded from hints, got %v", recs)
	}
}

