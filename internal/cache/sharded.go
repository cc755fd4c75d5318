// Package cache implements the resolver's two-map record store: A and
// NS records keyed by domain name, each holding an ordered, deduplicated
// list of (data, absolute-expiry) pairs. The storage is sharded the way
// the teacher's generic response cache was — a fixed number of
// independently-locked buckets selected by a hash of the key — adapted
// here to shard by domain name rather than by a single query hash, since
// every operation (insert, lookup, longest-suffix zone scan) is keyed by
// name, not by a single cached response.
package cache

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/dchest/siphash"
)

const (
	defaultShardCount = 64

	// NeverExpires is the sentinel absolute-expiry value used for
	// root-hints seed entries: they are never swept, and render with a
	// synthetic 24-hour TTL when emitted to a client.
	NeverExpires int64 = -1
)

// Record is a single cached (data, absolute-expiry) pair.
type Record struct {
	Data   string
	Expiry int64 // unix seconds, or NeverExpires
}

func (r Record) live(now int64) bool {
	return r.Expiry == NeverExpires || r.Expiry > now
}

// shard is one lock-protected bucket of the name -> []Record map.
type shard struct {
	mu      sync.RWMutex
	entries map[string][]Record
}

// Store is a single record map (used once for A, once for NS records).
// Shard selection is keyed by SipHash-2-4 under a per-process random
// secret rather than a fixed hash: domain names are attacker-controlled
// (they arrive verbatim in client queries and upstream responses), so a
// predictable hash would let a remote party pick names that all land in
// one shard and serialize every lookup behind a single mutex — the same
// hash-flooding concern the teacher's cookie manager defends against on
// the wire, applied here to an in-memory structure instead.
type Store struct {
	shards    []*shard
	shardMask uint64
	key       [16]byte
}

func newStore(shardCount int) *Store {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	s := &Store{
		shards:    make([]*shard, n),
		shardMask: uint64(n - 1),
	}
	if _, err := rand.Read(s.key[:]); err != nil {
		panic("cache: failed to read random shard secret: " + err.Error())
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string][]Record)}
	}
	return s
}

func (s *Store) shardFor(name string) *shard {
	h := siphash.New(s.key[:])
	h.Write([]byte(name))
	return s.shards[h.Sum64()&s.shardMask]
}

// insert applies the dedup-by-data, max-expiry-on-duplicate rule (§4.2
// `insert`). expiry is an absolute time in unix seconds, or
// NeverExpires.
func (s *Store) insert(name, data string, expiry int64) {
	sh := s.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	list := sh.entries[name]
	for i := range list {
		if list[i].Data == data {
			list[i].Expiry = maxExpiry(list[i].Expiry, expiry)
			return
		}
	}
	sh.entries[name] = append(list, Record{Data: data, Expiry: expiry})
}

func maxExpiry(a, b int64) int64 {
	if a == NeverExpires || b == NeverExpires {
		return NeverExpires
	}
	if a > b {
		return a
	}
	return b
}

// lookup returns the live records stored under name, filtering expired
// entries lazily (§4.2 `lookup`). The returned slice is a copy; callers
// may not mutate the store through it.
func (s *Store) lookup(name string, now int64) []Record {
	sh := s.shardFor(name)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	list := sh.entries[name]
	if len(list) == 0 {
		return nil
	}
	out := make([]Record, 0, len(list))
	for _, r := range list {
		if r.live(now) {
			out = append(out, r)
		}
	}
	return out
}

// sweep drops every entry whose expiry has passed, across all shards.
func (s *Store) sweep(now int64) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for name, list := range sh.entries {
			kept := list[:0]
			for _, r := range list {
				if r.live(now) {
					kept = append(kept, r)
				}
			}
			if len(kept) == 0 {
				delete(sh.entries, name)
			} else {
				sh.entries[name] = kept
			}
		}
		sh.mu.Unlock()
	}
}

// names returns every key currently holding at least one live record.
// Used by the longest-suffix zone scan.
func (s *Store) names(now int64) []string {
	var out []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for name, list := range sh.entries {
			for _, r := range list {
				if r.live(now) {
					out = append(out, name)
					break
				}
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// snapshot returns the full live contents of the store as a plain map,
// for JSON persistence.
func (s *Store) snapshot(now int64) map[string][]Record {
	out := make(map[string][]Record)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for name, list := range sh.entries {
			var live []Record
			for _, r := range list {
				if r.live(now) {
					live = append(live, r)
				}
			}
			if len(live) > 0 {
				out[name] = live
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

func (s *Store) replace(data map[string][]Record) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string][]Record)
		sh.mu.Unlock()
	}
	for name, list := range data {
		sh := s.shardFor(name)
		sh.mu.Lock()
		sh.entries[name] = append([]Record(nil), list...)
		sh.mu.Unlock()
	}
}

// Cache is the resolver's full cache: the A store and the NS store,
// kept separate because their invariants (root-zone seeding on NS, no
// such requirement on A) differ.
type Cache struct {
	A  *Store
	NS *Store
}

// Config controls shard fan-out; zero value is fine for production use.
type Config struct {
	ShardCount int
}

// New builds an empty cache. Callers must still seed or load it before
// the root-zone invariant (a non-empty NS[""]) holds.
func New(cfg Config) *Cache {
	return &Cache{
		A:  newStore(cfg.ShardCount),
		NS: newStore(cfg.ShardCount),
	}
}

// LookupA returns the live A records for name.
func (c *Cache) LookupA(name string, now time.Time) []Record {
	return c.A.lookup(name, now.Unix())
}

// LookupNS returns the live NS records for zone.
func (c *Cache) LookupNS(zone string, now time.Time) []Record {
	return c.NS.lookup(zone, now.Unix())
}

// InsertA inserts/refreshes an A record.
func (c *Cache) InsertA(name, ip string, expiry int64) {
	c.A.insert(name, ip, expiry)
}

// InsertNS inserts/refreshes an NS delegation record.
func (c *Cache) InsertNS(zone, nsName string, expiry int64) {
	c.NS.insert(zone, nsName, expiry)
}

// Sweep drops expired entries from both maps. Run at load time; callers
// MAY also run it periodically.
func (c *Cache) Sweep(now time.Time) {
	unix := now.Unix()
	c.A.sweep(unix)
	c.NS.sweep(unix)
}

// ZoneFor returns the longest dotted suffix of name present as a
// non-empty, live NS-cache key, or "" (the root, which always matches)
// if nothing closer is stored. See §4.2 "Zone lookup".
func (c *Cache) ZoneFor(name string, now time.Time) string {
	keys := c.NS.names(now.Unix())
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	if keySet[name] {
		return name
	}

	labels := strings.Split(name, ".")
	best := ""
	for i := range labels {
		suffix := strings.Join(labels[i:], ".")
		if keySet[suffix] && len(suffix) > len(best) {
			best = suffix
		}
	}
	if keySet[""] && best == "" {
		return ""
	}
	return best
}
