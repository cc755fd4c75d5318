package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dnsscience/ripd/internal/hints"
	"github.com/dnsscience/ripd/internal/packet"
)

// ErrUnsupportedClass is returned by Ingest/InsertRR when a record's
// class is not IN. The spec treats this as a hard error at insert time
// (as opposed to parse time, where an unsupported type/class yields the
// absent sentinel instead of failing).
var ErrUnsupportedClass = fmt.Errorf("cache: record class is not IN")

// Ingest folds every A/NS record from a parsed message's answer,
// authority, and additional sections into the cache (§4.2 `ingest`).
// Records of other types, or whose rdata decode failed (absent
// sentinel), are skipped silently — only a present A/NS rdata with
// class IN is ever a hard error source, and that can only happen for a
// record this codec decoded, so in practice Ingest never errors on
// well-formed input from internal/packet.
func (c *Cache) Ingest(m *packet.Message, now time.Time) error {
	for _, section := range [][]packet.RR{m.Answer, m.Authority, m.Additional} {
		for _, rr := range section {
			if rr.Type != packet.TypeA && rr.Type != packet.TypeNS {
				continue
			}
			if !rr.DataOK {
				continue
			}
			if err := c.InsertRR(rr, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// InsertRR inserts a single A or NS record, enforcing the class-IN
// invariant at insert time.
func (c *Cache) InsertRR(rr packet.RR, now time.Time) error {
	if rr.Class != packet.ClassIN {
		return ErrUnsupportedClass
	}
	expiry := now.Unix() + int64(rr.TTL)
	switch rr.Type {
	case packet.TypeA:
		c.InsertA(rr.Name, rr.Data, expiry)
	case packet.TypeNS:
		c.InsertNS(rr.Name, rr.Data, expiry)
	}
	return nil
}

// SeedFromHints populates A[root] = [(ip, never)] and NS[""] =
// [(root, never), ...] for every hint, establishing the root-zone
// invariant required before any resolution can begin (§3, §4.2). The
// hints themselves are loaded and validated by internal/hints.
func (c *Cache) SeedFromHints(h hints.Hints) {
	for name, ip := range h {
		c.InsertA(name, ip, NeverExpires)
		c.InsertNS("", name, NeverExpires)
	}
}

// diskRecord is the on-wire JSON shape of a single cached pair: a
// 2-element array, not an object, per §6 (`["a.b.c.d", <expiry|-1>]`).
type diskRecord [2]interface{}

func toDisk(records []Record) []diskRecord {
	out := make([]diskRecord, len(records))
	for i, r := range records {
		out[i] = diskRecord{r.Data, r.Expiry}
	}
	return out
}

func fromDisk(raw map[string][]diskRecord) (map[string][]Record, error) {
	out := make(map[string][]Record, len(raw))
	for name, list := range raw {
		records := make([]Record, 0, len(list))
		for _, pair := range list {
			data, ok := pair[0].(string)
			if !ok {
				return nil, fmt.Errorf("cache: malformed record data for %q", name)
			}
			expiryF, ok := pair[1].(float64)
			if !ok {
				return nil, fmt.Errorf("cache: malformed record expiry for %q", name)
			}
			records = append(records, Record{Data: data, Expiry: int64(expiryF)})
		}
		out[name] = records
	}
	return out, nil
}

func persistStore(path string, s *Store, now time.Time) error {
	snap := s.snapshot(now.Unix())
	disk := make(map[string][]diskRecord, len(snap))
	for name, records := range snap {
		disk[name] = toDisk(records)
	}
	data, err := json.Marshal(disk)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func loadStore(path string, s *Store) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var raw map[string][]diskRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("cache: parsing %s: %w", path, err)
	}
	records, err := fromDisk(raw)
	if err != nil {
		return err
	}
	s.replace(records)
	return nil
}

// PersistPaths names the two on-disk cache files (§6).
type PersistPaths struct {
	ACache  string
	NSCache string
}

// Persist writes both maps to their sibling files as single-line JSON
// objects, keyed by name, each value an array of [data, expiry] pairs.
func (c *Cache) Persist(paths PersistPaths, now time.Time) error {
	if err := persistStore(paths.ACache, c.A, now); err != nil {
		return fmt.Errorf("cache: persisting A cache: %w", err)
	}
	if err := persistStore(paths.NSCache, c.NS, now); err != nil {
		return fmt.Errorf("cache: persisting NS cache: %w", err)
	}
	return nil
}

// LoadOrSeed loads both cache files if present; if either file is
// absent, it seeds both maps from the root hints, on top of whatever the
// other file held (§4.2 `persist()`/`load()`). It then sweeps both maps.
func (c *Cache) LoadOrSeed(paths PersistPaths, rootHints hints.Hints, now time.Time) error {
	aErr := loadStore(paths.ACache, c.A)
	nsErr := loadStore(paths.NSCache, c.NS)

	if aErr != nil && !os.IsNotExist(aErr) {
		return fmt.Errorf("cache: loading A cache: %w", aErr)
	}
	if nsErr != nil && !os.IsNotExist(nsErr) {
		return fmt.Errorf("cache: loading NS cache: %w", nsErr)
	}

	if os.IsNotExist(aErr) || os.IsNotExist(nsErr) {
		c.SeedFromHints(rootHints)
	}

	c.Sweep(now)
	return nil
}


