// Package hints loads and validates the root server hints file: the
// bootstrap set of root nameserver hostname -> IPv4 address pairs that
// seed the cache before any resolution can occur (§4.5). Generating
// this file is an explicit non-goal; this package only loads and
// validates what it finds.
package hints

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
)

// Hints maps a root nameserver hostname to its IPv4 address string.
type Hints map[string]string

// Load reads the single-line JSON object described in §6 and validates
// it: the map must be non-empty, and every value must parse as an
// IPv4 address (glueless IPv6-only root hints are not supported, matching
// the cache's A-only glue model).
func Load(path string) (Hints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var h Hints
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("hints: parsing %s: %w", path, err)
	}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("hints: validating %s: %w", path, err)
	}
	return h, nil
}

// Validate rejects an empty hints set or any non-IPv4 value.
func (h Hints) Validate() error {
	if len(h) == 0 {
		return fmt.Errorf("hints: no entries")
	}
	for name, addr := range h {
		ip := net.ParseIP(addr)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("hints: %q has non-IPv4 address %q", name, addr)
		}
	}
	return nil
}


