package sensor

import (
	"context"
	"strings"

	"github.com/srg/hslble/internal/gatt"
	"github.com/srg/hslble/internal/transport"
)

// Factory constructs a fresh Driver instance bound to nothing yet; one
// Driver instance is created per open slot so per-connection state
// (stream-start timestamp origins, control-point sequencing) never leaks
// across devices.
type Factory func() Driver

// registration pairs a Factory with the hints used to recognize its
// vendor device before a capability probe is attempted.
type registration struct {
	name           string
	serviceUUIDs   []gatt.UUID
	namePrefixes   []string // longest-prefix match against the advertised/GAP name
	factory        Factory
}

// Registry matches a discovered peripheral to the vendor Driver Factory
// most likely to recognize it, preferring an advertised vendor service
// UUID and falling back to a longest-matching device name prefix (§4.F:
// "dynamic vendor characteristic read vs. name-based fallback").
//
// Grounded on the teacher's devicefactory.DeviceFactory single-factory-var
// pattern, generalized to a table since this daemon supports more than one
// vendor.
type Registry struct {
	regs []registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds a vendor Factory, matched by any of the given advertised
// service UUIDs or, failing that, by the longest of namePrefixes that is a
// case-insensitive prefix of the peripheral's name.
func (r *Registry) Register(name string, serviceUUIDs []gatt.UUID, namePrefixes []string, factory Factory) {
	r.regs = append(r.regs, registration{
		name:         name,
		serviceUUIDs: serviceUUIDs,
		namePrefixes: namePrefixes,
		factory:      factory,
	})
}

// Match returns the Factory whose hints best fit advertisedServices/name,
// or nil if none match. Service-UUID matches always win over name
// matches; among name matches, the longest prefix wins.
func (r *Registry) Match(advertisedServices []gatt.UUID, name string) Factory {
	for _, reg := range r.regs {
		for _, want := range reg.serviceUUIDs {
			for _, have := range advertisedServices {
				if want.Equal(have) {
					return reg.factory
				}
			}
		}
	}

	lowerName := strings.ToLower(name)
	var best Factory
	bestLen := -1
	for _, reg := range r.regs {
		for _, prefix := range reg.namePrefixes {
			p := strings.ToLower(prefix)
			if strings.HasPrefix(lowerName, p) && len(p) > bestLen {
				best = reg.factory
				bestLen = len(p)
			}
		}
	}
	return best
}

// Probe runs every registered Factory's Probe against h until one
// recognizes it, used when Match can't decide from advertisement data
// alone (the peripheral must be connected first to read vendor
// characteristics).
func (r *Registry) Probe(ctx context.Context, h transport.Handle) (Driver, error) {
	for _, reg := range r.regs {
		d := reg.factory()
		caps, err := d.Probe(ctx, h)
		if err == nil && caps != 0 {
			return d, nil
		}
	}
	return nil, nil
}
