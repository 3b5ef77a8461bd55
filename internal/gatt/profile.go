package gatt

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Profile is the root of a populated GATT tree: a peripheral's set of
// services, discovered once at open time (§4.B: "Profile population is
// eager at open"). Mid-session changes are not modeled.
type Profile struct {
	services *orderedmap.OrderedMap[UUID, *Service]
}

// NewProfile returns an empty Profile ready to be populated by a transport
// adapter during Open.
func NewProfile() *Profile {
	return &Profile{services: orderedmap.New[UUID, *Service]()}
}

// AddService appends a discovered service, in discovery order.
func (p *Profile) AddService(uuid UUID, knownName string) *Service {
	s := &Service{uuid: uuid, knownName: knownName, profile: p, characteristics: orderedmap.New[UUID, *Characteristic]()}
	p.services.Set(uuid, s)
	return s
}

// Services returns all discovered services in discovery order.
func (p *Profile) Services() []*Service {
	out := make([]*Service, 0, p.services.Len())
	for pair := p.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// FindService looks up a service by UUID. A missing service is not an error
// at the tree level (§4.B) — callers (drivers) decide whether absence is
// fatal.
func (p *Profile) FindService(uuid UUID) (*Service, bool) {
	return p.services.Get(uuid)
}

// Service is a GATT service: a set of characteristics, each owning an
// upward reference to this service.
type Service struct {
	uuid            UUID
	knownName       string
	profile         *Profile
	characteristics *orderedmap.OrderedMap[UUID, *Characteristic]
}

// UUID returns the service's canonical UUID.
func (s *Service) UUID() UUID { return s.uuid }

// KnownName returns a human-readable name for well-known services, or "".
func (s *Service) KnownName() string { return s.knownName }

// Profile returns the owning profile (upward navigation).
func (s *Service) Profile() *Profile { return s.profile }

// AddCharacteristic appends a discovered characteristic, in discovery
// order, returning exactly one owned "value handle" node.
func (s *Service) AddCharacteristic(uuid UUID, knownName string, props Properties) *Characteristic {
	c := &Characteristic{
		uuid: uuid, knownName: knownName, properties: props, service: s,
		descriptors: orderedmap.New[UUID, *Descriptor](),
	}
	s.characteristics.Set(uuid, c)
	return c
}

// Characteristics returns all discovered characteristics in discovery
// order.
func (s *Service) Characteristics() []*Characteristic {
	out := make([]*Characteristic, 0, s.characteristics.Len())
	for pair := s.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// FindCharacteristic looks up a characteristic by UUID scoped to this
// service.
func (s *Service) FindCharacteristic(uuid UUID) (*Characteristic, bool) {
	return s.characteristics.Get(uuid)
}

// Characteristic is a GATT characteristic: a named, typed attribute with
// properties, a set of descriptors, and one value (read via the transport
// adapter, not cached here).
type Characteristic struct {
	uuid        UUID
	knownName   string
	properties  Properties
	service     *Service
	descriptors *orderedmap.OrderedMap[UUID, *Descriptor]

	// Handle is the transport-specific attribute handle used by the
	// adapter for read/write/subscribe operations. Opaque to this package.
	Handle interface{}
}

// UUID returns the characteristic's canonical UUID.
func (c *Characteristic) UUID() UUID { return c.uuid }

// KnownName returns a human-readable name for well-known characteristics,
// or "".
func (c *Characteristic) KnownName() string { return c.knownName }

// Properties returns the characteristic's property bitflags.
func (c *Characteristic) Properties() Properties { return c.properties }

// Service returns the owning service (upward navigation).
func (c *Characteristic) Service() *Service { return c.service }

// AddDescriptor appends a discovered descriptor, in discovery order.
func (c *Characteristic) AddDescriptor(uuid UUID, knownName string) *Descriptor {
	d := &Descriptor{uuid: uuid, knownName: knownName, characteristic: c}
	c.descriptors.Set(uuid, d)
	return d
}

// Descriptors returns all discovered descriptors in discovery order.
func (c *Characteristic) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, c.descriptors.Len())
	for pair := c.descriptors.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// FindDescriptor looks up a descriptor by UUID scoped to this
// characteristic.
func (c *Characteristic) FindDescriptor(uuid UUID) (*Descriptor, bool) {
	return c.descriptors.Get(uuid)
}

// Descriptor is GATT metadata attached to a characteristic, notably the
// Client Characteristic Configuration (0x2902) that enables notify/indicate.
type Descriptor struct {
	uuid           UUID
	knownName      string
	characteristic *Characteristic

	// Handle is the transport-specific attribute handle, opaque here.
	Handle interface{}
}

// UUID returns the descriptor's canonical UUID.
func (d *Descriptor) UUID() UUID { return d.uuid }

// KnownName returns a human-readable name for well-known descriptors, or "".
func (d *Descriptor) KnownName() string { return d.knownName }

// Characteristic returns the owning characteristic (upward navigation).
func (d *Descriptor) Characteristic() *Characteristic { return d.characteristic }
