// Package transport defines the BLE transport abstraction (§4.A, §6): the
// seam between the device-agnostic slot/device-manager layer and a
// concrete radio stack. Grounded on the teacher's internal/device package
// (Device/Connection/Characteristic interfaces, NotFoundError/
// ConnectionError taxonomy), generalized from a single-device CLI
// connection model to the daemon's multi-device open/close lifecycle.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/srg/hslble/internal/gatt"
)

// Error taxonomy (§7): every transport-layer failure wraps one of these
// sentinels so callers can branch with errors.Is without parsing strings.
var (
	ErrNotFound             = errors.New("transport: not found")
	ErrAlreadyOpenElsewhere = errors.New("transport: already open on another handle")
	ErrNotPermitted         = errors.New("transport: operation not permitted")
	ErrTimeout              = errors.New("transport: timeout")
	ErrTransport            = errors.New("transport: radio or link failure")
)

// NotFoundError reports a missing service, characteristic, or descriptor.
type NotFoundError struct {
	Resource string // "service", "characteristic", "descriptor"
	UUIDs    []string
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[len(e.UUIDs)-1])
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Entry is one scan-result entry: an advertising peripheral not yet
// connected.
type Entry interface {
	Address() string
	Name() string
	RSSI() int
	AdvertisedServices() []gatt.UUID
	ManufacturerData() []byte
}

// Enumerator discovers nearby peripherals by passively scanning
// advertisements. Implementations must tolerate repeated Scan calls:
// §4.I's hot-plug poller calls it on a fixed interval for the lifetime of
// the process.
type Enumerator interface {
	Scan(ctx context.Context, duration time.Duration, handler func(Entry)) error
}

// WriteMode selects whether a characteristic write waits for an ATT
// response.
type WriteMode int

const (
	WriteWithResponse WriteMode = iota
	WriteWithoutResponse
)

// NotifyKind distinguishes the two BLE subscription mechanisms; drivers
// pick whichever a characteristic's properties advertise.
type NotifyKind int

const (
	NotifyNotification NotifyKind = iota
	NotifyIndication
)

// Handle is an open connection to one peripheral: the transport-facing
// half of a slot (§4.H). All methods are safe to call from the tick
// thread only, except where documented otherwise — notification delivery
// runs on a separate transport-owned goroutine per §5.
type Handle interface {
	Address() string
	Name() string // resolved device name, "" if unavailable
	Profile() *gatt.Profile
	IsOpen() bool

	ReadCharacteristic(ctx context.Context, svc, ch gatt.UUID) ([]byte, error)
	WriteCharacteristic(ctx context.Context, svc, ch gatt.UUID, data []byte, mode WriteMode) error

	// Subscribe enables notify/indicate on a characteristic and delivers
	// each received value to onData from the transport's notification
	// goroutine. Disabling a subscription happens implicitly on Close.
	Subscribe(ctx context.Context, svc, ch gatt.UUID, kind NotifyKind, onData func([]byte)) error

	Close() error
}

// Adapter is the top-level entry point a concrete radio stack implements:
// discover peripherals, then open a Handle to one by address.
type Adapter interface {
	Enumerator
	Open(ctx context.Context, address string, connectTimeout time.Duration) (Handle, error)
}
