package goble

import (
	"context"
	"fmt"
	"sync"

	ble "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/hslble/internal/gatt"
	"github.com/srg/hslble/internal/transport"
)

// handle implements transport.Handle over one live ble.Client connection.
type handle struct {
	address string
	client  ble.Client
	profile *gatt.Profile
	logger  *logrus.Logger

	mu      sync.Mutex
	open    bool
	onClose func()
	name    string // resolved from GAP Device Name (0x2A00), if available
}

func newHandle(address string, client ble.Client, profile *gatt.Profile, logger *logrus.Logger) *handle {
	return &handle{
		address: address,
		client:  client,
		profile: profile,
		logger:  logger,
		open:    true,
	}
}

func (h *handle) Address() string        { return h.address }
func (h *handle) Profile() *gatt.Profile { return h.profile }

// Name returns the device name resolved from GAP (0x2A00) at open time, or
// "" if it was unavailable.
func (h *handle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

func (h *handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

func (h *handle) lookup(svc, ch gatt.UUID) (*ble.Characteristic, error) {
	s, ok := h.profile.FindService(svc)
	if !ok {
		return nil, &transport.NotFoundError{Resource: "service", UUIDs: []string{svc.String()}}
	}
	c, ok := s.FindCharacteristic(ch)
	if !ok {
		return nil, &transport.NotFoundError{Resource: "characteristic", UUIDs: []string{svc.String(), ch.String()}}
	}
	bc, ok := c.Handle.(*ble.Characteristic)
	if !ok || bc == nil {
		return nil, &transport.NotFoundError{Resource: "characteristic", UUIDs: []string{svc.String(), ch.String()}}
	}
	return bc, nil
}

func (h *handle) ReadCharacteristic(ctx context.Context, svc, ch gatt.UUID) ([]byte, error) {
	if !h.IsOpen() {
		return nil, fmt.Errorf("%w: handle closed", transport.ErrNotPermitted)
	}
	bc, err := h.lookup(svc, ch)
	if err != nil {
		return nil, err
	}
	data, err := h.client.ReadCharacteristic(bc)
	if err != nil {
		return nil, normalizeError(err)
	}
	return data, nil
}

func (h *handle) WriteCharacteristic(ctx context.Context, svc, ch gatt.UUID, data []byte, mode transport.WriteMode) error {
	if !h.IsOpen() {
		return fmt.Errorf("%w: handle closed", transport.ErrNotPermitted)
	}
	bc, err := h.lookup(svc, ch)
	if err != nil {
		return err
	}
	noRsp := mode == transport.WriteWithoutResponse
	if err := h.client.WriteCharacteristic(bc, data, noRsp); err != nil {
		return normalizeError(err)
	}
	return nil
}

func (h *handle) Subscribe(ctx context.Context, svc, ch gatt.UUID, kind transport.NotifyKind, onData func([]byte)) error {
	if !h.IsOpen() {
		return fmt.Errorf("%w: handle closed", transport.ErrNotPermitted)
	}
	bc, err := h.lookup(svc, ch)
	if err != nil {
		return err
	}

	indicate := kind == transport.NotifyIndication
	if err := h.client.Subscribe(bc, indicate, onData); err != nil {
		return normalizeError(err)
	}
	return nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	if !h.open {
		h.mu.Unlock()
		return nil
	}
	h.open = false
	client := h.client
	onClose := h.onClose
	h.mu.Unlock()

	err := client.CancelConnection()
	if onClose != nil {
		onClose()
	}
	if err != nil {
		return normalizeError(err)
	}
	return nil
}

// resolveDeviceName reads the GAP Device Name characteristic (0x2A00),
// more authoritative than the advertised local name once connected
// (supplemented feature, see SPEC_FULL.md §5).
func resolveDeviceName(ctx context.Context, h *handle) (string, error) {
	data, err := h.ReadCharacteristic(ctx, gatt.ServiceGenericAccess, gatt.CharDeviceName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
