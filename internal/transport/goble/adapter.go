// Package goble implements transport.Adapter on top of github.com/go-ble/ble.
//
// Grounded on the teacher's internal/device/go-ble package (BLEConnection,
// bleScanner, DeviceFactory pattern), adapted from a single always-on CLI
// connection to the daemon's open/close-many-peripherals lifecycle: a
// hashmap-backed table of in-flight addresses rejects a second Open while
// one is already live (§7 ErrAlreadyOpenElsewhere). Notification fragment
// reassembly, unlike the teacher's PTY byte stream, isn't needed here:
// go-ble's Subscribe callback already delivers one complete reassembled
// characteristic value per ATT notification.
package goble

import (
	"context"
	"fmt"
	"strings"
	"time"

	ble "github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/hslble/internal/gatt"
	"github.com/srg/hslble/internal/transport"
)

// DeviceFactory creates the platform ble.Device. Overridable in tests.
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// Adapter implements transport.Adapter.
type Adapter struct {
	logger *logrus.Logger
	open   *hashmap.Map[string, struct{}]
}

// New creates an Adapter. A nil logger gets a default logrus.Logger.
func New(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger, open: hashmap.New[string, struct{}]()}
}

// Scan passively scans for advertising peripherals for duration, invoking
// handler for each advertisement seen.
func (a *Adapter) Scan(ctx context.Context, duration time.Duration, handler func(transport.Entry)) error {
	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("%w: creating scan device: %v", transport.ErrTransport, err)
	}
	ble.SetDefaultDevice(dev)

	scanCtx := ctx
	var cancel context.CancelFunc
	if duration > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	err = dev.Scan(scanCtx, true, func(adv ble.Advertisement) {
		handler(newEntry(adv))
	})
	if err != nil && scanCtx.Err() == nil {
		return normalizeError(err)
	}
	return nil
}

// Open connects to address, discovers its GATT profile, and returns a
// Handle. Returns transport.ErrAlreadyOpenElsewhere if address is already
// open on another Handle from this Adapter.
func (a *Adapter) Open(ctx context.Context, address string, connectTimeout time.Duration) (transport.Handle, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: empty address", transport.ErrNotPermitted)
	}

	if _, loaded := a.open.GetOrInsert(address, struct{}{}); loaded {
		return nil, fmt.Errorf("%w: %s", transport.ErrAlreadyOpenElsewhere, address)
	}

	h, err := a.dial(ctx, address, connectTimeout)
	if err != nil {
		a.open.Del(address)
		return nil, err
	}
	h.onClose = func() { a.open.Del(address) }
	return h, nil
}

func (a *Adapter) dial(ctx context.Context, address string, connectTimeout time.Duration) (*handle, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("%w: creating BLE device: %v", transport.ErrTransport, err)
	}
	ble.SetDefaultDevice(dev)

	if connectTimeout <= 0 {
		connectTimeout = 15 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	a.logger.WithField("address", address).Debug("dialing peripheral")
	client, err := ble.Dial(dialCtx, ble.NewAddr(address))
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, fmt.Errorf("%w: dialing %s: %v", transport.ErrTimeout, address, err)
		}
		return nil, fmt.Errorf("%w: dialing %s: %v", transport.ErrTransport, address, err)
	}

	bleProfile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("%w: discovering profile of %s: %v", transport.ErrTransport, address, err)
	}

	profile := buildProfile(bleProfile)
	h := newHandle(address, client, profile, a.logger)

	if name, err := resolveDeviceName(ctx, h); err == nil && name != "" {
		h.mu.Lock()
		h.name = name
		h.mu.Unlock()
		a.logger.WithFields(logrus.Fields{"address": address, "name": name}).Debug("resolved GAP device name")
	}

	return h, nil
}

func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not connected"):
		return fmt.Errorf("%w: %v", transport.ErrNotPermitted, err)
	case strings.Contains(msg, "already connected"):
		return fmt.Errorf("%w: %v", transport.ErrAlreadyOpenElsewhere, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return fmt.Errorf("%w: %v", transport.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", transport.ErrTransport, err)
	}
}

// buildProfile converts a discovered ble.Profile into a gatt.Profile,
// tagging each characteristic/descriptor Handle with its live ble object
// so later reads/writes/subscribes can reach the radio without a second
// lookup.
func buildProfile(bp *ble.Profile) *gatt.Profile {
	p := gatt.NewProfile()
	for _, svc := range bp.Services {
		svcUUID := gatt.Parse(svc.UUID.String())
		s := p.AddService(svcUUID, "")
		for _, ch := range svc.Characteristics {
			chUUID := gatt.Parse(ch.UUID.String())
			props := gatt.NewProperties(uint8(ch.Property))
			c := s.AddCharacteristic(chUUID, "", props)
			c.Handle = ch
			for _, d := range ch.Descriptors {
				dUUID := gatt.Parse(d.UUID.String())
				desc := c.AddDescriptor(dUUID, "")
				desc.Handle = d
			}
		}
	}
	return p
}
