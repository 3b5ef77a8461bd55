// Package hotplug implements the §4.I Hot-plug Notifier: a platform
// interface that only ever sets a dirty flag for the device manager's next
// tick to pick up, never opening or closing a device itself. The interface
// has a single dirty callback; it does not report whether a device arrived
// or left, nor the device class or path involved.
//
// No pack dependency exposes OS-level BLE-adapter or USB arrival events
// (go-ble's platform transport is scan/connect only), so this package
// ships only the polling fallback §4.I explicitly allows: "When hot-plug
// is unavailable the manager falls back to polling."
package hotplug

import (
	"context"
	"time"

	"github.com/srg/hslble/internal/groutine"
)

// Class identifies which device class a hot-plug edge pertains to.
type Class string

// Notifier is the platform hot-plug interface. A concrete OS-level
// implementation would call dirty on a real arrival/removal event; the
// polling fallback here calls it on a fixed interval instead.
type Notifier interface {
	// Run calls dirty() on every detected edge (or, for the polling
	// fallback, on every tick) until ctx is canceled. It returns at once;
	// the watching happens on a goroutine of its own.
	Run(ctx context.Context, dirty func())
}

// Poller is the polling fallback Notifier: it calls dirty() every
// interval, leaving full reconciliation to the device manager's next
// PollConnectedDevices tick.
type Poller struct {
	Interval time.Duration
}

// NewPoller creates a Poller with the given reconnect interval (default
// 1000ms per §6 if interval <= 0).
func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{Interval: interval}
}

// Run implements Notifier by ticking at Interval until ctx is canceled. It
// launches its own named goroutine (labeled for pprof) and returns
// immediately; callers do not need to wrap it in their own `go`.
func (p *Poller) Run(ctx context.Context, dirty func()) {
	groutine.Go(ctx, "hotplug-poller", func(ctx context.Context) {
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dirty()
			}
		}
	})
}
