// Package devicemanager implements the Device Type Manager (§4.H): the
// fixed-width slot pool and the reconnection/reconciliation loop that
// matches live BLE enumeration entries against open or free slots.
//
// Grounded on
// original_source/src/hslservice/device/manager/DeviceTypeManager.cpp's
// update_connected_devices (mark-seen / open-into-free-slot / close-unseen
// / notify-on-change) and internal/devicefactory/factory.go's
// name-prefix-to-constructor lookup, generalized from the teacher's single
// hardcoded factory to the sensor.Registry built for this daemon.
package devicemanager

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/hslble/internal/config"
	"github.com/srg/hslble/internal/frame"
	"github.com/srg/hslble/internal/sensor"
	"github.com/srg/hslble/internal/slot"
	"github.com/srg/hslble/internal/transport"
)

// State is a slot's lifecycle stage (§4.H).
type State int

const (
	StateDisconnected State = iota
	StateOpening
	StateRunning
)

type managedSlot struct {
	id    int
	state State
	view  *slot.View
}

// Manager owns a fixed-width pool of slots and reconciles it against live
// BLE enumeration on every PollConnectedDevices tick.
type Manager struct {
	adapter  transport.Adapter
	registry *sensor.Registry
	log      *logrus.Logger

	sampleHistoryDuration float64
	hrvConf               config.HRVConfig
	heartRateTimeout      time.Duration
	connectTimeout        time.Duration
	scanTimeout           time.Duration

	slots []*managedSlot
	dirty atomic.Bool
}

// New creates a Manager with maxSlots fixed slots, all initially
// disconnected. maxSlots corresponds to the device manager config's
// implicit slot-pool size; the daemon's config document names it
// max_slots.
func New(adapter transport.Adapter, registry *sensor.Registry, log *logrus.Logger, maxSlots int, sampleHistoryDuration float64, hrvConf config.HRVConfig, heartRateTimeout, connectTimeout, scanTimeout time.Duration) *Manager {
	if maxSlots < 1 {
		maxSlots = 1
	}
	if log == nil {
		log = logrus.New()
	}
	slots := make([]*managedSlot, maxSlots)
	for i := range slots {
		slots[i] = &managedSlot{id: i, state: StateDisconnected}
	}
	m := &Manager{
		adapter:               adapter,
		registry:              registry,
		log:                   log,
		sampleHistoryDuration: sampleHistoryDuration,
		hrvConf:               hrvConf,
		heartRateTimeout:      heartRateTimeout,
		connectTimeout:        connectTimeout,
		scanTimeout:           scanTimeout,
		slots:                 slots,
	}
	m.dirty.Store(true) // rebuild the slot list the first chance we get
	return m
}

// MarkDirty forces the next PollConnectedDevices call to run a full
// reconciliation regardless of the poll interval, the effect of a §4.I
// hot-plug edge. It is safe to call from any goroutine; the hot-plug
// poller calls it from its own.
func (m *Manager) MarkDirty() { m.dirty.Store(true) }

// entrySeen is the bookkeeping the reconciliation pass needs per
// enumeration entry: the slot (if any) it matched.
type entrySeen struct {
	entry transport.Entry
	slot  int // -1 if unmatched
}

// PollConnectedDevices runs the §4.H six-step reconciliation algorithm
// once. It returns true if any slot changed state (the caller should then
// publish SensorListUpdated per §4.J).
func (m *Manager) PollConnectedDevices(ctx context.Context) (changed bool, err error) {
	if !m.dirty.Load() {
		return false, nil
	}

	seenSlot := make(map[int]bool, len(m.slots))
	var scanErr error

	// Step 1: walk a fresh enumeration once.
	scanErr = m.adapter.Scan(ctx, m.scanTimeout, func(e transport.Entry) {
		// Step 2: does a running slot already match this entry?
		for _, s := range m.slots {
			if s.state == StateRunning && s.view != nil && s.view.Address() == e.Address() {
				seenSlot[s.id] = true
				return
			}
		}

		// Step 3: find the lowest-index disconnected slot and a matching factory.
		free := m.firstDisconnectedSlot()
		if free == nil {
			// Step 4: no free slot, stop consuming new devices this tick.
			m.log.Warn("devicemanager: no free slot for newly seen device, skipping")
			return
		}

		factory := m.registry.Match(e.AdvertisedServices(), e.Name())
		if factory == nil {
			return
		}

		if err := m.openSlot(ctx, free, e, factory); err != nil {
			m.log.WithError(err).WithField("address", e.Address()).Warn("devicemanager: failed to open device")
			return
		}
		seenSlot[free.id] = true
		changed = true
	})
	if scanErr != nil {
		return changed, scanErr
	}

	// Step 5: close any running slot not marked seen.
	for _, s := range m.slots {
		if s.state == StateRunning && !seenSlot[s.id] {
			m.log.WithField("slot", s.id).Warn("devicemanager: closing device no longer in enumeration")
			if err := s.view.Close(ctx); err != nil {
				m.log.WithError(err).WithField("slot", s.id).Warn("devicemanager: error closing device")
			}
			s.view = nil
			s.state = StateDisconnected
			changed = true
		}
	}

	m.dirty.Store(false)
	return changed, nil
}

func (m *Manager) firstDisconnectedSlot() *managedSlot {
	for _, s := range m.slots {
		if s.state == StateDisconnected {
			return s
		}
	}
	return nil
}

func (m *Manager) openSlot(ctx context.Context, s *managedSlot, e transport.Entry, factory sensor.Factory) error {
	s.state = StateOpening

	h, err := m.adapter.Open(ctx, e.Address(), m.connectTimeout)
	if err != nil {
		s.state = StateDisconnected
		return err
	}

	d := factory()
	v, err := slot.Open(ctx, h, d, m.sampleHistoryDuration, m.hrvConf, m.heartRateTimeout)
	if err != nil {
		_ = h.Close()
		s.state = StateDisconnected
		return err
	}

	s.view = v
	s.state = StateRunning
	m.log.WithFields(logrus.Fields{"slot": s.id, "address": e.Address(), "driver": d.Name()}).Info("devicemanager: device opened")
	return nil
}

// Drain drains every running slot's packet queue; called once per service
// tick after PollConnectedDevices.
func (m *Manager) Drain(now time.Time) {
	for _, s := range m.slots {
		if s.state == StateRunning && s.view != nil {
			s.view.Drain(now)
		}
	}
}

// RunningSlots returns the IDs of every currently-running slot, in index
// order (§4.J get_sensor_list).
func (m *Manager) RunningSlots() []int {
	var ids []int
	for _, s := range m.slots {
		if s.state == StateRunning {
			ids = append(ids, s.id)
		}
	}
	return ids
}

// View returns the slot.View for id, or nil if that slot is not running.
func (m *Manager) View(id int) *slot.View {
	if id < 0 || id >= len(m.slots) {
		return nil
	}
	s := m.slots[id]
	if s.state != StateRunning {
		return nil
	}
	return s.view
}

// SetActiveSensorDataStreams forwards to the named slot's view.
func (m *Manager) SetActiveSensorDataStreams(ctx context.Context, id int, caps frame.StreamMask, filters frame.HRVFilterMask) error {
	v := m.View(id)
	if v == nil {
		return transport.ErrNotFound
	}
	return v.SetActiveStreams(ctx, caps, filters)
}

// StopAllSensorStreams forwards to the named slot's view.
func (m *Manager) StopAllSensorStreams(ctx context.Context, id int) error {
	v := m.View(id)
	if v == nil {
		return transport.ErrNotFound
	}
	return v.StopAllStreams(ctx)
}

// Shutdown closes every running slot in reverse order of slot index,
// releasing transport handles and ring buffers (§5 resource lifetime).
func (m *Manager) Shutdown(ctx context.Context) {
	for i := len(m.slots) - 1; i >= 0; i-- {
		s := m.slots[i]
		if s.state == StateRunning && s.view != nil {
			if err := s.view.Close(ctx); err != nil {
				m.log.WithError(err).WithField("slot", s.id).Warn("devicemanager: error closing device during shutdown")
			}
			s.view = nil
			s.state = StateDisconnected
		}
	}
}
