// Package hsl implements the Service Facade & Request Handler (§4.J): the
// public API surface a client embeds this module for. It owns the BLE
// adapter, the device manager, and the hot-plug poller, and exposes a
// single `Update` tick plus read-only accessors over the running slots.
//
// Grounded on original_source/src/hslservice/service/HSLService.cpp's
// startup/update/shutdown ordering (BLE subsystem, then device manager,
// then request handler; reverse order on shutdown) and the teacher's
// pkg/ble/bridge.go mutex-guarded lifecycle struct, generalized from a PTY
// bridge's Start/Stop to the tick-based facade §4.J specifies.
package hsl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/hslble/internal/config"
	"github.com/srg/hslble/internal/devicemanager"
	"github.com/srg/hslble/internal/frame"
	"github.com/srg/hslble/internal/hotplug"
	"github.com/srg/hslble/internal/ring"
	"github.com/srg/hslble/internal/sensor"
	"github.com/srg/hslble/internal/transport"
)

// Result mirrors §6's client-facing result enumeration.
type Result int

const (
	ResultSuccess Result = iota
	ResultError
	ResultNoData
	ResultCanceled
)

// ServiceVersion is the facade's reported version (§4.J get_service_version).
const ServiceVersion = "1.0.0"

// EventType enumerates the facade's event model (§4.J); SensorListUpdated
// is the only event today, with room for future additions.
type EventType int

const SensorListUpdated EventType = iota

// Event is delivered to the single registered Listener from within Update,
// on the caller's own thread (§4.J, §5).
type Event struct {
	Type EventType
}

// Listener receives facade events. Only one may be registered at a time,
// set at Initialize.
type Listener func(Event)

// Sensor is a snapshot of one running slot's identity and state (§4.J
// get_sensor_list).
type Sensor struct {
	ID            int
	Address       string
	Info          sensor.DeviceInfo
	Capabilities  frame.StreamMask
	ActiveStreams frame.StreamMask
	HeartRateBPM  uint16
}

// Service is the process-wide facade singleton (§4.J). The zero value is
// ready to Initialize; it is not safe to Initialize the same Service
// concurrently from two goroutines, but Update/Shutdown/accessors may run
// concurrently with each other only to the extent the underlying
// devicemanager.Manager allows (none — apart from MarkDirty it is
// tick-thread-only, so callers must serialize their own Update calls).
type Service struct {
	mu sync.Mutex

	initialized bool
	logger      *logrus.Logger

	adapter  transport.Adapter
	registry *sensor.Registry
	manager  *devicemanager.Manager
	poller   *hotplug.Poller

	pollCancel context.CancelFunc
	listener   Listener

	heartRateTimeout time.Duration
}

var errNotInitialized = errors.New("hsl: service not initialized")

// Initialize starts the BLE adapter, the device manager, and the hot-plug
// poller, in that order (mirroring the source's BLE-manager-first startup
// sequence). Calling Initialize on an already-initialized Service is a
// no-op that returns Success, per §4.J's "idempotent to succeed."
func (s *Service) Initialize(cfg *config.Document, adapter transport.Adapter, registry *sensor.Registry, listener Listener) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return ResultSuccess
	}
	if cfg == nil || adapter == nil || registry == nil {
		return ResultError
	}

	s.logger = cfg.NewLogger()
	s.adapter = adapter
	s.registry = registry
	s.listener = listener
	s.heartRateTimeout = cfg.SensorManager.HeartRateTimeout()

	s.manager = devicemanager.New(
		adapter, registry, s.logger, cfg.MaxSlots,
		cfg.SampleHistoryDuration, cfg.HRV, s.heartRateTimeout,
		cfg.ConnectTimeout, cfg.ScanTimeout,
	)

	s.poller = hotplug.NewPoller(cfg.DeviceManager.SensorReconnectInterval)
	ctx, cancel := context.WithCancel(context.Background())
	s.pollCancel = cancel
	s.poller.Run(ctx, s.manager.MarkDirty)

	s.initialized = true
	s.logger.WithField("version", ServiceVersion).Info("hsl: service initialized")
	return ResultSuccess
}

// Shutdown stops the hot-plug poller and closes every running slot, in
// reverse order of Initialize (§4.J "stops in reverse order"). Calling
// Shutdown when not initialized is a no-op that returns Success.
func (s *Service) Shutdown() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ResultSuccess
	}

	s.pollCancel()
	s.manager.Shutdown(context.Background())
	s.initialized = false
	s.logger.Info("hsl: service shut down")
	return ResultSuccess
}

// Update runs one service tick: hot-plug reconciliation, per-slot packet
// drain, and event dispatch, in that order (§4.J, §5 ordering guarantee:
// "SensorListUpdated events are emitted after all state transitions in
// the tick that caused them").
func (s *Service) Update() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ResultError
	}

	changed, err := s.manager.PollConnectedDevices(context.Background())
	if err != nil {
		s.logger.WithError(err).Warn("hsl: poll failed")
	}

	s.manager.Drain(time.Now())

	if changed && s.listener != nil {
		s.listener(Event{Type: SensorListUpdated})
	}
	return ResultSuccess
}

// GetSensorList returns a snapshot of every running slot (§4.J
// get_sensor_list).
func (s *Service) GetSensorList() ([]Sensor, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, ResultError
	}

	now := time.Now()
	ids := s.manager.RunningSlots()
	out := make([]Sensor, 0, len(ids))
	for _, id := range ids {
		v := s.manager.View(id)
		if v == nil {
			continue
		}
		out = append(out, Sensor{
			ID:            id,
			Address:       v.Address(),
			Info:          v.DeviceInfo(),
			Capabilities:  v.Capabilities(),
			ActiveStreams: v.ActiveStreams(),
			HeartRateBPM:  v.HeartRateBPM(now),
		})
	}
	return out, ResultSuccess
}

// SetActiveSensorDataStreams forwards to the named slot (§4.J).
func (s *Service) SetActiveSensorDataStreams(id int, caps frame.StreamMask, filters frame.HRVFilterMask) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ResultError
	}
	if err := s.manager.SetActiveSensorDataStreams(context.Background(), id, caps, filters); err != nil {
		return ResultError
	}
	return ResultSuccess
}

// StopAllSensorStreams forwards to the named slot (§4.J).
func (s *Service) StopAllSensorStreams(id int) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ResultError
	}
	if err := s.manager.StopAllSensorStreams(context.Background(), id); err != nil {
		return ResultError
	}
	return ResultSuccess
}

// GetCapabilitySamplingRate answers §4.J get_capability_sampling_rate.
func (s *Service) GetCapabilitySamplingRate(id int, cap frame.StreamMask) (int, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.manager.View(id)
	if v == nil {
		return 0, ResultError
	}
	rate, ok := v.CapabilitySamplingRate(cap)
	if !ok {
		return 0, ResultNoData
	}
	return rate, ResultSuccess
}

// GetCapabilityBitResolution answers §4.J get_capability_bit_resolution.
func (s *Service) GetCapabilityBitResolution(id int, cap frame.StreamMask) (int, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.manager.View(id)
	if v == nil {
		return 0, ResultError
	}
	res, ok := v.CapabilityBitResolution(cap)
	if !ok {
		return 0, ResultNoData
	}
	return res, ResultSuccess
}

// GetServiceVersion answers §4.J get_service_version.
func (s *Service) GetServiceVersion() string { return ServiceVersion }

// The typed buffer accessors below implement §4.J's
// get_capability_buffer/get_heart_hrv_buffer: each returns nil with
// ResultError if the slot isn't running, or with ResultNoData if the
// capability was never allocated, matching the spec's "typed get_<cap>_data accessor that
// returns non-null only when the iterator's current kind matches."

func (s *Service) GetHeartRateBuffer(id int) (*ring.Iterator[frame.HeartRateFrame], Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.manager.View(id)
	if v == nil {
		return nil, ResultError
	}
	it := v.SnapshotHeartRate()
	if it == nil {
		return nil, ResultNoData
	}
	return it, ResultSuccess
}

func (s *Service) GetECGBuffer(id int) (*ring.Iterator[frame.ECGFrame], Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.manager.View(id)
	if v == nil {
		return nil, ResultError
	}
	it := v.SnapshotECG()
	if it == nil {
		return nil, ResultNoData
	}
	return it, ResultSuccess
}

func (s *Service) GetPPGBuffer(id int) (*ring.Iterator[frame.PPGFrame], Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.manager.View(id)
	if v == nil {
		return nil, ResultError
	}
	it := v.SnapshotPPG()
	if it == nil {
		return nil, ResultNoData
	}
	return it, ResultSuccess
}

func (s *Service) GetPPIBuffer(id int) (*ring.Iterator[frame.PPIFrame], Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.manager.View(id)
	if v == nil {
		return nil, ResultError
	}
	it := v.SnapshotPPI()
	if it == nil {
		return nil, ResultNoData
	}
	return it, ResultSuccess
}

func (s *Service) GetAccelerometerBuffer(id int) (*ring.Iterator[frame.AccelerometerFrame], Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.manager.View(id)
	if v == nil {
		return nil, ResultError
	}
	it := v.SnapshotAccelerometer()
	if it == nil {
		return nil, ResultNoData
	}
	return it, ResultSuccess
}

func (s *Service) GetEDABuffer(id int) (*ring.Iterator[frame.EDAFrame], Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.manager.View(id)
	if v == nil {
		return nil, ResultError
	}
	it := v.SnapshotEDA()
	if it == nil {
		return nil, ResultNoData
	}
	return it, ResultSuccess
}

// GetHeartHRVBuffer answers §4.J get_heart_hrv_buffer.
func (s *Service) GetHeartHRVBuffer(id int, filter frame.HRVFilterMask) (*ring.Iterator[frame.HRVFrame], Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.manager.View(id)
	if v == nil {
		return nil, ResultError
	}
	it := v.SnapshotHRV(filter)
	if it == nil {
		return nil, ResultNoData
	}
	return it, ResultSuccess
}
