package hsl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/hslble/internal/config"
	"github.com/srg/hslble/internal/frame"
	"github.com/srg/hslble/internal/gatt"
	"github.com/srg/hslble/internal/sensor"
	"github.com/srg/hslble/internal/transport"
)

type fakeEntry struct{ addr, name string }

func (e *fakeEntry) Address() string                { return e.addr }
func (e *fakeEntry) Name() string                   { return e.name }
func (e *fakeEntry) RSSI() int                       { return -40 }
func (e *fakeEntry) AdvertisedServices() []gatt.UUID { return nil }
func (e *fakeEntry) ManufacturerData() []byte        { return nil }

type fakeHandle struct {
	addr string
	emit func(frame.SensorPacket)
}

func (h *fakeHandle) Address() string        { return h.addr }
func (h *fakeHandle) Name() string           { return "fake" }
func (h *fakeHandle) Profile() *gatt.Profile { return gatt.NewProfile() }
func (h *fakeHandle) IsOpen() bool           { return true }
func (h *fakeHandle) ReadCharacteristic(ctx context.Context, svc, ch gatt.UUID) ([]byte, error) {
	return nil, nil
}
func (h *fakeHandle) WriteCharacteristic(ctx context.Context, svc, ch gatt.UUID, data []byte, mode transport.WriteMode) error {
	return nil
}
func (h *fakeHandle) Subscribe(ctx context.Context, svc, ch gatt.UUID, kind transport.NotifyKind, onData func([]byte)) error {
	return nil
}
func (h *fakeHandle) Close() error { return nil }

type fakeAdapter struct{ entries []*fakeEntry }

func (a *fakeAdapter) Scan(ctx context.Context, d time.Duration, handler func(transport.Entry)) error {
	for _, e := range a.entries {
		handler(e)
	}
	return nil
}
func (a *fakeAdapter) Open(ctx context.Context, address string, timeout time.Duration) (transport.Handle, error) {
	return &fakeHandle{addr: address}, nil
}

type fakeDriver struct{ emit func(frame.SensorPacket) }

func (d *fakeDriver) Name() string { return "fake" }
func (d *fakeDriver) Probe(ctx context.Context, h transport.Handle) (frame.StreamMask, error) {
	return frame.StreamHR, nil
}
func (d *fakeDriver) Start(ctx context.Context, h transport.Handle, want frame.StreamMask, emit func(frame.SensorPacket)) error {
	d.emit = emit
	return nil
}
func (d *fakeDriver) Stop(ctx context.Context, h transport.Handle) error { return nil }

func testConfig() *config.Document {
	doc := &config.Document{
		Version:               config.CurrentVersion,
		LogLevel:              "error",
		MaxSlots:              2,
		SampleHistoryDuration: 5,
		ConnectTimeout:        time.Second,
		ScanTimeout:           time.Second,
		HRV:                   config.HRVConfig{HistorySize: 5},
		DeviceManager: config.DeviceManagerConfig{
			SensorReconnectInterval: 10 * time.Millisecond,
		},
		SensorManager: config.SensorManagerConfig{
			HeartRateTimeoutMillis: 3000,
		},
	}
	return doc
}

func testRegistry() *sensor.Registry {
	reg := sensor.NewRegistry()
	reg.Register("fake", nil, []string{"Fake"}, func() sensor.Driver { return &fakeDriver{} })
	return reg
}

func TestInitializeIsIdempotent(t *testing.T) {
	var s Service
	adapter := &fakeAdapter{}
	assert.Equal(t, ResultSuccess, s.Initialize(testConfig(), adapter, testRegistry(), nil))
	assert.Equal(t, ResultSuccess, s.Initialize(testConfig(), adapter, testRegistry(), nil))
	assert.Equal(t, ResultSuccess, s.Shutdown())
}

func TestShutdownWithoutInitializeIsNoOp(t *testing.T) {
	var s Service
	assert.Equal(t, ResultSuccess, s.Shutdown())
}

func TestUpdateBeforeInitializeReturnsError(t *testing.T) {
	var s Service
	assert.Equal(t, ResultError, s.Update())
}

func TestUpdateOpensDeviceAndDispatchesSensorListUpdated(t *testing.T) {
	var s Service
	adapter := &fakeAdapter{entries: []*fakeEntry{{addr: "aa", name: "Fake Sensor"}}}

	var events []Event
	require.Equal(t, ResultSuccess, s.Initialize(testConfig(), adapter, testRegistry(), func(e Event) { events = append(events, e) }))
	defer s.Shutdown()

	require.Equal(t, ResultSuccess, s.Update())
	require.Len(t, events, 1)
	assert.Equal(t, SensorListUpdated, events[0].Type)

	list, res := s.GetSensorList()
	require.Equal(t, ResultSuccess, res)
	require.Len(t, list, 1)
	assert.Equal(t, "aa", list[0].Address)
}

func TestSetActiveSensorDataStreamsMasksCapabilities(t *testing.T) {
	var s Service
	adapter := &fakeAdapter{entries: []*fakeEntry{{addr: "aa", name: "Fake Sensor"}}}
	require.Equal(t, ResultSuccess, s.Initialize(testConfig(), adapter, testRegistry(), nil))
	defer s.Shutdown()
	require.Equal(t, ResultSuccess, s.Update())

	assert.Equal(t, ResultSuccess, s.SetActiveSensorDataStreams(0, frame.StreamHR|frame.StreamECG, frame.HRVFilterSDNN))

	list, _ := s.GetSensorList()
	require.Len(t, list, 1)
	assert.Equal(t, frame.StreamHR, list[0].ActiveStreams)
}

func TestGetCapabilitySamplingRateForUnknownSlotIsError(t *testing.T) {
	var s Service
	require.Equal(t, ResultSuccess, s.Initialize(testConfig(), &fakeAdapter{}, testRegistry(), nil))
	defer s.Shutdown()

	_, res := s.GetCapabilitySamplingRate(0, frame.StreamHR)
	assert.Equal(t, ResultError, res)
}

func TestGetServiceVersion(t *testing.T) {
	var s Service
	assert.NotEmpty(t, s.GetServiceVersion())
}
