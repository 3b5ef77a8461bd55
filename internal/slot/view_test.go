package slot

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

type fakeHandle struct{ addr string }

func (f *fakeHandle) Address() string        { return f.addr }
func (f *fakeHandle) Name() string           { return "fake" }
func (f *fakeHandle) Profile() *gatt.Profile { return gatt.NewProfile() }
func (f *fakeHandle) IsOpen() bool           { return true }
func (f *fakeHandle) ReadCharacteristic(ctx context.Context, svc, ch gatt.UUID) ([]byte, error) {
	return nil, nil
}
func (f *fakeHandle) WriteCharacteristic(ctx context.Context, svc, ch gatt.UUID, data []byte, mode transport.WriteMode) error {
	return nil
}
func (f *fakeHandle) Subscribe(ctx context.Context, svc, ch gatt.UUID, kind transport.NotifyKind, onData func([]byte)) error {
	return nil
}
func (f *fakeHandle) Close() error { return nil }

var _ transport.Handle = (*fakeHandle)(nil)

// fakeDriver reports HR+PPI capability and lets the test inject packets
// directly via the emit callback captured from Start.
type fakeDriver struct {
	caps frame.StreamMask
	emit func(frame.SensorPacket)
}

func (f *fakeDriver) Name() string { return "fake" }
func (f *fakeDriver) Probe(ctx context.Context, h transport.Handle) (frame.StreamMask, error) {
	return f.caps, nil
}
func (f *fakeDriver) Start(ctx context.Context, h transport.Handle, want frame.StreamMask, emit func(frame.SensorPacket)) error {
	f.emit = emit
	return nil
}
func (f *fakeDriver) Stop(ctx context.Context, h transport.Handle) error { return nil }

var _ sensor.Driver = (*fakeDriver)(nil)

func TestOpenSizesRingsFromSampleRateAndHistoryDuration(t *testing.T) {
	d := &fakeDriver{caps: frame.StreamHR | frame.StreamPPI}
	v, err := Open(context.Background(), &fakeHandle{addr: "a"}, d, 5.0, config.HRVConfig{HistorySize: 5}, 3*time.Second)
	require.NoError(t, err)
	assert.True(t, v.Capabilities().Has(frame.StreamHR))
	assert.True(t, v.Capabilities().Has(frame.StreamPPI))
	assert.False(t, v.Capabilities().Has(frame.StreamECG))
	assert.NotNil(t, v.SnapshotHeartRate())
	assert.Nil(t, v.SnapshotECG())
}

func TestSetActiveStreamsMasksAgainstCapabilities(t *testing.T) {
	d := &fakeDriver{caps: frame.StreamHR}
	v, err := Open(context.Background(), &fakeHandle{addr: "a"}, d, 1.0, config.HRVConfig{HistorySize: 5}, 3*time.Second)
	require.NoError(t, err)

	err = v.SetActiveStreams(context.Background(), frame.StreamHR|frame.StreamECG, frame.HRVFilterSDNN)
	require.NoError(t, err)
	assert.Equal(t, frame.StreamHR, v.ActiveStreams())
}

func TestDrainRoutesPacketsToRingsAndUpdatesLastValidHR(t *testing.T) {
	d := &fakeDriver{caps: frame.StreamHR}
	v, err := Open(context.Background(), &fakeHandle{addr: "a"}, d, 1.0, config.HRVConfig{HistorySize: 5}, 3*time.Second)
	require.NoError(t, err)
	require.NoError(t, v.SetActiveStreams(context.Background(), frame.StreamHR, 0))

	now := time.Now()
	d.emit(frame.SensorPacket{Kind: frame.PacketHR, HR: frame.HeartRateFrame{BPM: 72}})
	v.Drain(now)

	assert.Equal(t, uint16(72), v.HeartRateBPM(now))
	it := v.SnapshotHeartRate()
	require.NotNil(t, it)
	f, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, uint16(72), f.BPM)
}

func TestHeartRateBPMClearsAfterTimeout(t *testing.T) {
	d := &fakeDriver{caps: frame.StreamHR}
	v, err := Open(context.Background(), &fakeHandle{addr: "a"}, d, 1.0, config.HRVConfig{HistorySize: 5}, 3*time.Second)
	require.NoError(t, err)
	require.NoError(t, v.SetActiveStreams(context.Background(), frame.StreamHR, 0))

	t0 := time.Now()
	d.emit(frame.SensorPacket{Kind: frame.PacketHR, HR: frame.HeartRateFrame{BPM: 72}})
	v.Drain(t0)

	assert.Equal(t, uint16(72), v.HeartRateBPM(t0.Add(time.Second)))
	assert.Equal(t, uint16(0), v.HeartRateBPM(t0.Add(4*time.Second)))
}

func TestFeedRRPushesHRVFramesForActiveFiltersOnly(t *testing.T) {
	d := &fakeDriver{caps: frame.StreamHR}
	v, err := Open(context.Background(), &fakeHandle{addr: "a"}, d, 1.0, config.HRVConfig{HistorySize: 5}, 3*time.Second)
	require.NoError(t, err)
	require.NoError(t, v.SetActiveStreams(context.Background(), frame.StreamHR, frame.HRVFilterSDNN))

	rr := []uint16{800, 810, 790, 820, 780}
	d.emit(frame.SensorPacket{Kind: frame.PacketHR, HR: frame.HeartRateFrame{BPM: 72, RRIntervalsMillis: rr, T: 1.0}})
	v.Drain(time.Now())

	sdnn := v.SnapshotHRV(frame.HRVFilterSDNN)
	require.NotNil(t, sdnn)
	assert.Equal(t, 5, sdnn.Remaining())

	rmssd := v.SnapshotHRV(frame.HRVFilterRMSSD)
	require.NotNil(t, rmssd)
	assert.Equal(t, 0, rmssd.Remaining())

	var last frame.HRVFrame
	for {
		f, ok := sdnn.Next()
		if !ok {
			break
		}
		last = f
	}
	assert.InDelta(t, 14.14, last.Value, 0.5)
}

func TestCloseReleasesRings(t *testing.T) {
	d := &fakeDriver{caps: frame.StreamHR}
	v, err := Open(context.Background(), &fakeHandle{addr: "a"}, d, 1.0, config.HRVConfig{HistorySize: 5}, 3*time.Second)
	require.NoError(t, err)
	require.NoError(t, v.Close(context.Background()))
	assert.Nil(t, v.SnapshotHeartRate())
}
