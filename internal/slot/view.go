// Package slot implements the Server Sensor View (§4.G): the per-slot
// aggregator that owns one open sensor's ring buffers, HRV buffers, and
// packet queue, and drains them once per service tick.
//
// Grounded on original_source/src/hslservice/device/view/ServerSensorView.h
// and .cpp: ring buffers sized at open from capability sample rate ×
// history duration, a lock-free packet queue fed by the driver's
// notification callback and drained on the tick thread, and the
// last-valid-heart-rate timeout. The original's HRV filter switch in
// processDevicePacketQueues() was an empty TODO stub for every case; the
// HRV values here are computed by internal/hrv, which this package feeds
// with each new RR interval as it arrives.
package slot

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/srg/hslble/internal/config"
	"github.com/srg/hslble/internal/frame"
	"github.com/srg/hslble/internal/hrv"
	"github.com/srg/hslble/internal/packetqueue"
	"github.com/srg/hslble/internal/ring"
	"github.com/srg/hslble/internal/sensor"
	"github.com/srg/hslble/internal/transport"
)

// packetQueueCapacity mirrors the original's
// moodycamel::ReaderWriterQueue<SensorPacket>(1000) sizing.
const packetQueueCapacity = 1024

// defaultSampleRates/defaultBitResolutions answer
// get_capability_sampling_rate/get_capability_bit_resolution (§4.J) with
// fixed rates: Polar ecg/ppg=130Hz and Adafruit gsr=10Hz, the defaults of
// internal/config's per-driver schemas, and acc=200Hz, the highest
// selectable accelerometer rate rather than that schema's 25Hz default; HR and PPI
// are event-driven rather than fixed-rate, reported at their typical
// cadence of roughly once per beat.
var defaultSampleRates = map[frame.StreamMask]int{
	frame.StreamHR:  1,
	frame.StreamECG: 130,
	frame.StreamPPG: 130,
	frame.StreamPPI: 1,
	frame.StreamACC: 200,
	frame.StreamEDA: 10,
}

var defaultBitResolutions = map[frame.StreamMask]int{
	frame.StreamHR:  16,
	frame.StreamECG: 24,
	frame.StreamPPG: 24,
	frame.StreamPPI: 16,
	frame.StreamACC: 16,
	frame.StreamEDA: 16,
}

func computeSamplesNeeded(sampleRate int, historyDuration float64) int {
	n := int(math.Ceil(float64(sampleRate) * historyDuration))
	if n < 1 {
		return 1
	}
	return n
}

// View is one open sensor slot's aggregator. It is owned exclusively by
// the service tick thread except for the packet queue, which the driver's
// notification goroutine also writes to via onPacket.
type View struct {
	driver sensor.Driver
	handle transport.Handle
	info   sensor.DeviceInfo

	caps          frame.StreamMask
	activeCaps    frame.StreamMask
	activeFilters frame.HRVFilterMask

	queue *packetqueue.Queue

	hrRing  *ring.Ring[frame.HeartRateFrame]
	ecgRing *ring.Ring[frame.ECGFrame]
	ppgRing *ring.Ring[frame.PPGFrame]
	ppiRing *ring.Ring[frame.PPIFrame]
	accRing *ring.Ring[frame.AccelerometerFrame]
	edaRing *ring.Ring[frame.EDAFrame]

	hrvHistorySize int
	rrWindow       []float64
	hrvRings       map[frame.HRVFilterMask]*ring.Ring[frame.HRVFrame]

	heartRateTimeout time.Duration
	lastValidHR      uint16
	lastValidHRAt    time.Time
	hasValidHR       bool
}

// allFilterBits lists every §4.G HRV filter kind in table order.
var allFilterBits = []frame.HRVFilterMask{
	frame.HRVFilterSDNN, frame.HRVFilterRMSSD, frame.HRVFilterSDSD,
	frame.HRVFilterNN50, frame.HRVFilterPNN50, frame.HRVFilterNN20, frame.HRVFilterPNN20,
}

// Open probes the driver's capabilities against the open handle and sizes
// every ring buffer from the configured sample history duration and the
// HRV history size. It does not itself start any data stream; call
// SetActiveStreams for that.
func Open(ctx context.Context, h transport.Handle, d sensor.Driver, sampleHistoryDuration float64, hrvConf config.HRVConfig, heartRateTimeout time.Duration) (*View, error) {
	caps, err := d.Probe(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", d.Name(), err)
	}

	v := &View{
		driver:           d,
		handle:           h,
		caps:             caps,
		queue:            packetqueue.New(packetQueueCapacity),
		hrvHistorySize:   hrvConf.HistorySize,
		hrvRings:         make(map[frame.HRVFilterMask]*ring.Ring[frame.HRVFrame], len(allFilterBits)),
		heartRateTimeout: heartRateTimeout,
	}
	if v.hrvHistorySize < 1 {
		v.hrvHistorySize = 1
	}

	if caps.Has(frame.StreamHR) {
		v.hrRing = ring.New[frame.HeartRateFrame](computeSamplesNeeded(defaultSampleRates[frame.StreamHR], sampleHistoryDuration))
	}
	if caps.Has(frame.StreamECG) {
		v.ecgRing = ring.New[frame.ECGFrame](computeSamplesNeeded(defaultSampleRates[frame.StreamECG], sampleHistoryDuration))
	}
	if caps.Has(frame.StreamPPG) {
		v.ppgRing = ring.New[frame.PPGFrame](computeSamplesNeeded(defaultSampleRates[frame.StreamPPG], sampleHistoryDuration))
	}
	if caps.Has(frame.StreamPPI) {
		v.ppiRing = ring.New[frame.PPIFrame](computeSamplesNeeded(defaultSampleRates[frame.StreamPPI], sampleHistoryDuration))
	}
	if caps.Has(frame.StreamACC) {
		v.accRing = ring.New[frame.AccelerometerFrame](computeSamplesNeeded(defaultSampleRates[frame.StreamACC], sampleHistoryDuration))
	}
	if caps.Has(frame.StreamEDA) {
		v.edaRing = ring.New[frame.EDAFrame](computeSamplesNeeded(defaultSampleRates[frame.StreamEDA], sampleHistoryDuration))
	}

	// HRV buffers are allocated whenever the device can supply RR
	// intervals at all (from HR or PPI), independent of which filters
	// end up active; §4.G allocates them at open, not at
	// SetActiveStreams time.
	if caps.Has(frame.StreamPPI) || caps.Has(frame.StreamHR) {
		for _, bit := range allFilterBits {
			v.hrvRings[bit] = ring.New[frame.HRVFrame](v.hrvHistorySize)
		}
	}

	return v, nil
}

// Capabilities returns the stream mask the driver advertised at Open.
func (v *View) Capabilities() frame.StreamMask { return v.caps }

// ActiveStreams returns the currently-active subset of Capabilities.
func (v *View) ActiveStreams() frame.StreamMask { return v.activeCaps }

// SetActiveStreams starts streaming the requested capability subset,
// masked against what the device actually supports (§8 invariant 2), and
// records the HRV filter mask the tick should compute going forward.
func (v *View) SetActiveStreams(ctx context.Context, wantCaps frame.StreamMask, wantFilters frame.HRVFilterMask) error {
	masked := wantCaps & v.caps
	if err := v.driver.Start(ctx, v.handle, masked, v.onPacket); err != nil {
		return fmt.Errorf("starting %s streams: %w", v.driver.Name(), err)
	}
	v.activeCaps = masked
	v.activeFilters = wantFilters
	return nil
}

// StopAllStreams stops the driver without closing the underlying handle.
func (v *View) StopAllStreams(ctx context.Context) error {
	if err := v.driver.Stop(ctx, v.handle); err != nil {
		return fmt.Errorf("stopping %s streams: %w", v.driver.Name(), err)
	}
	v.activeCaps = 0
	v.activeFilters = 0
	return nil
}

// onPacket is the driver's notification callback; it only ever enqueues,
// per §5's rule that notification threads never block on tick-owned
// state.
func (v *View) onPacket(pkt frame.SensorPacket) {
	v.queue.Enqueue(pkt)
}

// Drain empties the packet queue in arrival order, routing each packet to
// its capability's ring buffer and feeding any new RR intervals into the
// HRV filters. now is used for the last-valid-heart-rate timeout.
func (v *View) Drain(now time.Time) {
	for {
		pkt, ok := v.queue.Dequeue()
		if !ok {
			return
		}
		switch pkt.Kind {
		case frame.PacketHR:
			if v.hrRing != nil {
				v.hrRing.Push(pkt.HR)
			}
			if pkt.HR.BPM > 0 {
				v.lastValidHR = pkt.HR.BPM
				v.lastValidHRAt = now
				v.hasValidHR = true
			}
			v.feedRR(pkt.HR.RRIntervalsMillis, pkt.HR.T)
		case frame.PacketECG:
			if v.ecgRing != nil {
				v.ecgRing.Push(pkt.ECG)
			}
		case frame.PacketPPG:
			if v.ppgRing != nil {
				v.ppgRing.Push(pkt.PPG)
			}
		case frame.PacketPPI:
			if v.ppiRing != nil {
				v.ppiRing.Push(pkt.PPI)
			}
			rr := make([]uint16, len(pkt.PPI.Samples))
			for i, s := range pkt.PPI.Samples {
				rr[i] = s.PulseMillis
			}
			v.feedRR(rr, pkt.PPI.T)
		case frame.PacketACC:
			if v.accRing != nil {
				v.accRing.Push(pkt.ACC)
			}
		case frame.PacketEDA:
			if v.edaRing != nil {
				v.edaRing.Push(pkt.EDA)
			}
		}
	}
}

// filterValue extracts the named filter's statistic from a computed Stats.
func filterValue(bit frame.HRVFilterMask, s hrv.Stats) float64 {
	switch bit {
	case frame.HRVFilterSDNN:
		return s.SDNN
	case frame.HRVFilterRMSSD:
		return s.RMSSD
	case frame.HRVFilterSDSD:
		return s.SDSD
	case frame.HRVFilterNN50:
		return float64(s.NN50)
	case frame.HRVFilterPNN50:
		return s.PNN50
	case frame.HRVFilterNN20:
		return float64(s.NN20)
	case frame.HRVFilterPNN20:
		return s.PNN20
	default:
		return 0
	}
}

// feedRR appends each new RR interval (milliseconds) to the trailing
// window, recomputes the HRV statistics, and pushes one HRVFrame per
// active filter, per §4.G: "Each enabled filter pushes one HRV frame per
// new interval."
func (v *View) feedRR(rrMillis []uint16, t float64) {
	for _, rr := range rrMillis {
		v.rrWindow = append(v.rrWindow, float64(rr))
		if len(v.rrWindow) > v.hrvHistorySize {
			v.rrWindow = v.rrWindow[len(v.rrWindow)-v.hrvHistorySize:]
		}

		stats := hrv.Compute(v.rrWindow)
		for _, bit := range allFilterBits {
			if !v.activeFilters.Has(bit) {
				continue
			}
			r, ok := v.hrvRings[bit]
			if !ok {
				continue
			}
			r.Push(frame.HRVFrame{Value: float32(filterValue(bit, stats)), T: t})
		}
	}
}

// HeartRateBPM returns the last valid heart rate, or 0 if none has arrived
// or the last one is older than the configured timeout (§4.G).
func (v *View) HeartRateBPM(now time.Time) uint16 {
	if !v.hasValidHR || now.Sub(v.lastValidHRAt) > v.heartRateTimeout {
		return 0
	}
	return v.lastValidHR
}

// CapabilitySamplingRate answers §4.J's get_capability_sampling_rate.
func (v *View) CapabilitySamplingRate(cap frame.StreamMask) (int, bool) {
	rate, ok := defaultSampleRates[cap]
	return rate, ok
}

// CapabilityBitResolution answers §4.J's get_capability_bit_resolution.
func (v *View) CapabilityBitResolution(cap frame.StreamMask) (int, bool) {
	res, ok := defaultBitResolutions[cap]
	return res, ok
}

// SnapshotHeartRate, SnapshotECG, ... expose a point-in-time iterator over
// each capability's ring buffer (§4.G get_snapshot). A nil return means
// the device never advertised that capability.
func (v *View) SnapshotHeartRate() *ring.Iterator[frame.HeartRateFrame] {
	if v.hrRing == nil {
		return nil
	}
	return v.hrRing.Snapshot()
}

func (v *View) SnapshotECG() *ring.Iterator[frame.ECGFrame] {
	if v.ecgRing == nil {
		return nil
	}
	return v.ecgRing.Snapshot()
}

func (v *View) SnapshotPPG() *ring.Iterator[frame.PPGFrame] {
	if v.ppgRing == nil {
		return nil
	}
	return v.ppgRing.Snapshot()
}

func (v *View) SnapshotPPI() *ring.Iterator[frame.PPIFrame] {
	if v.ppiRing == nil {
		return nil
	}
	return v.ppiRing.Snapshot()
}

func (v *View) SnapshotAccelerometer() *ring.Iterator[frame.AccelerometerFrame] {
	if v.accRing == nil {
		return nil
	}
	return v.accRing.Snapshot()
}

func (v *View) SnapshotEDA() *ring.Iterator[frame.EDAFrame] {
	if v.edaRing == nil {
		return nil
	}
	return v.edaRing.Snapshot()
}

// SnapshotHRV returns the snapshot for one HRV filter's buffer, or nil if
// that filter was never allocated (the device has no RR source).
func (v *View) SnapshotHRV(filter frame.HRVFilterMask) *ring.Iterator[frame.HRVFrame] {
	r, ok := v.hrvRings[filter]
	if !ok {
		return nil
	}
	return r.Snapshot()
}

// DeviceInfo returns the cached device identification fields.
func (v *View) DeviceInfo() sensor.DeviceInfo { return v.info }

// SetDeviceInfo stores the device identification fields. Nothing in this
// module reads the Device Information or Battery characteristics, so
// DeviceInfo stays empty unless a caller sets it here.
func (v *View) SetDeviceInfo(info sensor.DeviceInfo) { v.info = info }

// Address returns the underlying handle's address, used by the device
// manager to match a slot against an enumeration entry.
func (v *View) Address() string { return v.handle.Address() }

// Close stops the driver's streams, closes the underlying transport handle
// (which ends its subscriptions and tears down its profile tree), and
// releases every ring buffer and the HRV window. The packet queue is kept
// with the View.
func (v *View) Close(ctx context.Context) error {
	err := v.driver.Stop(ctx, v.handle)
	if closeErr := v.handle.Close(); err == nil {
		err = closeErr
	}
	v.hrRing, v.ecgRing, v.ppgRing, v.ppiRing, v.accRing, v.edaRing = nil, nil, nil, nil, nil, nil
	v.hrvRings = nil
	v.rrWindow = nil
	v.activeCaps, v.activeFilters = 0, 0
	return err
}
