package polar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/srg/hslble/internal/config"
	"github.com/srg/hslble/internal/frame"
	"github.com/srg/hslble/internal/gatt"
	"github.com/srg/hslble/internal/sensor"
	"github.com/srg/hslble/internal/transport"
)

// pmdFeatureTag marks a CharPolarPMDControl read as a feature-bitmask
// response rather than something else left over in the characteristic's
// cache (§4.F).
const pmdFeatureTag byte = 0x0F

// Driver recognizes and streams Polar PMD wearables (H10, Verity Sense,
// OH1). One instance is created per open slot by the registry Factory;
// origins is populated lazily so each measurement type's first observed
// frame, not the slot's open time, anchors its relative timestamps.
type driver struct {
	rates sampleRates

	origins map[measurementType]*streamOrigin
	ctrl    *controlResponder
}

// NewFactory returns a sensor.Factory that constructs a fresh Polar
// driver instance using the given §6 PolarDriverConfig sample rates.
func NewFactory(rates sampleRates) sensor.Factory {
	return func() sensor.Driver {
		return &driver{rates: rates, origins: make(map[measurementType]*streamOrigin)}
	}
}

// NewFactoryFromConfig adapts a persisted §6 PolarDriverConfig (loaded
// from a config.Store[PolarDriverConfig] keyed by device identifier) into
// a sensor.Factory, sanitizing its sample rates first so an edited-by-hand
// config file with an unsupported rate can't reach the control point.
func NewFactoryFromConfig(cfg config.PolarDriverConfig) sensor.Factory {
	cfg.Sanitize()
	return NewFactory(sampleRates{ecg: cfg.ECGSampleRate, ppg: cfg.PPGSampleRate, acc: cfg.AccSampleRate})
}

func (d *driver) Name() string { return "polar" }

// Probe recognizes a Polar device by the presence of the PMD service,
// then determines which streams it actually supports via §4.F's dynamic
// capability probe: read CharPolarPMDControl, check for the feature tag
// 0x0F, and decode the ECG/PPG/ACC/PPI bits from the byte that follows
// (bit0=ECG, bit1=PPG, bit2=ACC, bit3=PPI; Heart Rate is always
// supported). Some firmware revisions answer this read unreliably, so a
// failed or unrecognized response falls back to a name-prefix table
// instead of granting every capability unconditionally.
func (d *driver) Probe(ctx context.Context, h transport.Handle) (frame.StreamMask, error) {
	p := h.Profile()
	if _, ok := p.FindService(gatt.ServicePolarPMD); !ok {
		return 0, nil
	}

	if caps, ok := probeByFeatureRead(ctx, h); ok {
		return caps, nil
	}
	return capsByName(h.Name()), nil
}

func probeByFeatureRead(ctx context.Context, h transport.Handle) (frame.StreamMask, bool) {
	data, err := h.ReadCharacteristic(ctx, gatt.ServicePolarPMD, gatt.CharPolarPMDControl)
	if err != nil || len(data) < 2 || data[0] != pmdFeatureTag {
		return 0, false
	}

	bits := data[1]
	caps := frame.StreamHR
	if bits&0x01 != 0 {
		caps |= frame.StreamECG
	}
	if bits&0x02 != 0 {
		caps |= frame.StreamPPG
	}
	if bits&0x04 != 0 {
		caps |= frame.StreamACC
	}
	if bits&0x08 != 0 {
		caps |= frame.StreamPPI
	}
	return caps, true
}

// capsByName is the §4.F fallback table for devices whose control-point
// feature read fails or returns an unrecognized tag — the original's
// "TODO: this shouldn't be needed but sometimes this query fails."
func capsByName(name string) frame.StreamMask {
	switch {
	case strings.HasPrefix(name, "Polar H10"):
		return frame.StreamHR | frame.StreamECG | frame.StreamACC
	case strings.HasPrefix(name, "Polar OH1"):
		return frame.StreamHR | frame.StreamPPG | frame.StreamACC | frame.StreamPPI
	default:
		return frame.StreamHR
	}
}

func (d *driver) Start(ctx context.Context, h transport.Handle, want frame.StreamMask, emit func(frame.SensorPacket)) error {
	if want.Has(frame.StreamHR) {
		// The Heart Rate Measurement characteristic carries no on-device
		// timestamp, so T is measured on the host clock from the first
		// heart-rate notification after this Start.
		var hrOrigin time.Time
		if err := h.Subscribe(ctx, gatt.ServiceHeartRate, gatt.CharHeartRateMeasurement, transport.NotifyNotification, func(data []byte) {
			now := time.Now()
			if hrOrigin.IsZero() {
				hrOrigin = now
			}
			f, err := decodeHeartRate(data, now.Sub(hrOrigin).Seconds())
			if err != nil {
				return
			}
			emit(frame.SensorPacket{Kind: frame.PacketHR, HR: f})
		}); err != nil {
			return fmt.Errorf("subscribing to heart rate: %w", err)
		}
	}

	pmdWant := want &^ frame.StreamHR
	if pmdWant == 0 {
		return nil
	}

	if d.ctrl == nil {
		d.ctrl = newControlResponder()
		if err := h.Subscribe(ctx, gatt.ServicePolarPMD, gatt.CharPolarPMDControl, transport.NotifyIndication, d.ctrl.onIndication); err != nil {
			return fmt.Errorf("subscribing to PMD control point: %w", err)
		}
	}

	if err := h.Subscribe(ctx, gatt.ServicePolarPMD, gatt.CharPolarPMDDataMTU, transport.NotifyNotification, func(data []byte) {
		if len(data) == 0 {
			return
		}
		mt := measurementType(data[0])
		origin := d.originFor(mt)
		pkt, err := decodePMDFrame(data, origin)
		if err != nil {
			return
		}
		emit(pkt)
	}); err != nil {
		return fmt.Errorf("subscribing to PMD data: %w", err)
	}

	for _, mt := range []measurementType{measurementECG, measurementPPG, measurementACC, measurementPPI} {
		flag := pmdStreamFlag(mt)
		if !want.Has(flag) {
			continue
		}
		if err := writeControl(ctx, h, d.ctrl, encodeStart(mt, d.rates)); err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) Stop(ctx context.Context, h transport.Handle) error {
	if d.ctrl == nil {
		// No PMD stream was ever started (Heart Rate is handled by the
		// standard GATT characteristic, not the PMD control point), so
		// there is nothing to stop here.
		return nil
	}

	var firstErr error
	for _, mt := range []measurementType{measurementECG, measurementPPG, measurementACC, measurementPPI} {
		if err := writeControl(ctx, h, d.ctrl, encodeStop(mt)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *driver) originFor(mt measurementType) *streamOrigin {
	o, ok := d.origins[mt]
	if !ok {
		o = &streamOrigin{}
		d.origins[mt] = o
	}
	return o
}

func pmdStreamFlag(mt measurementType) frame.StreamMask {
	switch mt {
	case measurementECG:
		return frame.StreamECG
	case measurementPPG:
		return frame.StreamPPG
	case measurementACC:
		return frame.StreamACC
	case measurementPPI:
		return frame.StreamPPI
	default:
		return 0
	}
}
