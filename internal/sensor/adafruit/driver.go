// Package adafruit implements the Driver for the Adafruit Feather Sense
// GSR (galvanic skin response) peripheral sketch.
//
// Grounded on hardware/adafruit_feather_gsr/BLEAdafruitGSR.cpp: a shared
// measurement-period characteristic (int32 milliseconds; negative stops
// sampling, zero means "notify on change only") and a uint16 unitless
// measurement characteristic, both under the B9C8xxxx-5875-4884-A84B-
// E3EDF3598BF3 UUID128 template.
package adafruit

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/srg/hslble/internal/config"
	"github.com/srg/hslble/internal/frame"
	"github.com/srg/hslble/internal/gatt"
	"github.com/srg/hslble/internal/sensor"
	"github.com/srg/hslble/internal/transport"
)

// DefaultPeriodMillis is the sampling period requested on Start when no
// §6 AdafruitDriverConfig.GSRSampleRate is known; the original sketch
// accepts any positive interval, but the GSR sensor's useful bandwidth
// tops out well under 20Hz.
const DefaultPeriodMillis = 100

type driver struct {
	periodMillis int32

	origin bool
	t0     float64
}

// NewFactory returns a sensor.Factory that constructs a fresh Adafruit
// GSR driver instance sampling at gsrSampleRateHz (the only configurable
// rate §6's AdafruitDriverConfig names). A non-positive rate falls back
// to DefaultPeriodMillis.
func NewFactory(gsrSampleRateHz int) sensor.Factory {
	period := int32(DefaultPeriodMillis)
	if gsrSampleRateHz > 0 {
		period = int32(1000 / gsrSampleRateHz)
	}
	return func() sensor.Driver { return &driver{periodMillis: period} }
}

// NewFactoryFromConfig adapts a persisted §6 AdafruitDriverConfig into a
// sensor.Factory, sanitizing GSRSampleRate first (see
// config.AdafruitDriverConfig.Sanitize).
func NewFactoryFromConfig(cfg config.AdafruitDriverConfig) sensor.Factory {
	cfg.Sanitize()
	return NewFactory(cfg.GSRSampleRate)
}

func (d *driver) Name() string { return "adafruit-gsr" }

// Probe recognizes the peripheral by the presence of the GSR service;
// unlike Polar, Adafruit sketches expose no reliable vendor identity
// beyond the service itself, so a single service-presence check is
// sufficient and matches §4.F's documented name-based-fallback path only
// applying when a device can't yet be connected to read its profile.
func (d *driver) Probe(ctx context.Context, h transport.Handle) (frame.StreamMask, error) {
	if _, ok := h.Profile().FindService(gatt.ServiceAdafruitGSR); !ok {
		return 0, nil
	}
	return frame.StreamEDA, nil
}

func (d *driver) Start(ctx context.Context, h transport.Handle, want frame.StreamMask, emit func(frame.SensorPacket)) error {
	if !want.Has(frame.StreamEDA) {
		return nil
	}

	if err := h.Subscribe(ctx, gatt.ServiceAdafruitGSR, gatt.CharAdafruitMeasurement, transport.NotifyNotification, func(data []byte) {
		f, err := decodeEDA(data, d.relativeSeconds())
		if err != nil {
			return
		}
		emit(frame.SensorPacket{Kind: frame.PacketEDA, EDA: f})
	}); err != nil {
		return fmt.Errorf("subscribing to GSR measurement: %w", err)
	}

	period := make([]byte, 4)
	binary.LittleEndian.PutUint32(period, uint32(d.periodMillis))
	if err := h.WriteCharacteristic(ctx, gatt.ServiceAdafruitGSR, gatt.CharAdafruitPeriod, period, transport.WriteWithResponse); err != nil {
		return fmt.Errorf("%w: writing GSR measurement period: %v", sensor.ErrProtocol, err)
	}
	return nil
}

func (d *driver) Stop(ctx context.Context, h transport.Handle) error {
	// Writing a negative period stops the peripheral's sampling timer
	// without tearing down the subscription (§ original _update_timer).
	period := make([]byte, 4)
	binary.LittleEndian.PutUint32(period, uint32(int32(-1)))
	if err := h.WriteCharacteristic(ctx, gatt.ServiceAdafruitGSR, gatt.CharAdafruitPeriod, period, transport.WriteWithResponse); err != nil {
		return fmt.Errorf("%w: stopping GSR sampling: %v", sensor.ErrProtocol, err)
	}
	return nil
}

func (d *driver) relativeSeconds() float64 {
	// The GSR measurement carries no device timestamp, so this returns
	// seconds since this driver's first frame, measured on the host clock.
	now := float64(time.Now().UnixNano()) / 1e9
	if !d.origin {
		d.origin = true
		d.t0 = now
	}
	return now - d.t0
}

func decodeEDA(data []byte, t float64) (frame.EDAFrame, error) {
	if len(data) != 2 {
		return frame.EDAFrame{}, fmt.Errorf("%w: GSR measurement must be 2 bytes, got %d", sensor.ErrProtocol, len(data))
	}
	return frame.EDAFrame{Value: binary.LittleEndian.Uint16(data), T: t}, nil
}
