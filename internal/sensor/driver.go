// Package sensor defines the vendor driver abstraction (§4.F): capability
// probing, start/stop control, and vendor frame decoding, each concrete
// vendor living in its own subpackage (polar, adafruit).
//
// Grounded on the teacher's internal/device.Device interface shape
// (Connect/Disconnect/IsConnected) generalized from "one BLE device" to
// "one sensor capability on an open transport.Handle", and on the
// original DeviceTypeManager.cpp's per-vendor dispatch.
package sensor

import (
	"context"

	"github.com/srg/hslble/internal/frame"
	"github.com/srg/hslble/internal/transport"
)

// DeviceInfo holds the identifying and descriptive fields exposed for an
// open slot (§4.H), including the supplemented Device Information Service
// string set and Battery Level (SPEC_FULL.md §5).
type DeviceInfo struct {
	Address string
	Name    string

	Manufacturer     string
	ModelNumber      string
	SerialNumber     string
	HardwareRevision string
	FirmwareRevision string
	SoftwareRevision string

	BatteryPercent *uint8
}

// Driver is a vendor-specific sensor controller bound to one open
// transport.Handle. Probe, Start, and Stop all run on the tick thread;
// decoded frames are passed to Start's emit callback from the transport's
// notification goroutine, so the callbacks Start registers must only ever
// call emit (a non-blocking enqueue) with each decoded packet.
type Driver interface {
	// Name identifies the driver for logging and registry diagnostics.
	Name() string

	// Probe reports whether h is an instance of this driver's vendor
	// device, and the stream capabilities it can provide if so.
	Probe(ctx context.Context, h transport.Handle) (frame.StreamMask, error)

	// Start begins streaming the requested subset of Probe's advertised
	// capabilities, delivering decoded packets to emit.
	Start(ctx context.Context, h transport.Handle, want frame.StreamMask, emit func(frame.SensorPacket)) error

	// Stop ends streaming; the driver's subscriptions stay in place until
	// the underlying handle is closed, and Close on the handle is the
	// caller's responsibility, not the driver's.
	Stop(ctx context.Context, h transport.Handle) error
}

// ErrProtocol is the sentinel wrapped by vendor protocol/decode failures,
// per the Protocol bucket of the error taxonomy (§7).
var ErrProtocol = protocolError("sensor: protocol error")

type protocolError string

func (e protocolError) Error() string { return string(e) }
