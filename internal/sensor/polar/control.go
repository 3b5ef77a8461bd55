// Package polar implements the Driver for Polar PMD (Polar Measurement
// Data) wearables such as the H10 chest strap.
//
// Grounded on the original PolarPacketProcessor.cpp / PolarH10Sensor.cpp
// control-point TLV protocol and frame layouts, reimplemented against
// transport.Handle/gatt.Profile instead of the original's direct BLE
// stack calls. Each control-point command is sent as a single
// WriteCharacteristic call; commands are not split into chunks.
package polar

import (
	"bytes"
	"context"
	"fmt"

	"github.com/srg/hslble/internal/gatt"
	"github.com/srg/hslble/internal/sensor"
	"github.com/srg/hslble/internal/transport"
)

// measurementType identifies a PMD stream in control-point TLV requests.
type measurementType uint8

const (
	measurementECG measurementType = 0
	measurementPPG measurementType = 1
	measurementACC measurementType = 2
	measurementPPI measurementType = 3
)

// controlOpcode is the first byte of every PMD control-point command.
type controlOpcode uint8

const (
	opGetMeasurementSettings controlOpcode = 0x01
	opRequestStart           controlOpcode = 0x02
	opRequestStop            controlOpcode = 0x03
)

// controlResponseTag marks a PMD control-point indication as a
// start/stop acknowledgement rather than a feature read (0x0F, handled
// separately in driver.go's capability probe).
const controlResponseTag byte = 0xF0

// settingField is one (type, value) pair in a start-measurement TLV
// request, e.g. {SampleRate, 130} or {Resolution, 14}.
type settingField struct {
	kind  uint8
	value uint16
}

const (
	settingSampleRate uint8 = 0x00
	settingResolution uint8 = 0x01
	settingRange      uint8 = 0x02
	settingChannels   uint8 = 0x04
)

// sampleRates is the set of PMD sample rates a Start call negotiates,
// sourced from the persisted §6 PolarDriverConfig (device_name,
// sample_history_duration, hrv_history_size live at the devicemanager
// layer; only the three streamable sample rates are needed here).
type sampleRates struct {
	ecg int
	ppg int
	acc int
}

// defaultSampleRates mirrors PolarSensorConfig's compiled-in defaults
// (the first entry of each k_available_*_sample_rates table), used when
// a driver is constructed without an explicit config (e.g. in tests).
var defaultSampleRates = sampleRates{ecg: 130, ppg: 130, acc: 25}

// settingsFor returns the fixed TLV settings this driver requests for
// each measurement type, using rates' sample rate for the ones that are
// configurable (ECG/PPG/ACC) and the original's fixed resolution/range
// for the rest; PPI has no configurable settings.
func settingsFor(m measurementType, rates sampleRates) []settingField {
	switch m {
	case measurementECG:
		return []settingField{{settingSampleRate, uint16(rates.ecg)}, {settingResolution, 14}}
	case measurementPPG:
		return []settingField{{settingSampleRate, uint16(rates.ppg)}, {settingResolution, 22}, {settingChannels, 4}}
	case measurementACC:
		return []settingField{{settingSampleRate, uint16(rates.acc)}, {settingResolution, 16}, {settingRange, 8}}
	case measurementPPI:
		return nil
	default:
		return nil
	}
}

// encodeStart builds the control-point payload for opRequestStart: opcode,
// measurement type, then each setting as {kind, 1, loByte, hiByte}.
func encodeStart(m measurementType, rates sampleRates) []byte {
	buf := []byte{byte(opRequestStart), byte(m)}
	for _, s := range settingsFor(m, rates) {
		buf = append(buf, s.kind, 0x01, byte(s.value), byte(s.value>>8))
	}
	return buf
}

func encodeStop(m measurementType) []byte {
	return []byte{byte(opRequestStop), byte(m)}
}

// controlResponder routes PMD control-point indications to whichever
// writeControl call is currently waiting for one. Start/Stop issue their
// commands sequentially per measurement type (driver.go), so only one
// command is ever in flight and a single slot is enough.
type controlResponder struct {
	ch chan []byte
}

func newControlResponder() *controlResponder {
	return &controlResponder{ch: make(chan []byte, 1)}
}

// onIndication is the Subscribe callback for CharPolarPMDControl.
// Feature-read responses (tag 0x0F) never arrive this way — that's a
// plain characteristic read — so anything routed here is a start/stop
// acknowledgement.
func (r *controlResponder) onIndication(data []byte) {
	select {
	case r.ch <- data:
	default:
		// Nobody is waiting (e.g. a late indication after writeControl
		// already timed out); drop it rather than block the
		// notification goroutine.
	}
}

// writeControl writes a control-point command and blocks for its
// indication response, validating the §4.F-mandated
// [0xF0, op, measurement_type, 0x00] prefix. A device-rejected or
// missing response returns sensor.ErrProtocol so the caller leaves the
// stream marked not-active per §7, instead of treating the bare ATT
// write ack as success.
func writeControl(ctx context.Context, h transport.Handle, r *controlResponder, payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("%w: PMD control payload too short", sensor.ErrProtocol)
	}
	op, m := payload[0], payload[1]

	if err := h.WriteCharacteristic(ctx, gatt.ServicePolarPMD, gatt.CharPolarPMDControl, payload, transport.WriteWithResponse); err != nil {
		return fmt.Errorf("%w: writing PMD control point: %v", sensor.ErrProtocol, err)
	}

	select {
	case resp := <-r.ch:
		want := []byte{controlResponseTag, op, m, 0x00}
		if len(resp) < 4 || !bytes.Equal(resp[:4], want) {
			return fmt.Errorf("%w: PMD control point rejected op=%#x type=%d: % x", sensor.ErrProtocol, op, m, resp)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: no PMD control point response: %v", sensor.ErrProtocol, ctx.Err())
	}
}
