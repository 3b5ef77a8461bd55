package polar

import (
	"encoding/binary"
	"fmt"

	"github.com/srg/hslble/internal/frame"
	"github.com/srg/hslble/internal/sensor"
)

// streamOrigin anchors PMD frame timestamps (nanoseconds since the
// sensor's own epoch) to a stream-relative float64 of seconds, the same
// "monotonic stream-start origin" convention every capability uses (the
// first frame observed on a stream defines t=0; all later frames in that
// stream are relative to it).
type streamOrigin struct {
	set   bool
	nanos uint64
}

func (o *streamOrigin) relativeSeconds(nanos uint64) float64 {
	if !o.set {
		o.set = true
		o.nanos = nanos
	}
	return float64(nanos-o.nanos) / 1e9
}

// decodePMDHeader reads the common PMD data-frame header: measurement
// type, frame type, and an 8-byte little-endian nanosecond timestamp.
func decodePMDHeader(data []byte) (measurementType, uint8, uint64, []byte, error) {
	if len(data) < 10 {
		return 0, 0, 0, nil, fmt.Errorf("%w: PMD frame too short (%d bytes)", sensor.ErrProtocol, len(data))
	}
	mt := measurementType(data[0])
	frameType := data[1]
	ts := binary.LittleEndian.Uint64(data[2:10])
	return mt, frameType, ts, data[10:], nil
}

// sext24 sign-extends a little-endian 24-bit value to int32.
func sext24(b []byte) int32 {
	v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if v&0x800000 != 0 {
		v |= ^int32(0xFFFFFF)
	}
	return v
}

// decodeECG decodes a PMD ECG payload: one 24-bit signed sample per 3
// bytes, microvolts.
func decodeECG(payload []byte, t float64) (frame.ECGFrame, error) {
	if len(payload)%3 != 0 {
		return frame.ECGFrame{}, fmt.Errorf("%w: ECG payload length %d not a multiple of 3", sensor.ErrProtocol, len(payload))
	}
	n := len(payload) / 3
	values := make([]int32, n)
	for i := 0; i < n; i++ {
		values[i] = sext24(payload[i*3 : i*3+3])
	}
	return frame.ECGFrame{Values: values, T: t}, nil
}

// decodePPG decodes a PMD PPG payload: 4 channels of 24-bit signed
// samples per reading (V0, V1, V2, Ambient), 12 bytes per sample.
func decodePPG(payload []byte, t float64) (frame.PPGFrame, error) {
	const stride = 12
	if len(payload)%stride != 0 {
		return frame.PPGFrame{}, fmt.Errorf("%w: PPG payload length %d not a multiple of %d", sensor.ErrProtocol, len(payload), stride)
	}
	n := len(payload) / stride
	samples := make([]frame.PPGSample, n)
	for i := 0; i < n; i++ {
		b := payload[i*stride : (i+1)*stride]
		samples[i] = frame.PPGSample{
			V0:      sext24(b[0:3]),
			V1:      sext24(b[3:6]),
			V2:      sext24(b[6:9]),
			Ambient: sext24(b[9:12]),
		}
	}
	return frame.PPGFrame{Samples: samples, T: t}, nil
}

// decodeACC decodes a PMD accelerometer payload: 3 channels of 16-bit
// signed milli-g samples per reading, 6 bytes per sample.
func decodeACC(payload []byte, t float64) (frame.AccelerometerFrame, error) {
	const stride = 6
	if len(payload)%stride != 0 {
		return frame.AccelerometerFrame{}, fmt.Errorf("%w: ACC payload length %d not a multiple of %d", sensor.ErrProtocol, len(payload), stride)
	}
	n := len(payload) / stride
	samples := make([]frame.Vec3, n)
	for i := 0; i < n; i++ {
		b := payload[i*stride : (i+1)*stride]
		x := int16(binary.LittleEndian.Uint16(b[0:2]))
		y := int16(binary.LittleEndian.Uint16(b[2:4]))
		z := int16(binary.LittleEndian.Uint16(b[4:6]))
		samples[i] = frame.Vec3{
			X: float32(x) / 1000,
			Y: float32(y) / 1000,
			Z: float32(z) / 1000,
		}
	}
	return frame.AccelerometerFrame{Samples: samples, T: t}, nil
}

// decodePPI decodes a PMD pulse-to-pulse interval payload: one 6-byte
// sample per reading (bpm, pulse interval ms u16, error estimate ms u16,
// flags).
func decodePPI(payload []byte, t float64) (frame.PPIFrame, error) {
	const stride = 6
	if len(payload)%stride != 0 {
		return frame.PPIFrame{}, fmt.Errorf("%w: PPI payload length %d not a multiple of %d", sensor.ErrProtocol, len(payload), stride)
	}
	n := len(payload) / stride
	samples := make([]frame.PPISample, n)
	for i := 0; i < n; i++ {
		b := payload[i*stride : (i+1)*stride]
		flags := b[5]
		samples[i] = frame.PPISample{
			BPM:         b[0],
			PulseMillis: binary.LittleEndian.Uint16(b[1:3]),
			ErrorMillis: binary.LittleEndian.Uint16(b[3:5]),
			Blocker:     flags&0x01 != 0,
			SkinContact: flags&0x02 != 0,
			SCSupported: flags&0x04 != 0,
		}
	}
	return frame.PPIFrame{Samples: samples, T: t}, nil
}

// decodePMDFrame dispatches a raw PMD data-characteristic notification to
// the matching decoder and wraps the result as a frame.SensorPacket.
func decodePMDFrame(data []byte, origin *streamOrigin) (frame.SensorPacket, error) {
	mt, _, ts, payload, err := decodePMDHeader(data)
	if err != nil {
		return frame.SensorPacket{}, err
	}
	t := origin.relativeSeconds(ts)

	switch mt {
	case measurementECG:
		f, err := decodeECG(payload, t)
		if err != nil {
			return frame.SensorPacket{}, err
		}
		return frame.SensorPacket{Kind: frame.PacketECG, ECG: f}, nil
	case measurementPPG:
		f, err := decodePPG(payload, t)
		if err != nil {
			return frame.SensorPacket{}, err
		}
		return frame.SensorPacket{Kind: frame.PacketPPG, PPG: f}, nil
	case measurementACC:
		f, err := decodeACC(payload, t)
		if err != nil {
			return frame.SensorPacket{}, err
		}
		return frame.SensorPacket{Kind: frame.PacketACC, ACC: f}, nil
	case measurementPPI:
		f, err := decodePPI(payload, t)
		if err != nil {
			return frame.SensorPacket{}, err
		}
		return frame.SensorPacket{Kind: frame.PacketPPI, PPI: f}, nil
	default:
		return frame.SensorPacket{}, fmt.Errorf("%w: unknown PMD measurement type %d", sensor.ErrProtocol, mt)
	}
}

// decodeHeartRate parses a standard Bluetooth SIG Heart Rate Measurement
// notification (0x2A37). Per the real Bluetooth SIG specification, flags
// bit0 clear means the BPM field is a single byte; set means it is a
// little-endian uint16 (§9 Open Question 1: the original source had this
// inverted).
func decodeHeartRate(data []byte, t float64) (frame.HeartRateFrame, error) {
	if len(data) < 2 {
		return frame.HeartRateFrame{}, fmt.Errorf("%w: HR frame too short (%d bytes)", sensor.ErrProtocol, len(data))
	}
	flags := data[0]
	offset := 1

	var bpm uint16
	if flags&0x01 == 0 {
		bpm = uint16(data[offset])
		offset++
	} else {
		if len(data) < offset+2 {
			return frame.HeartRateFrame{}, fmt.Errorf("%w: HR frame missing u16 BPM", sensor.ErrProtocol)
		}
		bpm = binary.LittleEndian.Uint16(data[offset : offset+2])
		offset += 2
	}

	contact := frame.ContactInvalid
	if flags&0x04 != 0 { // contact status supported
		if flags&0x02 != 0 {
			contact = frame.ContactContact
		} else {
			contact = frame.ContactNoContact
		}
	}

	var energy uint16
	if flags&0x08 != 0 {
		if len(data) < offset+2 {
			return frame.HeartRateFrame{}, fmt.Errorf("%w: HR frame missing energy expended", sensor.ErrProtocol)
		}
		energy = binary.LittleEndian.Uint16(data[offset : offset+2])
		offset += 2
	}

	var rr []uint16
	if flags&0x10 != 0 {
		for offset+1 < len(data) {
			// RR intervals are a raw u16 in milliseconds (§3); no unit
			// conversion, matching PolarH10Sensor.cpp's direct readShort().
			rr = append(rr, binary.LittleEndian.Uint16(data[offset:offset+2]))
			offset += 2
		}
	}

	return frame.HeartRateFrame{
		Contact:           contact,
		BPM:               bpm,
		EnergyExpendedKJ:  energy,
		RRIntervalsMillis: rr,
		T:                 t,
	}, nil
}
