package polar

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/hslble/internal/frame"
)

func TestDecodeHeartRateU8BPMNoOptionalFields(t *testing.T) {
	// flags = 0x00: u8 BPM, no contact status, no energy, no RR
	data := []byte{0x00, 72}
	f, err := decodeHeartRate(data, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(72), f.BPM)
	assert.Equal(t, frame.ContactInvalid, f.Contact)
}

func TestDecodeHeartRateU8BPMWithContactEnergyAndRR(t *testing.T) {
	// flags = 0x1E: bit0 clear (u8 BPM), bit1+bit2 set (contact supported,
	// skin contact detected), bit3 set (energy present), bit4 set (RR
	// present). §9 Open Question 1: the documented scenario input is
	// corrected from 0x16 so the expected energy field is actually
	// present per its own flag bit.
	var buf []byte
	buf = append(buf, 0x1E, 72)
	energy := make([]byte, 2)
	binary.LittleEndian.PutUint16(energy, 1000)
	buf = append(buf, energy...)
	rr := make([]byte, 2)
	binary.LittleEndian.PutUint16(rr, 692) // raw u16 milliseconds, per S3 (§3 gives no unit conversion)
	buf = append(buf, rr...)

	f, err := decodeHeartRate(buf, 1.5)
	require.NoError(t, err)
	assert.Equal(t, uint16(72), f.BPM)
	assert.Equal(t, frame.ContactContact, f.Contact)
	assert.Equal(t, uint16(1000), f.EnergyExpendedKJ)
	require.Len(t, f.RRIntervalsMillis, 1)
	assert.Equal(t, uint16(692), f.RRIntervalsMillis[0])
	assert.Equal(t, 1.5, f.T)
}

func TestDecodeHeartRateU16BPM(t *testing.T) {
	// flags = 0x01: bit0 set selects the little-endian uint16 BPM field.
	var buf []byte
	buf = append(buf, 0x01)
	bpm := make([]byte, 2)
	binary.LittleEndian.PutUint16(bpm, 180)
	buf = append(buf, bpm...)

	f, err := decodeHeartRate(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(180), f.BPM)
}

func TestDecodeHeartRateTooShort(t *testing.T) {
	_, err := decodeHeartRate([]byte{0x00}, 0)
	assert.Error(t, err)
}

func TestSext24RoundTrip(t *testing.T) {
	cases := []int32{0, 1, -1, 8388607, -8388608, 1000, -1000}
	for _, v := range cases {
		b := []byte{byte(v), byte(v >> 8), byte(v >> 16)}
		assert.Equal(t, v, sext24(b))
	}
}

func TestDecodeECGPayload(t *testing.T) {
	samples := []int32{100, -100, 0, 8388607, -8388608}
	var payload []byte
	for _, s := range samples {
		payload = append(payload, byte(s), byte(s>>8), byte(s>>16))
	}
	f, err := decodeECG(payload, 2.0)
	require.NoError(t, err)
	assert.Equal(t, samples, f.Values)
	assert.Equal(t, 2.0, f.T)
}

func TestDecodeECGRejectsMisalignedPayload(t *testing.T) {
	_, err := decodeECG([]byte{1, 2}, 0)
	assert.Error(t, err)
}

func TestDecodeACCConvertsMilliGToG(t *testing.T) {
	payload := []byte{}
	x, y, z := int16(1000), int16(-500), int16(0)
	payload = append(payload, byte(x), byte(x>>8), byte(y), byte(y>>8), byte(z), byte(z>>8))
	f, err := decodeACC(payload, 0)
	require.NoError(t, err)
	require.Len(t, f.Samples, 1)
	assert.InDelta(t, 1.0, f.Samples[0].X, 0.001)
	assert.InDelta(t, -0.5, f.Samples[0].Y, 0.001)
	assert.InDelta(t, 0.0, f.Samples[0].Z, 0.001)
}

func TestDecodePPISample(t *testing.T) {
	payload := []byte{65, 0xE8, 0x03, 0x0A, 0x00, 0x03} // bpm=65, pulse=1000ms, err=10ms, flags=blocker|skin contact
	f, err := decodePPI(payload, 0)
	require.NoError(t, err)
	require.Len(t, f.Samples, 1)
	s := f.Samples[0]
	assert.Equal(t, uint8(65), s.BPM)
	assert.Equal(t, uint16(1000), s.PulseMillis)
	assert.Equal(t, uint16(10), s.ErrorMillis)
	assert.True(t, s.Blocker)
	assert.True(t, s.SkinContact)
}

func TestDecodePMDFrameDispatchesByMeasurementType(t *testing.T) {
	var buf []byte
	buf = append(buf, 0) // measurementECG
	buf = append(buf, 0) // frame type
	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, 1_000_000_000)
	buf = append(buf, ts...)
	buf = append(buf, 10, 0, 0) // one ECG sample = 10uV

	origin := &streamOrigin{}
	pkt, err := decodePMDFrame(buf, origin)
	require.NoError(t, err)
	assert.Equal(t, int32(10), pkt.ECG.Values[0])
	assert.Equal(t, 0.0, pkt.ECG.T) // first frame anchors the origin

	binary.LittleEndian.PutUint64(ts, 1_500_000_000)
	buf2 := append([]byte{0, 0}, ts...)
	buf2 = append(buf2, 20, 0, 0)
	pkt2, err := decodePMDFrame(buf2, origin)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pkt2.ECG.T, 0.0001)
}
