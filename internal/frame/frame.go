// Package frame defines the normalized biometric frame types (§3 Data
// Model) that flow from vendor decoders through the packet queue into
// per-capability ring buffers.
package frame

// ContactStatus is the Heart Rate Measurement skin-contact state.
type ContactStatus uint8

const (
	ContactInvalid ContactStatus = iota
	ContactNoContact
	ContactContact
)

// StreamMask is a bitmask over the capability/stream flags a sensor can
// produce or currently have active.
type StreamMask uint8

const (
	StreamHR StreamMask = 1 << iota
	StreamECG
	StreamPPG
	StreamACC
	StreamPPI
	StreamEDA
)

// Has reports whether flag is set in the mask.
func (m StreamMask) Has(flag StreamMask) bool { return m&flag != 0 }

// HRVFilterMask is a bitmask over the §4.G HRV filter kinds.
type HRVFilterMask uint8

const (
	HRVFilterSDNN HRVFilterMask = 1 << iota
	HRVFilterRMSSD
	HRVFilterSDSD
	HRVFilterNN50
	HRVFilterPNN50
	HRVFilterNN20
	HRVFilterPNN20
)

// Has reports whether flag is set in the mask.
func (m HRVFilterMask) Has(flag HRVFilterMask) bool { return m&flag != 0 }

// HeartRateFrame is a decoded Heart Rate Measurement notification.
type HeartRateFrame struct {
	Contact           ContactStatus
	BPM               uint16
	EnergyExpendedKJ  uint16
	RRIntervalsMillis []uint16 // up to 9 entries, in milliseconds
	T                 float64  // seconds since stream start
}

// ECGFrame is a decoded batch of ECG samples. Values are int32 (§9 Open
// Question 2: the wire format is 24-bit, sign-extended to 32 bits).
type ECGFrame struct {
	Values []int32 // microvolts, up to 10 entries
	T      float64
}

// PPGSample is one optical channel reading.
type PPGSample struct {
	V0, V1, V2, Ambient int32 // 24-bit values
}

// PPGFrame is a decoded batch of PPG samples.
type PPGFrame struct {
	Samples []PPGSample // up to 10 entries
	T       float64
}

// PPISample is one pulse-to-pulse interval reading.
type PPISample struct {
	BPM          uint8
	PulseMillis  uint16
	ErrorMillis  uint16
	Blocker      bool
	SkinContact  bool
	SCSupported  bool
}

// PPIFrame is a decoded batch of PPI samples.
type PPIFrame struct {
	Samples []PPISample
	T       float64
}

// Vec3 is a 3D vector in g (accelerometer) units.
type Vec3 struct {
	X, Y, Z float32
}

// AccelerometerFrame is a decoded batch of accelerometer samples.
type AccelerometerFrame struct {
	Samples []Vec3 // up to 5 entries, in g
	T       float64
}

// EDAFrame is a decoded galvanic skin response sample.
type EDAFrame struct {
	Value uint16 // unitless
	T     float64
}

// HRVFrame is one derived heart-rate-variability statistic sample, one
// stream per filter kind (§4.G).
type HRVFrame struct {
	Value float32
	T     float64
}

// PacketKind tags which variant a SensorPacket carries.
type PacketKind uint8

const (
	PacketHR PacketKind = iota
	PacketECG
	PacketPPG
	PacketPPI
	PacketACC
	PacketEDA
)

// SensorPacket is a tagged union over the frame variants, the unit of
// transfer through the §4.D lock-free packet queue. Exactly one of the
// typed fields is meaningful, selected by Kind; this keeps SensorPacket a
// fixed-size value type. internal/packetqueue does not store it inline: each
// Enqueue allocates a copy and publishes a pointer to it.
type SensorPacket struct {
	Kind PacketKind
	HR   HeartRateFrame
	ECG  ECGFrame
	PPG  PPGFrame
	PPI  PPIFrame
	ACC  AccelerometerFrame
	EDA  EDAFrame
}
