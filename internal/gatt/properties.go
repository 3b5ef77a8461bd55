package gatt

// PropertyFlag is a single BLE characteristic property bit, matching the
// GATT characteristic properties field layout.
type PropertyFlag uint8

const (
	PropBroadcast PropertyFlag = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtendedProperties
)

// Properties is the §3 "Characteristic properties" bitflag set:
// broadcastable, readable, writable, writable-without-response,
// signed-writable, notifiable, indicatable, has-extended-properties.
type Properties struct {
	flags PropertyFlag
}

// NewProperties builds a Properties value from a raw GATT property bitmask
// (the same bit layout the Bluetooth SIG defines and go-ble exposes as
// ble.Property).
func NewProperties(raw uint8) Properties {
	return Properties{flags: PropertyFlag(raw)}
}

func (p Properties) has(f PropertyFlag) bool { return p.flags&f != 0 }

// Broadcastable reports the broadcast property bit.
func (p Properties) Broadcastable() bool { return p.has(PropBroadcast) }

// Readable reports the read property bit.
func (p Properties) Readable() bool { return p.has(PropRead) }

// Writable reports the write-with-response property bit.
func (p Properties) Writable() bool { return p.has(PropWrite) }

// WritableWithoutResponse reports the write-without-response property bit.
func (p Properties) WritableWithoutResponse() bool { return p.has(PropWriteWithoutResponse) }

// SignedWritable reports the authenticated-signed-write property bit.
func (p Properties) SignedWritable() bool { return p.has(PropSignedWrite) }

// Notifiable reports the notify property bit.
func (p Properties) Notifiable() bool { return p.has(PropNotify) }

// Indicatable reports the indicate property bit.
func (p Properties) Indicatable() bool { return p.has(PropIndicate) }

// HasExtendedProperties reports the extended-properties property bit.
func (p Properties) HasExtendedProperties() bool { return p.has(PropExtendedProperties) }

// Raw returns the underlying bitmask.
func (p Properties) Raw() uint8 { return uint8(p.flags) }
