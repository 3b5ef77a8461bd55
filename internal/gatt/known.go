package gatt

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Well-known Bluetooth SIG service UUIDs used by §6.
var (
	ServiceHeartRate     = MustParse("180d")
	ServiceDeviceInfo    = MustParse("180a")
	ServiceBattery       = MustParse("180f")
	ServiceGenericAccess = MustParse("1800")
)

// Well-known Bluetooth SIG characteristic UUIDs used by §6.
var (
	CharHeartRateMeasurement = MustParse("2a37")
	CharBodySensorLocation   = MustParse("2a38")
	CharHeartRateControl     = MustParse("2a39")
	CharManufacturerName     = MustParse("2a29")
	CharModelNumber          = MustParse("2a24")
	CharSerialNumber         = MustParse("2a25")
	CharHardwareRevision     = MustParse("2a27")
	CharFirmwareRevision     = MustParse("2a26")
	CharSoftwareRevision     = MustParse("2a28")
	CharBatteryLevel         = MustParse("2a19")
	CharDeviceName           = MustParse("2a00")
	CharAppearance           = MustParse("2a01")
)

// Well-known Bluetooth SIG descriptor UUIDs (§2 B).
var (
	DescExtendedProperties = MustParse("2900")
	DescUserDescription    = MustParse("2901")
	DescClientConfig       = MustParse("2902")
	DescServerConfig       = MustParse("2903")
	DescPresentationFormat = MustParse("2904")
	DescValidRange         = MustParse("2906")
)

// Vendor-specific 128-bit UUIDs (§6 External Interfaces).
var (
	ServicePolarPMD         = MustParse("fb005c80-02e7-f387-1cad-8acd2d8df0c8")
	CharPolarPMDControl     = MustParse("fb005c81-02e7-f387-1cad-8acd2d8df0c8")
	CharPolarPMDDataMTU     = MustParse("fb005c82-02e7-f387-1cad-8acd2d8df0c8")
	// Adafruit nRF52 Arduino BLE sensor template: B9C8xxxx-5875-4884-A84B-E3EDF3598BF3.
	// The measurement period characteristic (xxxx=0001) is shared across
	// every Adafruit sensor service built on this template, GSR included.
	ServiceAdafruitGSR      = MustParse("b9c80e00-5875-4884-a84b-e3edf3598bf3")
	CharAdafruitMeasurement = MustParse("b9c80e01-5875-4884-a84b-e3edf3598bf3")
	CharAdafruitPeriod      = MustParse("b9c80001-5875-4884-a84b-e3edf3598bf3")
)

// ExtendedProperties is the parsed Characteristic Extended Properties
// descriptor (0x2900): bit0 = Reliable Write, bit1 = Writable Auxiliaries.
type ExtendedProperties struct {
	ReliableWrite       bool
	WritableAuxiliaries bool
}

// ClientConfig is the parsed Client Characteristic Configuration descriptor
// (0x2902): bit0 = Notifications, bit1 = Indications.
type ClientConfig struct {
	Notifications bool
	Indications   bool
}

// ServerConfig is the parsed Server Characteristic Configuration descriptor
// (0x2903): bit0 = Broadcasts.
type ServerConfig struct {
	Broadcasts bool
}

// PresentationFormat is the parsed Characteristic Presentation Format
// descriptor (0x2904).
type PresentationFormat struct {
	Format      uint8
	Exponent    int8
	Unit        uint16
	Namespace   uint8
	Description uint16
}

// ValidRange is the parsed Valid Range descriptor (0x2906). Min/Max widths
// depend on the owning characteristic's value format.
type ValidRange struct {
	MinValue []byte
	MaxValue []byte
}

// ParseDescriptorValue decodes a descriptor's raw bytes based on its UUID.
// Unknown descriptor UUIDs return the raw bytes unchanged; empty data
// returns (nil, nil).
func ParseDescriptorValue(uuid UUID, data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	switch uuid {
	case DescExtendedProperties:
		if len(data) != 2 {
			return nil, fmt.Errorf("gatt: extended properties must be 2 bytes, got %d", len(data))
		}
		v := binary.LittleEndian.Uint16(data)
		return &ExtendedProperties{ReliableWrite: v&0x0001 != 0, WritableAuxiliaries: v&0x0002 != 0}, nil
	case DescClientConfig:
		if len(data) != 2 {
			return nil, fmt.Errorf("gatt: client config must be 2 bytes, got %d", len(data))
		}
		v := binary.LittleEndian.Uint16(data)
		return &ClientConfig{Notifications: v&0x0001 != 0, Indications: v&0x0002 != 0}, nil
	case DescServerConfig:
		if len(data) != 2 {
			return nil, fmt.Errorf("gatt: server config must be 2 bytes, got %d", len(data))
		}
		v := binary.LittleEndian.Uint16(data)
		return &ServerConfig{Broadcasts: v&0x0001 != 0}, nil
	case DescUserDescription:
		str := strings.TrimRight(string(data), "\x00")
		if !utf8.ValidString(str) {
			return nil, fmt.Errorf("gatt: invalid UTF-8 in user description")
		}
		return str, nil
	case DescPresentationFormat:
		if len(data) != 7 {
			return nil, fmt.Errorf("gatt: presentation format must be 7 bytes, got %d", len(data))
		}
		return &PresentationFormat{
			Format:      data[0],
			Exponent:    int8(data[1]),
			Unit:        binary.LittleEndian.Uint16(data[2:4]),
			Namespace:   data[4],
			Description: binary.LittleEndian.Uint16(data[5:7]),
		}, nil
	case DescValidRange:
		if len(data) < 2 {
			return nil, fmt.Errorf("gatt: valid range must be at least 2 bytes, got %d", len(data))
		}
		mid := len(data) / 2
		minV := append([]byte(nil), data[:mid]...)
		maxV := append([]byte(nil), data[mid:]...)
		return &ValidRange{MinValue: minV, MaxValue: maxV}, nil
	default:
		return data, nil
	}
}
