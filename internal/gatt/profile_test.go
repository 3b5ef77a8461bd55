package gatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfilePopulationAndLookup(t *testing.T) {
	p := NewProfile()
	hr := p.AddService(ServiceHeartRate, "Heart Rate")
	hrm := hr.AddCharacteristic(CharHeartRateMeasurement, "Heart Rate Measurement", NewProperties(uint8(PropNotify)))
	hrm.AddDescriptor(DescClientConfig, "Client Characteristic Configuration")

	batt := p.AddService(ServiceBattery, "Battery")
	batt.AddCharacteristic(CharBatteryLevel, "Battery Level", NewProperties(uint8(PropRead)))

	require.Len(t, p.Services(), 2)

	found, ok := p.FindService(ServiceHeartRate)
	require.True(t, ok)
	assert.Same(t, hr, found)
	assert.Same(t, p, found.Profile())

	_, ok = p.FindService(ServiceDeviceInfo)
	assert.False(t, ok, "missing service is not an error at tree level")

	fc, ok := hr.FindCharacteristic(CharHeartRateMeasurement)
	require.True(t, ok)
	assert.True(t, fc.Properties().Notifiable())
	assert.Same(t, hr, fc.Service())

	fd, ok := fc.FindDescriptor(DescClientConfig)
	require.True(t, ok)
	assert.Same(t, fc, fd.Characteristic())

	assert.Len(t, hr.Characteristics(), 1)
	assert.Len(t, batt.Characteristics(), 1)
}

func TestParseDescriptorValueKnownAndUnknown(t *testing.T) {
	v, err := ParseDescriptorValue(DescClientConfig, []byte{0x01, 0x00})
	require.NoError(t, err)
	cc, ok := v.(*ClientConfig)
	require.True(t, ok)
	assert.True(t, cc.Notifications)
	assert.False(t, cc.Indications)

	raw, err := ParseDescriptorValue(Parse("ffff"), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)

	empty, err := ParseDescriptorValue(DescClientConfig, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
