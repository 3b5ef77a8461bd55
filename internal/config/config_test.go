package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadValidDocument(t *testing.T) {
	doc, err := Load(strings.NewReader(`
version: 1
log_level: debug
max_slots: 4
ring_sizes:
  heart_rate: 32
device_manager:
  sensor_reconnect_interval: 500ms
sensor_manager:
  heart_rate_timeout_milliseconds: 5000
`), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "debug", doc.LogLevel)
	assert.Equal(t, 4, doc.MaxSlots)
	assert.Equal(t, 32, doc.RingSizes.HeartRate)
	// unset fields still get defaults applied
	assert.Equal(t, 512, doc.RingSizes.ECG)
	assert.Equal(t, 500*1000*1000, int(doc.DeviceManager.SensorReconnectInterval))
	assert.Equal(t, 5000, doc.SensorManager.HeartRateTimeoutMillis)
}

func TestLoadVersionMismatchFallsBackToDefaults(t *testing.T) {
	doc, err := Load(strings.NewReader(`
version: 99
max_slots: 4
`), nil)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, doc.Version)
	assert.Equal(t, 8, doc.MaxSlots) // default, not the 4 from the bad document
}

func TestLoadMalformedYAMLFallsBackToDefaults(t *testing.T) {
	doc, err := Load(strings.NewReader("not: [valid: yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, doc.Version)
	assert.Equal(t, 8, doc.MaxSlots)
}

func TestLevelFallsBackToInfoOnUnrecognized(t *testing.T) {
	doc := &Document{LogLevel: "not-a-level"}
	assert.Equal(t, "info", doc.Level().String())
}

func TestDeviceManagerConfigDefaults(t *testing.T) {
	doc, err := Load(strings.NewReader("version: 1"), nil)
	require.NoError(t, err)
	assert.Equal(t, "2ms", doc.DeviceManager.SensorPollInterval.String())
	assert.True(t, doc.DeviceManager.PlatformAPIEnabled)
}

func TestSensorManagerHeartRateTimeoutConversion(t *testing.T) {
	c := SensorManagerConfig{HeartRateTimeoutMillis: 3000}
	assert.Equal(t, "3s", c.HeartRateTimeout().String())
}

func TestPolarDriverConfigSanitizeClampsToFirstAvailableRate(t *testing.T) {
	c := PolarDriverConfig{ECGSampleRate: 999, PPGSampleRate: 999, AccSampleRate: 999}
	c.Sanitize()
	assert.Equal(t, 130, c.ECGSampleRate)
	assert.Equal(t, 130, c.PPGSampleRate)
	assert.Equal(t, 25, c.AccSampleRate)
}

func TestPolarDriverConfigSanitizeKeepsValidAccRate(t *testing.T) {
	c := PolarDriverConfig{AccSampleRate: 200}
	c.Sanitize()
	assert.Equal(t, 200, c.AccSampleRate)
}

func TestAdafruitDriverConfigSanitize(t *testing.T) {
	c := AdafruitDriverConfig{GSRSampleRate: 999}
	c.Sanitize()
	assert.Equal(t, 10, c.GSRSampleRate)
}

func TestStoreOpenMissingFileAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_AA-BB.yaml")
	s, err := OpenStore[PolarDriverConfig](path, nil)
	require.NoError(t, err)
	assert.Equal(t, 130, s.Get().ECGSampleRate)
	assert.Equal(t, 100, s.Get().HRVHistorySize)
}

func TestStoreSetPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_AA-BB.yaml")
	s, err := OpenStore[PolarDriverConfig](path, nil)
	require.NoError(t, err)

	err = s.Set(func(c *PolarDriverConfig) {
		c.IsValid = true
		c.Name = "Polar H10 A1B2"
		c.ECGSampleRate = 130
	})
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "Set must write the document to disk immediately")

	reopened, err := OpenStore[PolarDriverConfig](path, nil)
	require.NoError(t, err)
	got := reopened.Get()
	assert.True(t, got.IsValid)
	assert.Equal(t, "Polar H10 A1B2", got.Name)
}

func TestStoreReloadFallsBackToDefaultsOnMalformedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	s, err := OpenStore[AdafruitDriverConfig](path, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, s.Get().GSRSampleRate)
}
