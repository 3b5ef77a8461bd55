// Package config loads the daemon's YAML configuration document and hosts
// the §6 persisted per-device-type schemas. It mirrors the defaulting
// idiom the rest of the tree uses for options structs
// (mcuadros/go-defaults) but applies it at the document level: a config
// whose Version doesn't match, or that fails to decode, falls back to an
// all-defaults document rather than aborting startup.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only config document version this build accepts
// without falling back to defaults.
const CurrentVersion = 1

// ErrConfig is the sentinel wrapped by configuration-layer errors, per the
// Config bucket of the error taxonomy.
var ErrConfig = errors.New("config error")

// Document is the top-level YAML configuration shape for the daemon
// process: ambient concerns (logging, timeouts, buffer sizing) plus the
// two process-wide §6 schemas, DeviceManagerConfig and SensorManagerConfig.
// The two per-device-type schemas, PolarDriverConfig and
// AdafruitDriverConfig, are not embedded here — they are persisted one
// document per paired device via Store, the same "sensor_<address>"
// identifier scheme original_source/.../ServerSensorView.cpp uses.
type Document struct {
	Version int `yaml:"version"`

	LogLevel string `yaml:"log_level" default:"info"`

	ScanTimeout     time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"15s"`
	HandleGraceTime time.Duration `yaml:"handle_grace_time" default:"5s"`

	MaxSlots int `yaml:"max_slots" default:"8"`

	// SampleHistoryDuration is the trailing window (seconds) ring buffers
	// are sized to hold, per §4.G's "sample_rate × history_duration_seconds".
	SampleHistoryDuration float64 `yaml:"sample_history_duration" default:"10"`

	RingSizes RingSizes `yaml:"ring_sizes"`

	HRV HRVConfig `yaml:"hrv"`

	DeviceManager DeviceManagerConfig `yaml:"device_manager"`
	SensorManager SensorManagerConfig `yaml:"sensor_manager"`
}

// RingSizes configures per-capability ring buffer capacities (§4.C).
type RingSizes struct {
	HeartRate     int `yaml:"heart_rate" default:"64"`
	ECG           int `yaml:"ecg" default:"512"`
	PPG           int `yaml:"ppg" default:"512"`
	PPI           int `yaml:"ppi" default:"64"`
	Accelerometer int `yaml:"accelerometer" default:"256"`
	EDA           int `yaml:"eda" default:"64"`
}

// HRVConfig configures the §4.G derived-statistics window.
type HRVConfig struct {
	HistorySize int      `yaml:"history_size" default:"30"`
	Filters     []string `yaml:"filters"`
}

// DeviceManagerConfig is the first of the four §6 schemas. Grounded on
// DeviceManager.cpp's DeviceManagerConfig: sensor_reconnect_interval gates
// internal/hotplug's polling fallback, sensor_poll_interval is reserved
// for a future platform-level poll (no pack dependency exposes one yet,
// see DESIGN.md), and platform_api_enabled is loaded but not read by any
// component.
type DeviceManagerConfig struct {
	SensorReconnectInterval time.Duration `yaml:"sensor_reconnect_interval" default:"1s"`
	SensorPollInterval      time.Duration `yaml:"sensor_poll_interval" default:"2ms"`
	PlatformAPIEnabled      bool          `yaml:"platform_api_enabled" default:"true"`
}

// SensorManagerConfig is the second §6 schema. Grounded on
// SensorManager.cpp's heart_rate_timeout_milliseconds, the idle window
// after which a slot's last-known BPM is reported as zero.
type SensorManagerConfig struct {
	HeartRateTimeoutMillis int `yaml:"heart_rate_timeout_milliseconds" default:"3000"`
}

// HeartRateTimeout converts HeartRateTimeoutMillis to a time.Duration.
func (c SensorManagerConfig) HeartRateTimeout() time.Duration {
	return time.Duration(c.HeartRateTimeoutMillis) * time.Millisecond
}

// PolarDriverConfig is the third §6 schema: a per-device persisted
// document for a paired Polar sensor, one file per device identifier.
// Grounded field-for-field on PolarSensorConfig.h/.cpp's writeToJSON/
// readFromJSON pair.
type PolarDriverConfig struct {
	IsValid bool   `yaml:"is_valid"`
	Version int64  `yaml:"version"`
	Name    string `yaml:"device_name"`

	SampleHistoryDuration float64 `yaml:"sample_history_duration" default:"1"`
	HRVHistorySize        int     `yaml:"hrv_history_size" default:"100"`

	ECGSampleRate int `yaml:"ecg_sample_rate" default:"130"`
	PPGSampleRate int `yaml:"ppg_sample_rate" default:"130"`
	AccSampleRate int `yaml:"acc_sample_rate" default:"25"`
}

var (
	polarAvailableECGRates = []int{130}
	polarAvailablePPGRates = []int{130}
	polarAvailableAccRates = []int{25, 50, 100, 200}
)

// Sanitize clamps each sample-rate field to an available value, same as PolarSensorConfig::sanitizeSampleRate: an unrecognized rate
// falls back to the first entry of the available-rates table rather than
// being rejected outright.
func (c *PolarDriverConfig) Sanitize() {
	c.ECGSampleRate = sanitizeRate(c.ECGSampleRate, polarAvailableECGRates)
	c.PPGSampleRate = sanitizeRate(c.PPGSampleRate, polarAvailablePPGRates)
	c.AccSampleRate = sanitizeRate(c.AccSampleRate, polarAvailableAccRates)
}

func sanitizeRate(rate int, available []int) int {
	for _, r := range available {
		if r == rate {
			return rate
		}
	}
	return available[0]
}

// AdafruitDriverConfig is the fourth §6 schema: a per-device persisted
// document for a paired Adafruit GSR board. Grounded field-for-field on
// AdafruitSensorConfig.h/.cpp.
type AdafruitDriverConfig struct {
	IsValid bool   `yaml:"is_valid"`
	Version int64  `yaml:"version"`
	Name    string `yaml:"device_name"`

	SampleHistoryDuration float64 `yaml:"sample_history_duration" default:"1"`
	GSRSampleRate         int     `yaml:"gsr_sample_rate" default:"10"`
}

var adafruitAvailableGSRRates = []int{10}

// Sanitize clamps GSRSampleRate to its one available value.
func (c *AdafruitDriverConfig) Sanitize() {
	c.GSRSampleRate = sanitizeRate(c.GSRSampleRate, adafruitAvailableGSRRates)
}

// Store persists a single §6 schema document (T) to a YAML file on disk,
// loading it once at open and saving on every Set: the same
// load-once/save-on-every-mutation contract as the original's per-device
// writeToJSON/readFromJSON round trip, so a crash between two field
// writes never leaves a half-written document (each Set is one full
// encode of the whole value, not an incremental patch).
type Store[T any] struct {
	mu     sync.Mutex
	path   string
	logger *logrus.Logger
	value  T
}

// OpenStore loads path into a Store[T], applying field defaults
// (mcuadros/go-defaults) for a missing file or a decode failure rather
// than erroring — a daemon should still pair a sensor with a config file
// it couldn't previously read.
func OpenStore[T any](path string, logger *logrus.Logger) (*Store[T], error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store[T]{path: path, logger: logger}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store[T]) reload() error {
	var v T

	f, err := os.Open(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// no persisted document yet: defaults only.
	case err != nil:
		return fmt.Errorf("%w: opening %s: %v", ErrConfig, s.path, err)
	default:
		defer f.Close()
		if decodeErr := yaml.NewDecoder(f).Decode(&v); decodeErr != nil && decodeErr != io.EOF {
			s.logger.WithError(decodeErr).Warn("config: decode failed, falling back to defaults")
			v = *new(T)
		}
	}

	defaults.SetDefaults(&v)
	s.value = v
	return nil
}

// Get returns a copy of the current in-memory value.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set applies mutate to the in-memory value, then immediately saves the
// whole document to disk (save-on-set): callers never need a separate
// explicit Save call, matching the original's "every setter persists"
// convention.
func (s *Store[T]) Set(mutate func(*T)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.value)
	return s.save()
}

func (s *Store[T]) save() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrConfig, s.path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	defer enc.Close()
	if err := enc.Encode(s.value); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrConfig, s.path, err)
	}
	return nil
}

// Load decodes a YAML configuration document from r. On decode failure or
// a Version mismatch, it logs a warning and returns a document with
// defaults applied instead of failing the whole process: a daemon should
// still come up and scan for devices with a bad config file rather than
// refuse to start.
func Load(r io.Reader, logger *logrus.Logger) (*Document, error) {
	if logger == nil {
		logger = logrus.New()
	}

	var doc Document
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config: %v", ErrConfig, err)
	}

	decodeErr := yaml.Unmarshal(raw, &doc)
	switch {
	case decodeErr != nil:
		logger.WithError(decodeErr).Warn("config decode failed, falling back to defaults")
		doc = Document{}
	case doc.Version != CurrentVersion:
		logger.WithFields(logrus.Fields{
			"found":    doc.Version,
			"expected": CurrentVersion,
		}).Warn("config version mismatch, falling back to defaults")
		doc = Document{}
	}

	defaults.SetDefaults(&doc)
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	return &doc, nil
}

// Level parses LogLevel, falling back to logrus.InfoLevel on an
// unrecognized string rather than erroring.
func (d *Document) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(d.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger builds a logger configured per the document's LogLevel, using
// the same text formatter register as the rest of the tree.
func (d *Document) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(d.Level())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
