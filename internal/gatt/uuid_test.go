package gatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShortForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"16-bit", "180d", "0000180d-0000-1000-8000-00805f9b34fb"},
		{"16-bit with 0x prefix", "0x180D", "0000180d-0000-1000-8000-00805f9b34fb"},
		{"32-bit", "0000180d", "0000180d-0000-1000-8000-00805f9b34fb"},
		{"36-char canonical", "0000180d-0000-1000-8000-00805f9b34fb", "0000180d-0000-1000-8000-00805f9b34fb"},
		{"braced", "{0000180d-0000-1000-8000-00805f9b34fb}", "0000180d-0000-1000-8000-00805f9b34fb"},
		{"custom 128-bit", "fb005c80-02e7-f387-1cad-8acd2d8df0c8", "fb005c80-02e7-f387-1cad-8acd2d8df0c8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := Parse(tt.in)
			require.True(t, u.IsValid())
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestParseMalformedIsInvalid(t *testing.T) {
	for _, in := range []string{"", "zzzz", "12345", "not-a-uuid-at-all-nope"} {
		u := Parse(in)
		assert.False(t, u.IsValid(), "expected %q to be invalid", in)
	}
}

func TestParseRoundTrip(t *testing.T) {
	// UUID parse(canonical_form(u)) == u for every valid u, including
	// 16- and 32-bit short inputs after expansion (§8 round-trip property).
	for _, in := range []string{"180d", "0000180d", "fb005c80-02e7-f387-1cad-8acd2d8df0c8"} {
		u := Parse(in)
		require.True(t, u.IsValid())
		u2 := Parse(u.String())
		require.True(t, u2.IsValid())
		assert.True(t, u.Equal(u2))
	}
}

func TestSet(t *testing.T) {
	s := NewSet(ServiceHeartRate, ServiceBattery)
	assert.True(t, s.Contains(ServiceHeartRate))
	assert.False(t, s.Contains(ServiceDeviceInfo))
	assert.Equal(t, 2, s.Len())
}
