package sensor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/hslble/internal/frame"
	"github.com/srg/hslble/internal/gatt"
	"github.com/srg/hslble/internal/transport"
)

type fakeDriver struct {
	name  string
	caps  frame.StreamMask
	probe func() bool
}

func (f *fakeDriver) Name() string { return f.name }
func (f *fakeDriver) Probe(ctx context.Context, h transport.Handle) (frame.StreamMask, error) {
	if f.probe != nil && f.probe() {
		return f.caps, nil
	}
	return 0, nil
}
func (f *fakeDriver) Start(ctx context.Context, h transport.Handle, want frame.StreamMask, emit func(frame.SensorPacket)) error {
	return nil
}
func (f *fakeDriver) Stop(ctx context.Context, h transport.Handle) error { return nil }

func TestMatchPrefersServiceUUIDOverName(t *testing.T) {
	r := NewRegistry()
	polarUUID := gatt.MustParse("fb005c80-02e7-f387-1cad-8acd2d8df0c8")
	r.Register("polar", []gatt.UUID{polarUUID}, []string{"Polar"}, func() Driver {
		return &fakeDriver{name: "polar"}
	})
	r.Register("generic", nil, []string{"Po"}, func() Driver {
		return &fakeDriver{name: "generic"}
	})

	f := r.Match([]gatt.UUID{polarUUID}, "Unnamed Device")
	require.NotNil(t, f)
	assert.Equal(t, "polar", f().Name())
}

func TestMatchFallsBackToLongestNamePrefix(t *testing.T) {
	r := NewRegistry()
	r.Register("adafruit", nil, []string{"Feather"}, func() Driver { return &fakeDriver{name: "adafruit"} })
	r.Register("adafruit-sense", nil, []string{"Feather Sense"}, func() Driver { return &fakeDriver{name: "adafruit-sense"} })

	f := r.Match(nil, "Feather Sense GSR")
	require.NotNil(t, f)
	assert.Equal(t, "adafruit-sense", f().Name())
}

func TestMatchReturnsNilWhenNothingFits(t *testing.T) {
	r := NewRegistry()
	r.Register("polar", nil, []string{"Polar"}, func() Driver { return &fakeDriver{name: "polar"} })
	assert.Nil(t, r.Match(nil, "Totally Unrelated"))
}

func TestProbeReturnsFirstDriverThatRecognizesHandle(t *testing.T) {
	r := NewRegistry()
	r.Register("a", nil, nil, func() Driver {
		return &fakeDriver{name: "a", probe: func() bool { return false }}
	})
	r.Register("b", nil, nil, func() Driver {
		return &fakeDriver{name: "b", caps: frame.StreamHR, probe: func() bool { return true }}
	})

	d, err := r.Probe(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "b", d.Name())
}
