package hotplug

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollerCallsDirtyRepeatedlyUntilCanceled(t *testing.T) {
	p := NewPoller(5 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	p.Run(ctx, func() { calls.Add(1) })
	<-ctx.Done()
	time.Sleep(5 * time.Millisecond)

	assert.Greater(t, int(calls.Load()), 1)
}

func TestNewPollerDefaultsToOneSecond(t *testing.T) {
	p := NewPoller(0)
	assert.Equal(t, time.Second, p.Interval)
}
