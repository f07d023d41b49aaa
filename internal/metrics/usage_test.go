package metrics

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loykin/tether/internal/process"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubSample(t *testing.T, fn func(int) (process.Usage, error)) {
	t.Helper()
	prev := sampleFunc
	sampleFunc = fn
	t.Cleanup(func() { sampleFunc = prev })
}

func TestUsageCollectorDefaults(t *testing.T) {
	c := NewUsageCollector(UsageConfig{Enabled: true}, nil)
	assert.Equal(t, 15*time.Second, c.interval)
	assert.Len(t, c.buf, 60)
	_, ok := c.Latest()
	assert.False(t, ok)
	assert.Empty(t, c.History())
}

func TestUsageRingBufferKeepsNewest(t *testing.T) {
	c := NewUsageCollector(UsageConfig{Enabled: true, HistorySize: 3}, nil)
	for i := 1; i <= 5; i++ {
		c.add(UsageSample{Usage: process.Usage{RSSBytes: uint64(i)}})
	}
	h := c.History()
	require.Len(t, h, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{h[0].RSSBytes, h[1].RSSBytes, h[2].RSSBytes})
	last, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(5), last.RSSBytes)
}

func TestUsageCollectorSamplesAndUpdatesGauges(t *testing.T) {
	freshRegistry(t)
	var calls atomic.Int32
	stubSample(t, func(pid int) (process.Usage, error) {
		calls.Add(1)
		return process.Usage{RSSBytes: 2048, CPUPercent: 12.5, NumThreads: 4}, nil
	})

	c := NewUsageCollector(UsageConfig{Enabled: true, Interval: 10 * time.Millisecond}, nil)
	c.Start(context.Background(), 4242)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	last, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, 4242, last.PID)
	assert.False(t, last.Timestamp.IsZero())
	assert.Equal(t, 2048.0, testutil.ToFloat64(rssBytes))
	assert.Equal(t, 12.5, testutil.ToFloat64(cpuPercent))

	c.Stop()
	c.Stop()
	assert.Equal(t, 0.0, testutil.ToFloat64(rssBytes))
	n := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, calls.Load(), "no samples after Stop")
}

func TestUsageCollectorSkipsFailedSamples(t *testing.T) {
	stubSample(t, func(int) (process.Usage, error) { return process.Usage{}, errors.New("gone") })
	c := NewUsageCollector(UsageConfig{Enabled: true, Interval: time.Hour}, nil)
	c.collect(1)
	_, ok := c.Latest()
	assert.False(t, ok)
}

func TestUsageCollectorDisabled(t *testing.T) {
	var calls atomic.Int32
	stubSample(t, func(int) (process.Usage, error) { calls.Add(1); return process.Usage{}, nil })
	c := NewUsageCollector(UsageConfig{}, nil)
	c.Start(context.Background(), 1)
	c.Stop()
	assert.Zero(t, calls.Load())
}

func TestUsageCollectorRealProcess(t *testing.T) {
	c := NewUsageCollector(UsageConfig{Enabled: true, Interval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx, os.Getpid())
	require.Eventually(t, func() bool { _, ok := c.Latest(); return ok }, 2*time.Second, 10*time.Millisecond)
	cancel()
	c.Stop()
	last, _ := c.Latest()
	assert.Greater(t, last.RSSBytes, uint64(0))
}

func TestUsageCollectorStartRacingStop(t *testing.T) {
	freshRegistry(t)
	stubSample(t, func(int) (process.Usage, error) {
		return process.Usage{RSSBytes: 4096, NumThreads: 2}, nil
	})
	for i := 0; i < 50; i++ {
		c := NewUsageCollector(UsageConfig{Enabled: true, Interval: time.Millisecond}, nil)
		started := make(chan struct{})
		go func() {
			c.Start(context.Background(), 7)
			close(started)
		}()
		c.Stop()
		<-started
		// a Start that lost the race must not leave a sampler behind
		c.Stop()
		assert.Equal(t, 0.0, testutil.ToFloat64(rssBytes))
	}
}

func TestUsageCollectorStartAfterStop(t *testing.T) {
	var calls atomic.Int32
	stubSample(t, func(int) (process.Usage, error) { calls.Add(1); return process.Usage{}, nil })
	c := NewUsageCollector(UsageConfig{Enabled: true, Interval: time.Millisecond}, nil)
	c.Stop()
	c.Start(context.Background(), 7)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
}
