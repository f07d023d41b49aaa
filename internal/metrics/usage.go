package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/tether/internal/process"
)

// UsageConfig holds configuration for backend resource sampling.
type UsageConfig struct {
	Enabled     bool          `mapstructure:"usage_enabled"`
	Interval    time.Duration `mapstructure:"usage_interval"`
	HistorySize int           `mapstructure:"usage_history"`
}

// UsageSample is one resource reading of the backend.
type UsageSample struct {
	process.Usage
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
}

// sampleFunc is swapped in tests.
var sampleFunc = process.Sample

// UsageCollector periodically samples one backend process into the
// prometheus gauges and a bounded history.
type UsageCollector struct {
	enabled  bool
	interval time.Duration
	log      *slog.Logger

	mu       sync.RWMutex
	buf      []UsageSample
	startIdx int
	count    int

	runMu   sync.Mutex // guards stopped and wg.Add against Stop
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewUsageCollector creates a collector; zero values get defaults.
func NewUsageCollector(cfg UsageConfig, log *slog.Logger) *UsageCollector {
	size := cfg.HistorySize
	if size <= 0 {
		size = 60
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &UsageCollector{
		enabled:  cfg.Enabled,
		interval: interval,
		log:      log,
		buf:      make([]UsageSample, size),
		stopCh:   make(chan struct{}),
	}
}

// Start samples pid once right away and then every interval, until ctx is
// done or Stop is called. It is a no-op when the collector is disabled.
func (c *UsageCollector) Start(ctx context.Context, pid int) {
	if !c.enabled || pid <= 0 {
		return
	}
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.stopped {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			c.collect(pid)
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends sampling and zeroes the gauges once the sampler has returned.
// Safe to call more than once; Start after Stop is a no-op.
func (c *UsageCollector) Stop() {
	c.runMu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.stopCh)
	}
	c.runMu.Unlock()
	c.wg.Wait()
	if c.enabled {
		resetUsage()
	}
}

func (c *UsageCollector) collect(pid int) {
	u, err := sampleFunc(pid)
	if err != nil {
		c.log.Debug("usage sample failed", "pid", pid, "error", err)
		return
	}
	c.add(UsageSample{Usage: u, PID: pid, Timestamp: time.Now()})
	setUsage(u.RSSBytes, u.CPUPercent, u.NumThreads)
}

// add stores s in the ring buffer, overwriting the oldest entry once full.
func (c *UsageCollector) add(s UsageSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	size := len(c.buf)
	if c.count < size {
		c.buf[c.count] = s
		c.count++
		return
	}
	c.buf[c.startIdx] = s
	c.startIdx = (c.startIdx + 1) % size
}

// Latest returns the most recent sample.
func (c *UsageCollector) Latest() (UsageSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.count == 0 {
		return UsageSample{}, false
	}
	size := len(c.buf)
	idx := c.count - 1
	if c.count == size {
		idx = (c.startIdx - 1 + size) % size
	}
	return c.buf[idx], true
}

// History returns the retained samples, oldest first.
func (c *UsageCollector) History() []UsageSample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]UsageSample, c.count)
	if c.count < len(c.buf) {
		copy(out, c.buf[:c.count])
		return out
	}
	n := copy(out, c.buf[c.startIdx:])
	copy(out[n:], c.buf[:c.startIdx])
	return out
}
