package us

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stockvault/internal/gather"
	"stockvault/internal/metrics"
	"stockvault/internal/util"
)

var _ gather.Gatherer = (*LiveDaemon)(nil)

// DefaultInterval is the spacing between live sampling cycles.
const DefaultInterval = 15 * time.Minute

// MaxConsecutiveFailures is the number of failed cycles in a row after which
// the daemon reports itself unhealthy. One successful cycle clears it.
const MaxConsecutiveFailures = 3

// cycleRunner runs one sampling cycle.
type cycleRunner interface {
	Run(ctx context.Context) (CycleReport, error)
}

// DaemonStatus is a snapshot of the daemon for the status endpoint.
type DaemonStatus struct {
	Open      bool         `json:"open"`
	NextWake  time.Time    `json:"next_wake"`
	Cycles    int          `json:"cycles"`
	LastCycle *CycleReport `json:"last_cycle,omitempty"`
	LastError string       `json:"last_error,omitempty"`

	ConsecutiveFailures int `json:"consecutive_failures"`
}

// LiveDaemon runs the sampler at each interval boundary while the market
// window is open and sleeps until the next open otherwise. Cycles never
// overlap.
type LiveDaemon struct {
	sampler  cycleRunner
	window   *util.MarketWindow
	interval time.Duration
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
	metrics  *metrics.Metrics
	health   func(healthy bool)
	log      *slog.Logger

	mu     sync.Mutex
	status DaemonStatus
}

// NewLiveDaemon creates a daemon. A non-positive interval selects
// DefaultInterval.
func NewLiveDaemon(sampler *LiveSampler, window *util.MarketWindow, interval time.Duration) *LiveDaemon {
	return newLiveDaemon(sampler, window, interval)
}

func newLiveDaemon(sampler cycleRunner, window *util.MarketWindow, interval time.Duration) *LiveDaemon {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &LiveDaemon{
		sampler:  sampler,
		window:   window,
		interval: interval,
		now:      time.Now,
		after:    time.After,
		log:      slog.Default().With("gatherer", "us-live"),
	}
}

// Name returns the gatherer identifier.
func (d *LiveDaemon) Name() string { return "us-live" }

// SetMetrics attaches a metrics sink.
func (d *LiveDaemon) SetMetrics(m *metrics.Metrics) { d.metrics = m }

// SetHealthHook registers fn to receive the daemon's health after every
// cycle.
func (d *LiveDaemon) SetHealthHook(fn func(healthy bool)) { d.health = fn }

// Status returns a copy of the current status.
func (d *LiveDaemon) Status() DaemonStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.status
	if st.LastCycle != nil {
		rep := *st.LastCycle
		st.LastCycle = &rep
	}
	return st
}

// Run blocks until ctx is cancelled. The first cycle runs as soon as the
// window is open; later cycles run on interval boundaries. Cycle errors are
// logged and do not stop the loop.
func (d *LiveDaemon) Run(ctx context.Context) error {
	d.log.Info("starting", "interval", d.interval)

	var due time.Time
	for {
		now := d.now()
		var wake time.Time

		if d.window.IsOpen(now) {
			if !now.Before(due) {
				d.cycle(ctx)
				if ctx.Err() != nil {
					break
				}
				due = d.now().Truncate(d.interval).Add(d.interval)
			}
			wake = due
			d.setWake(true, wake)
		} else {
			wake = d.window.NextOpen(now)
			d.setWake(false, wake)
			d.log.Info("market closed", "next_open", wake.In(d.window.Location()).Format(time.RFC3339))
		}

		wait := wake.Sub(d.now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
		case <-d.after(wait):
			continue
		}
		break
	}

	d.log.Info("stopped")
	return nil
}

func (d *LiveDaemon) cycle(ctx context.Context) {
	report, err := d.sampler.Run(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}
	d.metrics.ObserveCycle(d.Name(), err, report.Started)

	d.mu.Lock()
	d.status.Cycles++
	d.status.LastCycle = &report
	d.status.LastError = ""
	if err != nil {
		d.status.LastError = err.Error()
		d.status.ConsecutiveFailures++
	} else {
		d.status.ConsecutiveFailures = 0
	}
	healthy := d.status.ConsecutiveFailures < MaxConsecutiveFailures
	d.mu.Unlock()

	if d.health != nil {
		d.health(healthy)
	}

	if err != nil {
		d.log.Error("cycle failed", "inserted", report.Inserted, "err", err)
	}
}

func (d *LiveDaemon) setWake(open bool, wake time.Time) {
	d.mu.Lock()
	d.status.Open = open
	d.status.NextWake = wake
	d.mu.Unlock()
}
