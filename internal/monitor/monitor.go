// Package monitor keeps rolling service stats: request rates and moving
// averages of pull-diff and push-apply latencies. A background worker
// logs a periodic report.
package monitor

import (
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	reportPeriod = 30 * time.Second
	windowSize   = 20
)

type Monitor struct {
	mu               sync.Mutex
	pullsServed      int
	pushesServed     int
	mutationsApplied int
	pullDur          *movingaverage.MovingAverage
	pushDur          *movingaverage.MovingAverage

	lg     log.Logger
	stopCh chan struct{}
}

func New(lg log.Logger) *Monitor {
	if lg == nil {
		lg = log.NewNopLogger()
	}
	return &Monitor{
		pullDur: movingaverage.New(windowSize),
		pushDur: movingaverage.New(windowSize),
		lg:      lg,
	}
}

// PullServed records one served pull and its diff-computation duration.
func (m *Monitor) PullServed(dur time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullsServed++
	m.pullDur.Add(durMillis(dur))
}

// PushServed records one served push batch and how many mutations it
// applied.
func (m *Monitor) PushServed(dur time.Duration, mutations int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushesServed++
	m.mutationsApplied += mutations
	m.pushDur.Add(durMillis(dur))
}

// PullAvgMillis returns the moving average pull duration.
func (m *Monitor) PullAvgMillis() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pullDur.Avg()
}

// PushAvgMillis returns the moving average push duration.
func (m *Monitor) PushAvgMillis() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushDur.Avg()
}

// Start launches the periodic report worker.
func (m *Monitor) Start() {
	if m == nil || m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	go m.worker(m.stopCh)
}

// Stop stops the report worker.
func (m *Monitor) Stop() {
	if m == nil || m.stopCh == nil {
		return
	}
	close(m.stopCh)
	m.stopCh = nil
}

func (m *Monitor) worker(stopCh <-chan struct{}) {
	ticker := time.NewTicker(reportPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.report()
		}
	}
}

func (m *Monitor) report() {
	m.mu.Lock()
	pulls, pushes, applied := m.pullsServed, m.pushesServed, m.mutationsApplied
	pullAvg, pushAvg := m.pullDur.Avg(), m.pushDur.Avg()
	m.pullsServed, m.pushesServed, m.mutationsApplied = 0, 0, 0
	m.mu.Unlock()

	perSec := reportPeriod.Seconds()
	level.Info(m.lg).Log(
		"msg", "sync stats",
		"pulls_per_sec", float64(pulls)/perSec,
		"pushes_per_sec", float64(pushes)/perSec,
		"mutations_applied", applied,
		"pull_avg_ms", pullAvg,
		"push_avg_ms", pushAvg,
	)
}

func durMillis(dur time.Duration) float64 {
	return float64(dur/time.Microsecond) / 1000.0
}
