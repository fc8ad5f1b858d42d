package transport

import (
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// Attempt describes a single outbound try.
type Attempt struct {
	Path       string
	Method     string
	Number     int
	StatusCode int
	Latency    time.Duration
	Err        error
	Retriable  bool
	At         time.Time
}

// Observer receives every attempt. Implementations must not block for long;
// panics are recovered by the client.
type Observer interface {
	OnAttempt(a Attempt)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(a Attempt)

func (f ObserverFunc) OnAttempt(a Attempt) { f(a) }

// NopObserver discards attempts.
type NopObserver struct{}

func (NopObserver) OnAttempt(Attempt) {}

// MultiObserver fans an attempt out to several observers, each isolated from
// the others' panics.
type MultiObserver []Observer

func (m MultiObserver) OnAttempt(a Attempt) {
	for _, o := range m {
		notify(o, a)
	}
}

func notify(o Observer, a Attempt) {
	if o == nil {
		return
	}
	defer func() {
		if err := recover(); err != nil {
			zap.L().Warn("transport: observer panic", zap.Any("panic", err), zap.String("path", a.Path))
		}
	}()
	o.OnAttempt(a)
}

// LogObserver writes attempts to the global zap logger.
type LogObserver struct{}

func (LogObserver) OnAttempt(a Attempt) {
	fields := []zap.Field{
		zap.String("path", a.Path),
		zap.Int("attempt", a.Number),
		zap.Int("status", a.StatusCode),
		zap.Duration("latency", a.Latency),
	}
	if a.Err != nil {
		zap.L().Warn("transport: attempt failed", append(fields, zap.Bool("retriable", a.Retriable), zap.Error(a.Err))...)
		return
	}
	zap.L().Debug("transport: attempt ok", fields...)
}

// LatencySummary is a per-path digest of recent attempts.
type LatencySummary struct {
	Path     string  `json:"path"`
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	MeanMs   float64 `json:"mean_ms"`
	P95Ms    float64 `json:"p95_ms"`
	MaxMs    float64 `json:"max_ms"`
}

// StatsObserver keeps a bounded window of latencies per path.
type StatsObserver struct {
	mu       sync.Mutex
	window   int
	samples  map[string][]float64
	failures map[string]int
}

func NewStatsObserver(window int) *StatsObserver {
	if window <= 0 {
		window = 200
	}
	return &StatsObserver{
		window:   window,
		samples:  make(map[string][]float64),
		failures: make(map[string]int),
	}
}

func (s *StatsObserver) OnAttempt(a Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := append(s.samples[a.Path], float64(a.Latency.Microseconds())/1000)
	if len(buf) > s.window {
		buf = buf[len(buf)-s.window:]
	}
	s.samples[a.Path] = buf
	if a.Err != nil {
		s.failures[a.Path]++
	}
}

// Summary returns one entry per observed path.
func (s *StatsObserver) Summary() []LatencySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LatencySummary, 0, len(s.samples))
	for path, data := range s.samples {
		sum := LatencySummary{Path: path, Count: len(data), Failures: s.failures[path]}
		if len(data) > 0 {
			sample := stats.Float64Data(data)
			sum.MeanMs, _ = sample.Mean()
			sum.P95Ms, _ = sample.Percentile(95)
			sum.MaxMs, _ = sample.Max()
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
