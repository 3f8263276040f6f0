package audio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultInterval  = 100 * time.Millisecond
	DefaultSmoothing = 3
)

// LevelMeter turns microphone audio into a smoothed 0..1 level and
// publishes the latest value on a fixed interval.
type LevelMeter struct {
	clock    clock.Clock
	interval time.Duration
	levels   chan float64

	mu        sync.Mutex
	history   []float64
	index     int
	suspended bool
}

// NewLevelMeter creates a meter. A nil clock means the wall clock.
func NewLevelMeter(interval time.Duration, smoothing int, c clock.Clock) *LevelMeter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if smoothing <= 0 {
		smoothing = DefaultSmoothing
	}
	if c == nil {
		c = clock.New()
	}
	return &LevelMeter{
		clock:    c,
		interval: interval,
		levels:   make(chan float64, 1),
		history:  make([]float64, smoothing),
	}
}

// ObservePCM16 measures a chunk of 16-bit little-endian PCM
func (m *LevelMeter) ObservePCM16(chunk []byte) {
	m.Observe(RMS16(chunk))
}

// Observe records a level reported by the client
func (m *LevelMeter) Observe(level float64) {
	level = math.Max(0, math.Min(1, level))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.suspended {
		return
	}
	m.history[m.index] = level
	m.index = (m.index + 1) % len(m.history)
}

// Level returns the smoothed level
func (m *LevelMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum float64
	for _, v := range m.history {
		sum += v
	}
	return sum / float64(len(m.history))
}

func (m *LevelMeter) Levels() <-chan float64 {
	return m.levels
}

// Suspend stops publishing and forgets the current level
func (m *LevelMeter) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = true
	for i := range m.history {
		m.history[i] = 0
	}
}

func (m *LevelMeter) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = false
}

func (m *LevelMeter) isSuspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

// Run publishes until ctx is done. Only the newest reading is kept when
// nobody is consuming.
func (m *LevelMeter) Run(ctx context.Context) {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.isSuspended() {
				continue
			}
			m.publish(m.Level())
		}
	}
}

func (m *LevelMeter) publish(level float64) {
	select {
	case m.levels <- level:
		return
	default:
	}

	select {
	case <-m.levels:
	default:
	}
	select {
	case m.levels <- level:
	default:
	}
}

// RMS16 computes the root-mean-square energy of 16-bit signed little-endian PCM
func RMS16(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(samples))
}
