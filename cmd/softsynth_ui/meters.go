package main

import (
	"math"
	"sync"
)

const (
	floorDB = -60.0
	// meterFall is how far a level bar may drop per display frame, in dB.
	meterFall = 1.5
	// meterHold is how many frames a peak marker stays put.
	meterHold = 45
)

// meter receives every rendered block on the audio goroutine and keeps the
// levels since the last Read plus a short mono history for the scope.
type meter struct {
	mu    sync.Mutex
	peak  [2]float64
	sumSq [2]float64
	count int

	history []float32
	head    int
}

func newMeter(historyLen int) *meter {
	return &meter{history: make([]float32, historyLen)}
}

// Tap accumulates interleaved stereo frames.
func (m *meter) Tap(frames []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i+1 < len(frames); i += 2 {
		for side, v := range [2]float64{float64(frames[i]), float64(frames[i+1])} {
			m.peak[side] = max(m.peak[side], math.Abs(v))
			m.sumSq[side] += v * v
		}
		m.history[m.head] = (frames[i] + frames[i+1]) / 2
		m.head++
		if m.head == len(m.history) {
			m.head = 0
		}
		m.count++
	}
}

// levels holds linear peak and RMS per side.
type levels struct {
	peak, rms [2]float64
}

// Read returns the levels gathered since the previous Read and starts over.
func (m *meter) Read() levels {
	m.mu.Lock()
	defer m.mu.Unlock()
	var l levels
	if m.count > 0 {
		for side := range l.rms {
			l.peak[side] = m.peak[side]
			l.rms[side] = math.Sqrt(m.sumSq[side] / float64(m.count))
		}
	}
	m.peak, m.sumSq, m.count = [2]float64{}, [2]float64{}, 0
	return l
}

// Scope fills dst with the newest len(dst) mono samples, oldest first.
func (m *meter) Scope(dst []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := min(len(dst), len(m.history))
	start := m.head - n
	if start < 0 {
		start += len(m.history)
	}
	k := copy(dst, m.history[start:min(start+n, len(m.history))])
	copy(dst[k:n], m.history)
}

// toDB converts a linear level to decibels, bottoming out at floorDB.
func toDB(v float64) float64 {
	if v <= 0 {
		return floorDB
	}
	return max(20*math.Log10(v), floorDB)
}

// dbFrac places db on a 0..1 meter scale running from floorDB to 0 dB.
func dbFrac(db float64) float64 {
	return min(max((db-floorDB)/-floorDB, 0), 1)
}

// ballistics turns block levels into a display: the bar rises at once and
// falls by meterFall per frame, and a peak marker holds for meterHold frames.
type ballistics struct {
	bar, mark float64
	held      int
}

func newBallistics() ballistics { return ballistics{bar: floorDB, mark: floorDB} }

func (b *ballistics) update(db float64) {
	b.bar = max(db, b.bar-meterFall)
	if db >= b.mark {
		b.mark, b.held = db, 0
		return
	}
	b.held++
	if b.held > meterHold {
		b.mark = max(b.mark-meterFall, b.bar)
	}
}
