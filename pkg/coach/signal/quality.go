// Package signal tracks audio input quality and drives the error-recovery
// behaviors that keep a voice session usable on a bad microphone: brevity
// adaptation, clarification ladders, and verbal fallbacks for failed UI
// renders.
package signal

import (
	"encoding/binary"
	"math"
	"time"
)

// smoothing caps the moving-average weight at 1/10 once enough samples
// exist, so early frames converge fast and later frames smooth.
const smoothingWindow = 10

// dropoutRMS is the normalized RMS floor below which a frame counts as a
// dropout.
const dropoutRMS = 0.01

// Recommendation is an interaction adaptation derived from signal quality.
type Recommendation string

const (
	RecommendNone     Recommendation = "none"
	RecommendBrevity  Recommendation = "brevity"  // noisy input: keep prompts short
	RecommendSimplify Recommendation = "simplify" // frequent dropouts: simpler interaction
	RecommendSpeakUp  Recommendation = "speak_up" // consistently quiet input
)

// Monitor accumulates smoothed running statistics over audio frames. It is
// never reset mid-session; create a new Monitor at session start.
type Monitor struct {
	now func() time.Time

	averageVolume  float64
	noiseVariance  float64
	dropoutCount   int
	lastClearInput time.Time
	sampleCount    int
}

// NewMonitor creates a quality monitor. A nil nowFn uses time.Now.
func NewMonitor(nowFn func() time.Time) *Monitor {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Monitor{now: nowFn}
}

// AddFrame ingests one frame of 16-bit little-endian mono PCM.
func (m *Monitor) AddFrame(pcm []byte) {
	rms := frameRMS(pcm)
	m.sampleCount++

	n := m.sampleCount
	if n > smoothingWindow {
		n = smoothingWindow
	}
	w := 1.0 / float64(n)

	delta := rms - m.averageVolume
	m.averageVolume += delta * w
	m.noiseVariance += (delta*delta - m.noiseVariance) * w

	if rms < dropoutRMS {
		m.dropoutCount++
	} else {
		m.lastClearInput = m.now()
	}
}

// frameRMS is the normalized (0..1) root-mean-square level of a PCM frame.
func frameRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// AverageVolume returns the smoothed RMS level.
func (m *Monitor) AverageVolume() float64 { return m.averageVolume }

// NoiseLevel returns the variance-derived noise estimate.
func (m *Monitor) NoiseLevel() float64 { return math.Sqrt(m.noiseVariance) }

// DropoutCount returns how many frames fell below the dropout floor.
func (m *Monitor) DropoutCount() int { return m.dropoutCount }

// SampleCount returns how many frames have been ingested.
func (m *Monitor) SampleCount() int { return m.sampleCount }

// LastClearInput returns when a frame last cleared the dropout floor.
func (m *Monitor) LastClearInput() time.Time { return m.lastClearInput }

// Recommend derives the current interaction adaptation.
func (m *Monitor) Recommend() Recommendation {
	switch {
	case m.NoiseLevel() > 0.5:
		return RecommendBrevity
	case m.dropoutCount > 3 && m.sampleCount > 10:
		return RecommendSimplify
	case m.averageVolume < 0.05 && m.sampleCount >= 5:
		return RecommendSpeakUp
	}
	return RecommendNone
}
