package live

import (
	"sync"
	"time"
)

const (
	playbackSampleRateHz = 24000
	pcmBytesPerSample    = 2
)

// playback keeps the monotonic start watermark for agent audio chunks.
// Chunks arrive faster than real time; each one is scheduled to start when
// the previous one ends so the host never overlaps speech.
type playback struct {
	mu        sync.Mutex
	nextStart time.Time
}

// schedule returns when the chunk should start playing and advances the
// watermark by its duration.
func (p *playback) schedule(now time.Time, chunk []byte) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := now
	if p.nextStart.After(now) {
		start = p.nextStart
	}
	p.nextStart = start.Add(pcmDuration(len(chunk)))
	return start
}

// clear resets the watermark after a barge-in: buffered audio is gone, the
// next chunk starts immediately.
func (p *playback) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextStart = time.Time{}
}

func pcmDuration(numBytes int) time.Duration {
	samples := int64(numBytes / pcmBytesPerSample)
	return time.Duration(samples) * time.Second / playbackSampleRateHz
}
