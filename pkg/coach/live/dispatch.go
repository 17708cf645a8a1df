package live

import (
	"sync"
	"time"

	"github.com/cadencevoice/cadence/pkg/coach/guidance"
	"github.com/cadencevoice/cadence/pkg/coach/transport"
)

// cueDispatcher spaces outbound cue text so consecutive cues do not slur
// together in the agent's voice. Count cues get a wider gap (one per beat)
// and ride the urgent lane so they land on time.
type cueDispatcher struct {
	clock    guidance.Clock
	proseGap time.Duration
	countGap time.Duration
	send     func(text string, pri transport.Priority)

	mu     sync.Mutex
	nextAt time.Time
	muted  bool
}

func newCueDispatcher(clock guidance.Clock, proseGap, countGap time.Duration, send func(string, transport.Priority)) *cueDispatcher {
	return &cueDispatcher{
		clock:    clock,
		proseGap: proseGap,
		countGap: countGap,
		send:     send,
	}
}

// enqueue schedules one cue at the spacing watermark. Due cues are sent
// inline; future cues through the clock.
func (d *cueDispatcher) enqueue(c guidance.Cue) {
	d.mu.Lock()
	if d.muted && c.Type == guidance.CueCount {
		d.mu.Unlock()
		return
	}

	pri := transport.PriorityNormal
	gap := d.proseGap
	if c.Type == guidance.CueCount {
		pri = transport.PriorityUrgent
		gap = d.countGap
	}

	now := d.clock.Now()
	at := now
	if d.nextAt.After(now) {
		at = d.nextAt
	}
	d.nextAt = at.Add(gap)
	text := c.Text
	d.mu.Unlock()

	if !at.After(now) {
		d.send(text, pri)
		return
	}
	d.clock.AfterFunc(at.Sub(now), func() {
		d.send(text, pri)
	})
}

// say sends free-form coach text through the same spacing watermark.
func (d *cueDispatcher) say(text string) {
	d.enqueue(guidance.Cue{Type: guidance.CueInstruction, Text: text})
}

// setMuted suppresses count cues; instructional cues still flow.
func (d *cueDispatcher) setMuted(muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted = muted
}

// reset clears the spacing watermark, e.g. after a reconnect.
func (d *cueDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextAt = time.Time{}
}
