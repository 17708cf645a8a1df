package wsrelay

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// frame is one outbound unit. Audio frames carry an announce envelope that
// is written immediately before the binary payload so the relay can pair
// them; text frames are the payload alone.
type frame struct {
	announce []byte
	payload  []byte
	binary   bool
}

// sendLoop owns the write side of the websocket. Two lanes feed it: urgent
// carries interruption-control messages and tool results, bulk carries
// everything else. An urgent frame is never written behind a bulk frame
// that was queued after it.
type sendLoop struct {
	ws       wsWriter
	ctx      context.Context
	ping     time.Duration
	deadline time.Duration
	urgent   <-chan frame
	bulk     <-chan frame
}

func newSendLoop(ctx context.Context, ws wsWriter, ping, deadline time.Duration, urgent, bulk <-chan frame) *sendLoop {
	if ping <= 0 {
		ping = defaultPingInterval
	}
	if deadline <= 0 {
		deadline = defaultWriteTimeout
	}
	return &sendLoop{ws: ws, ctx: ctx, ping: ping, deadline: deadline, urgent: urgent, bulk: bulk}
}

func (s *sendLoop) run() error {
	ping := time.NewTicker(s.ping)
	defer ping.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.flushUrgent()
			goodbye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = s.ws.WriteControl(websocket.CloseMessage, goodbye, time.Now().Add(s.deadline))
			_ = s.ws.Close()
			return nil
		default:
		}

		wrote, err := s.writeUrgentBacklog()
		if err != nil {
			return err
		}
		if wrote {
			continue
		}
		if s.urgent == nil && s.bulk == nil {
			return nil
		}

		select {
		case <-s.ctx.Done():
			// Handled at the top of the loop.
		case <-ping.C:
			if err := s.ws.WriteControl(websocket.PingMessage, []byte("ka"), time.Now().Add(s.deadline)); err != nil {
				return err
			}
		case f, ok := <-s.urgent:
			if !ok {
				s.urgent = nil
				continue
			}
			if err := s.write(f); err != nil {
				return err
			}
		case f, ok := <-s.bulk:
			if !ok {
				s.bulk = nil
				continue
			}
			// A cue that arrived while this frame waited still goes first.
			if _, err := s.writeUrgentBacklog(); err != nil {
				return err
			}
			if err := s.write(f); err != nil {
				return err
			}
		}
	}
}

// writeUrgentBacklog drains every urgent frame already queued and reports
// whether anything was written.
func (s *sendLoop) writeUrgentBacklog() (bool, error) {
	wrote := false
	for s.urgent != nil {
		select {
		case f, ok := <-s.urgent:
			if !ok {
				s.urgent = nil
				return wrote, nil
			}
			if err := s.write(f); err != nil {
				return wrote, err
			}
			wrote = true
		default:
			return wrote, nil
		}
	}
	return wrote, nil
}

// flushUrgent gives already-queued urgent frames a short grace window on
// shutdown so a pause acknowledgement is not lost with the connection.
func (s *sendLoop) flushUrgent() {
	const window = 100 * time.Millisecond
	limit := time.Now().Add(window)
	for n := 0; n < 8 && time.Now().Before(limit); n++ {
		select {
		case f, ok := <-s.urgent:
			if !ok {
				return
			}
			if s.write(f) != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *sendLoop) write(f frame) error {
	deadline := time.Now().Add(s.deadline)
	if f.announce != nil {
		if err := s.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		if err := s.ws.WriteMessage(websocket.TextMessage, f.announce); err != nil {
			return err
		}
	}
	if len(f.payload) == 0 {
		return nil
	}
	kind := websocket.TextMessage
	if f.binary {
		kind = websocket.BinaryMessage
	}
	if err := s.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.ws.WriteMessage(kind, f.payload)
}
