// Package wsrelay implements the coach transport over a websocket relay.
// Text travels as JSON envelopes; audio as announced binary frames. An
// outbound writer gives urgent frames a dedicated lane so a timed cue is
// never queued behind bulk audio.
package wsrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cadencevoice/cadence/pkg/coach/transport"
)

const (
	defaultPingInterval = 20 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultReadLimit    = 1 << 20
	eventBuffer         = 64
	laneBuffer          = 128
)

const outboundAudioFormat = "pcm_s16le_16000"

// Dialer opens relay connections. URL is the ws:// or wss:// endpoint;
// Token, when set, is sent as a bearer Authorization header.
type Dialer struct {
	URL          string
	Token        string
	Logger       *slog.Logger
	PingInterval time.Duration
	WriteTimeout time.Duration
}

var _ transport.Dialer = (*Dialer)(nil)

// Dial connects to the relay and completes the hello exchange.
func (d *Dialer) Dial(ctx context.Context, opts transport.DialOptions) (transport.Transport, error) {
	if d.URL == "" {
		return nil, errors.New("wsrelay: dialer URL is empty")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsrelay: dial %s: status %d: %w", d.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("wsrelay: dial %s: %w", d.URL, err)
	}
	ws.SetReadLimit(defaultReadLimit)

	hello, err := encodeEnvelope(envelope{
		Type:            typeHello,
		ProtocolVersion: protocolVersion,
		SystemPrompt:    opts.SystemPrompt,
		Voice:           opts.Voice,
		ResumeHandle:    opts.ResumptionHandle,
	})
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, hello); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("wsrelay: send hello: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:     ws,
		logger: logger.With("component", "wsrelay"),
		events: make(chan transport.Event, eventBuffer),
		urgent: make(chan frame, laneBuffer),
		bulk:   make(chan frame, laneBuffer),
		cancel: cancel,
	}

	loop := newSendLoop(runCtx, ws, d.PingInterval, d.WriteTimeout, c.urgent, c.bulk)
	go func() {
		if err := loop.run(); err != nil {
			c.logger.Warn("send loop stopped", "error", err)
			c.teardown()
		}
	}()
	go c.readLoop()

	return c, nil
}

// Conn is a live relay connection.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	events chan transport.Event

	urgent chan frame
	bulk   chan frame

	cancel   context.CancelFunc
	closing  sync.Once
	manual   atomic.Bool
	audioSeq atomic.Int64
}

var _ transport.Transport = (*Conn)(nil)

func (c *Conn) Events() <-chan transport.Event { return c.events }

// SendText queues a text envelope on the requested lane.
func (c *Conn) SendText(ctx context.Context, text string, pri transport.Priority) error {
	payload, err := encodeEnvelope(envelope{Type: typeText, Text: text})
	if err != nil {
		return err
	}
	return c.enqueue(ctx, frame{payload: payload}, pri)
}

// SendAudio queues one PCM frame as an announced binary pair.
func (c *Conn) SendAudio(ctx context.Context, pcm []byte) error {
	header, err := encodeEnvelope(envelope{
		Type:   typeAudio,
		Seq:    c.audioSeq.Add(1),
		Format: outboundAudioFormat,
	})
	if err != nil {
		return err
	}
	return c.enqueue(ctx, frame{announce: header, payload: pcm, binary: true}, transport.PriorityNormal)
}

// SendToolResult answers a tool call. Results ride the urgent lane so the
// agent is unblocked promptly.
func (c *Conn) SendToolResult(ctx context.Context, id, name string, result map[string]any) error {
	payload, err := encodeEnvelope(envelope{
		Type:       typeToolResult,
		ToolID:     id,
		ToolName:   name,
		ToolResult: result,
	})
	if err != nil {
		return err
	}
	return c.enqueue(ctx, frame{payload: payload}, transport.PriorityUrgent)
}

func (c *Conn) enqueue(ctx context.Context, f frame, pri transport.Priority) error {
	lane := c.bulk
	if pri == transport.PriorityUrgent {
		lane = c.urgent
	}
	select {
	case lane <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the connection down. The writer flushes queued urgent frames
// and sends a close frame; the reader then emits the terminal ClosedEvent.
func (c *Conn) Close() error {
	c.manual.Store(true)
	c.cancel()
	return nil
}

func (c *Conn) teardown() {
	c.closing.Do(func() {
		c.cancel()
		_ = c.ws.Close()
	})
}

func (c *Conn) readLoop() {
	var pendingAudioFormat string

	defer func() {
		c.teardown()
		close(c.events)
	}()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.events <- transport.ClosedEvent{Err: classifyReadError(err), Manual: c.manual.Load()}
			return
		}

		if msgType == websocket.BinaryMessage {
			format := pendingAudioFormat
			pendingAudioFormat = ""
			c.events <- transport.AudioEvent{Data: data, Format: format}
			continue
		}

		env, err := decodeEnvelope(data)
		if err != nil {
			c.logger.Warn("dropping malformed envelope", "error", err)
			continue
		}

		switch env.Type {
		case typeAudio:
			pendingAudioFormat = env.Format
		case typeTranscript:
			c.events <- transport.TranscriptEvent{Text: env.Text, Final: env.Final}
		case typeAgentText:
			c.events <- transport.AgentTextEvent{Text: env.Text}
		case typeTurnComplete:
			c.events <- transport.TurnCompleteEvent{}
		case typeInterrupted:
			c.events <- transport.InterruptedEvent{}
		case typeToolCall:
			c.events <- transport.ToolCallEvent{ID: env.ToolID, Name: env.ToolName, Args: env.ToolArgs}
		case typeResumption:
			c.events <- transport.ResumptionHandleEvent{Handle: env.Handle, Resumable: env.Resumable, IssuedAt: time.Now()}
		case typeGoAway:
			c.events <- transport.GoAwayEvent{TimeLeft: time.Duration(env.TimeLeftMS) * time.Millisecond}
		case typeError:
			c.logger.Warn("relay reported error", "message", env.Error)
		default:
			c.logger.Debug("ignoring unknown envelope", "type", env.Type)
		}
	}
}

// classifyReadError maps websocket close codes onto the transport error
// contract: a clean close is not an error.
func classifyReadError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}
