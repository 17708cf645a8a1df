// Package geminilive implements the coach transport directly over the
// Gemini Live API, bypassing the relay. It maps Live server messages onto
// transport events and surfaces session resumption handles and GoAway
// warnings so the connection manager can ride out server-side rotations.
package geminilive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/genai"

	"github.com/cadencevoice/cadence/pkg/coach/transport"
)

const (
	inputMIMEType  = "audio/pcm;rate=16000"
	outputFormat   = "pcm_s16le_24000"
	defaultModel   = "gemini-2.0-flash-live-001"
	eventBuffer    = 64
	defaultVoice   = "Aoede"
)

// timeNow is a seam for tests.
var timeNow = time.Now

// Dialer opens Gemini Live sessions.
type Dialer struct {
	APIKey string
	Model  string
	Logger *slog.Logger
}

var _ transport.Dialer = (*Dialer)(nil)

// Dial opens a Live session. When opts.ResumptionHandle is set the session
// resumes the prior conversation context server-side.
func (d *Dialer) Dial(ctx context.Context, opts transport.DialOptions) (transport.Transport, error) {
	if d.APIKey == "" {
		return nil, errors.New("geminilive: API key is empty")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := d.Model
	if model == "" {
		model = defaultModel
	}
	voice := opts.Voice
	if voice == "" {
		voice = defaultVoice
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("geminilive: create client: %w", err)
	}

	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		SessionResumption:        &genai.SessionResumptionConfig{},
	}
	if opts.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}
	if opts.ResumptionHandle != "" {
		cfg.SessionResumption.Handle = opts.ResumptionHandle
	}

	session, err := client.Live.Connect(ctx, model, cfg)
	if err != nil {
		return nil, fmt.Errorf("geminilive: connect %s: %w", model, err)
	}

	c := &Conn{
		session: session,
		logger:  logger.With("component", "geminilive", "model", model),
		events:  make(chan transport.Event, eventBuffer),
	}
	go c.receiveLoop()
	return c, nil
}

// Conn is a live Gemini session.
type Conn struct {
	session *genai.Session
	logger  *slog.Logger
	events  chan transport.Event

	closing sync.Once
	manual  atomic.Bool
}

var _ transport.Transport = (*Conn)(nil)

func (c *Conn) Events() <-chan transport.Event { return c.events }

// SendText submits a complete text turn. The Live API has no outbound
// priority lane, so pri only matters for relay transports.
func (c *Conn) SendText(ctx context.Context, text string, pri transport.Priority) error {
	_ = pri
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.session.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(true),
	})
	if err != nil {
		return fmt.Errorf("geminilive: send text: %w", err)
	}
	return nil
}

// SendAudio streams one microphone PCM frame.
func (c *Conn) SendAudio(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: pcm, MIMEType: inputMIMEType},
	})
	if err != nil {
		return fmt.Errorf("geminilive: send audio: %w", err)
	}
	return nil
}

// SendToolResult answers a function call from the model.
func (c *Conn) SendToolResult(ctx context.Context, id, name string, result map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{
			{ID: id, Name: name, Response: result},
		},
	})
	if err != nil {
		return fmt.Errorf("geminilive: send tool result: %w", err)
	}
	return nil
}

// Close ends the session. The receive loop then emits the terminal
// ClosedEvent with Manual set.
func (c *Conn) Close() error {
	c.manual.Store(true)
	var err error
	c.closing.Do(func() {
		err = c.session.Close()
	})
	return err
}

func (c *Conn) receiveLoop() {
	defer close(c.events)

	for {
		msg, err := c.session.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.events <- transport.ClosedEvent{Err: err, Manual: c.manual.Load()}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Conn) dispatch(msg *genai.LiveServerMessage) {
	if msg == nil {
		return
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			c.events <- transport.InterruptedEvent{}
		}
		if t := sc.InputTranscription; t != nil && t.Text != "" {
			c.events <- transport.TranscriptEvent{Text: t.Text, Final: t.Finished}
		}
		if t := sc.OutputTranscription; t != nil && t.Text != "" {
			c.events <- transport.AgentTextEvent{Text: t.Text}
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					c.events <- transport.AudioEvent{Data: part.InlineData.Data, Format: outputFormat}
				}
				if part.Text != "" {
					c.events <- transport.AgentTextEvent{Text: part.Text}
				}
			}
		}
		if sc.TurnComplete {
			c.events <- transport.TurnCompleteEvent{}
		}
	}

	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			c.events <- transport.ToolCallEvent{ID: fc.ID, Name: fc.Name, Args: fc.Args}
		}
	}

	if ru := msg.SessionResumptionUpdate; ru != nil && ru.NewHandle != "" {
		c.events <- transport.ResumptionHandleEvent{
			Handle:    ru.NewHandle,
			Resumable: ru.Resumable,
			IssuedAt:  timeNow(),
		}
	}

	if ga := msg.GoAway; ga != nil {
		c.events <- transport.GoAwayEvent{TimeLeft: ga.TimeLeft}
		c.logger.Warn("server requested reconnect", "time_left", ga.TimeLeft)
	}
}
