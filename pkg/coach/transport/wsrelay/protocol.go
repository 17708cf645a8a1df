package wsrelay

import (
	"encoding/json"
	"fmt"
)

const protocolVersion = "1"

// envelope is the JSON text frame exchanged with the relay. Binary audio
// travels as a separate websocket binary message announced by a preceding
// "audio" envelope carrying its format.
type envelope struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version,omitempty"`
	Text            string         `json:"text,omitempty"`
	Final           bool           `json:"final,omitempty"`
	Format          string         `json:"format,omitempty"`
	Seq             int64          `json:"seq,omitempty"`
	ToolID          string         `json:"tool_id,omitempty"`
	ToolName        string         `json:"tool_name,omitempty"`
	ToolArgs        map[string]any `json:"tool_args,omitempty"`
	ToolResult      map[string]any `json:"tool_result,omitempty"`
	Handle          string         `json:"handle,omitempty"`
	Resumable       bool           `json:"resumable,omitempty"`
	TimeLeftMS      int64          `json:"time_left_ms,omitempty"`
	SystemPrompt    string         `json:"system_prompt,omitempty"`
	Voice           string         `json:"voice,omitempty"`
	ResumeHandle    string         `json:"resume_handle,omitempty"`
	Error           string         `json:"error,omitempty"`
}

const (
	typeHello        = "hello"
	typeText         = "text"
	typeAudio        = "audio"
	typeTranscript   = "transcript"
	typeAgentText    = "agent_text"
	typeTurnComplete = "turn_complete"
	typeInterrupted  = "interrupted"
	typeToolCall     = "tool_call"
	typeToolResult   = "tool_result"
	typeResumption   = "resumption"
	typeGoAway       = "go_away"
	typeError        = "error"
)

func encodeEnvelope(env envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Type, err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}
