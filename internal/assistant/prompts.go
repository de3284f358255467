package assistant

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tripwise-backend/internal/types"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Mode is one instruction set with its sampling settings.
type Mode struct {
	System      string  `yaml:"system"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Prompts holds the instruction sets for guided turns and the final turn.
type Prompts struct {
	Turn  Mode `yaml:"turn"`
	Final Mode `yaml:"final"`
}

// Request is what a Generator receives for one turn.
type Request struct {
	System      string
	Messages    []types.ChatMessage
	IsFinal     bool
	Temperature float32
	MaxTokens   int
}

// LoadPrompts returns the embedded prompts, overlaid with the YAML file at
// path when path is not empty. Sections left out of the file keep their
// embedded values.
func LoadPrompts(path string) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(defaultPrompts, &p); err != nil {
		return nil, fmt.Errorf("parse embedded prompts: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("parse prompts %s: %w", path, err)
		}
	}
	p.Turn.withDefaults(0.8, 500)
	p.Final.withDefaults(0.7, 4000)
	if strings.TrimSpace(p.Turn.System) == "" || strings.TrimSpace(p.Final.System) == "" {
		return nil, fmt.Errorf("prompts: both turn and final system instructions are required")
	}
	return &p, nil
}

func (m *Mode) withDefaults(temp float32, maxTokens int) {
	if m.Temperature <= 0 {
		m.Temperature = temp
	}
	if m.MaxTokens <= 0 {
		m.MaxTokens = maxTokens
	}
}

// BuildRequest picks the instruction set for the turn and copies the
// well-formed part of the transcript. It never fails; a transcript with no
// usable entries yields a Request with no messages.
func (p *Prompts) BuildRequest(transcript []types.ChatMessage, isFinal bool) Request {
	mode := p.Turn
	if isFinal {
		mode = p.Final
	}
	msgs := make([]types.ChatMessage, 0, len(transcript))
	for _, m := range transcript {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		msgs = append(msgs, m)
	}
	return Request{
		System:      mode.System,
		Messages:    msgs,
		IsFinal:     isFinal,
		Temperature: mode.Temperature,
		MaxTokens:   mode.MaxTokens,
	}
}

// DecodeMessages keeps the entries of a raw client transcript that are
// objects with a user or assistant role and string content.
func DecodeMessages(raw []json.RawMessage) []types.ChatMessage {
	out := make([]types.ChatMessage, 0, len(raw))
	for _, r := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(r, &fields); err != nil || fields == nil {
			continue
		}
		role, ok := jsonString(fields["role"])
		if !ok || (role != "user" && role != "assistant") {
			continue
		}
		content, ok := jsonString(fields["content"])
		if !ok {
			continue
		}
		out = append(out, types.ChatMessage{Role: role, Content: content})
	}
	return out
}

// jsonString decodes raw only when it is a JSON string literal; null,
// numbers and objects are rejected.
func jsonString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
