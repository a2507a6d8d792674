package transport

import (
	"encoding/json"
	"fmt"
)

// Control message types
const (
	TypeSetParams     = "set_params"
	TypeSelectModel   = "select_model"
	TypeRequestModels = "request_models"
	TypeSilence       = "silence"
)

// Inbound message types
const (
	TypeModels    = "models"
	TypePartial   = "partial"
	TypeFinal     = "final"
	TypeModelInfo = "model_info"
	TypeDebug     = "debug"
)

// Server parameter bounds
const (
	MinWindowSeconds   = 0.5
	MaxWindowSeconds   = 10.0
	MinIntervalSeconds = 0.2
	MaxIntervalSeconds = 2.0
	MinMinSeconds      = 0.1
)

// ControlMessage is a JSON text frame sent to the server.
type ControlMessage struct {
	Type            string   `json:"type"`
	Window          *float64 `json:"window,omitempty"`
	Interval        *float64 `json:"interval,omitempty"`
	MinSeconds      *float64 `json:"min_seconds,omitempty"`
	Language        string   `json:"language,omitempty"`
	PartialInterval *float64 `json:"partial_interval,omitempty"`
	Model           string   `json:"model,omitempty"`
}

// StreamParams configures server-side inference windows, in seconds.
type StreamParams struct {
	Window          float64
	Interval        float64
	MinSeconds      float64
	Language        string
	PartialInterval float64 // 0 leaves the server default
}

// Clamp returns p with every field forced into the range the server accepts.
func (p StreamParams) Clamp() StreamParams {
	p.Window = clamp(p.Window, MinWindowSeconds, MaxWindowSeconds)
	p.Interval = clamp(p.Interval, MinIntervalSeconds, MaxIntervalSeconds)
	p.MinSeconds = clamp(p.MinSeconds, MinMinSeconds, p.Window)
	if p.PartialInterval < 0 {
		p.PartialInterval = 0
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SetParams builds a set_params message from clamped parameters.
func SetParams(p StreamParams) ControlMessage {
	p = p.Clamp()
	msg := ControlMessage{
		Type:       TypeSetParams,
		Window:     &p.Window,
		Interval:   &p.Interval,
		MinSeconds: &p.MinSeconds,
		Language:   p.Language,
	}
	if p.PartialInterval > 0 {
		msg.PartialInterval = &p.PartialInterval
	}
	return msg
}

// SelectModel builds a select_model message
func SelectModel(model string) ControlMessage {
	return ControlMessage{Type: TypeSelectModel, Model: model}
}

// RequestModels builds a request_models message
func RequestModels() ControlMessage {
	return ControlMessage{Type: TypeRequestModels}
}

// Silence builds the end-of-utterance hint
func Silence() ControlMessage {
	return ControlMessage{Type: TypeSilence}
}

// InboundMessage is any JSON object received from the server. Several
// fields may be present at once.
type InboundMessage struct {
	Type        string   `json:"type,omitempty"`
	Supported   []string `json:"supported,omitempty"`
	Installed   []string `json:"installed,omitempty"`
	Current     string   `json:"current,omitempty"`
	Default     string   `json:"default,omitempty"`
	Partial     *string  `json:"partial,omitempty"`
	Text        *string  `json:"text,omitempty"`
	Final       *string  `json:"final,omitempty"`
	Status      *string  `json:"status,omitempty"`
	Device      string   `json:"device,omitempty"`
	ComputeType string   `json:"compute_type,omitempty"`
	Error       *string  `json:"error,omitempty"`
}

// ParseInbound decodes one inbound text payload.
func ParseInbound(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("malformed inbound message: %w", err)
	}
	return msg, nil
}

// Dispatch routes every recognised part of msg to obs and returns the kinds
// that were routed.
func Dispatch(msg InboundMessage, obs Observer) []string {
	var kinds []string

	if msg.Type == TypeModels || msg.Supported != nil || msg.Installed != nil {
		obs.OnModels(ModelList{
			Supported: msg.Supported,
			Installed: msg.Installed,
			Current:   msg.Current,
			Default:   msg.Default,
		})
		kinds = append(kinds, TypeModels)
	}

	switch {
	case msg.Partial != nil:
		obs.OnPartial(*msg.Partial)
		kinds = append(kinds, TypePartial)
	case msg.Type == TypePartial && msg.Text != nil:
		obs.OnPartial(*msg.Text)
		kinds = append(kinds, TypePartial)
	}

	switch {
	case msg.Final != nil:
		obs.OnFinal(*msg.Final)
		kinds = append(kinds, TypeFinal)
	case msg.Type == TypeFinal && msg.Text != nil:
		obs.OnFinal(*msg.Text)
		kinds = append(kinds, TypeFinal)
	}

	switch msg.Type {
	case TypeModelInfo:
		info := ModelInfo{Device: msg.Device, ComputeType: msg.ComputeType}
		if msg.Status != nil {
			info.Status = *msg.Status
		}
		obs.OnModelInfo(info)
		kinds = append(kinds, TypeModelInfo)
	case TypeDebug:
		if msg.Status != nil {
			obs.OnDebug(*msg.Status)
			kinds = append(kinds, TypeDebug)
		}
	default:
		if msg.Status != nil {
			obs.OnStatus(*msg.Status)
			kinds = append(kinds, "status")
		}
	}

	if msg.Error != nil {
		obs.OnError(*msg.Error)
		kinds = append(kinds, "error")
	}

	return kinds
}
