package ws

import "github.com/m-mizutani/nova/pkg/model"

const (
	frameMessage  = "ai-message"
	frameResponse = "ai-response"
	frameError    = "ai-error"
)

// frame is the JSON envelope of every websocket message in both directions
type frame struct {
	Type    string `json:"type"`
	Chat    string `json:"chat"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (f frame) inbound() model.InboundEvent {
	return model.InboundEvent{ChatID: model.ChatID(f.Chat), Text: f.Content}
}
