package model

import "time"

// TurnEvent is published once a turn's assistant reply has been stored.
type TurnEvent struct {
	SessionID   string    `json:"sessionId"`
	ModelID     string    `json:"modelId"`
	UserText    string    `json:"userText"`
	Reply       string    `json:"reply"`
	Partial     bool      `json:"partial"`
	BackendErr  string    `json:"backendError,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}
