package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SessionID string         `gorm:"type:uuid;not null;index:idx_messages_session_time,priority:1" json:"sessionId"`
	Role      string         `gorm:"size:16;not null" json:"role"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Sources   datatypes.JSON `gorm:"type:jsonb" json:"sources,omitempty"`
	Timestamp time.Time      `gorm:"not null;index:idx_messages_session_time,priority:2" json:"timestamp"`
}

// TurnPair is the unit of persistence for one exchange: user turn then assistant turn.
type TurnPair struct {
	SessionID string      `json:"sessionId"`
	User      ChatMessage `json:"user"`
	Assistant ChatMessage `json:"assistant"`
}
