package model

import "time"

type ChatSession struct {
	ID        string        `gorm:"type:uuid;primaryKey" json:"id"`
	Messages  []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// SessionSummary is a session with its turn count, as listed to admins.
type SessionSummary struct {
	ID           string    `json:"id"`
	MessageCount int64     `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
