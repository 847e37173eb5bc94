package session

import (
	"time"
)

// Message roles. Model replies are stored with role "model", matching
// the role names the provider context uses.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message represents a single conversation turn
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a persisted conversation with its full message log
type Session struct {
	SessionID string    `json:"sessionId"`
	Owner     string    `json:"owner"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is the listing view of a session. Title is the derived
// display title, not necessarily the stored one.
type Summary struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const (
	titlePreviewRunes = 30
	defaultTitle      = "New Chat"
)

// DisplayTitle computes the display title for a session: the stored
// title if set, otherwise a truncated preview of the first user
// message, otherwise a default label.
func DisplayTitle(storedTitle, firstUserMessage string) string {
	if storedTitle != "" {
		return storedTitle
	}
	if firstUserMessage == "" {
		return defaultTitle
	}

	runes := []rune(firstUserMessage)
	if len(runes) <= titlePreviewRunes {
		return firstUserMessage
	}
	return string(runes[:titlePreviewRunes]) + "..."
}
