package model

import (
	"strings"
	"time"
)

// Player is the identity read model the messaging core consults. Ban and
// mute fields are owned by moderation and never written by the core.
type Player struct {
	ID                  string     `json:"id"`
	DisplayName         string     `json:"display_name"`
	Email               string     `json:"email,omitempty"`
	Locale              string     `json:"locale,omitempty"`
	AvatarURL           string     `json:"avatar_url,omitempty"`
	AllowDirectMessages bool       `json:"allow_direct_messages"`
	Banned              bool       `json:"banned,omitempty"`
	MessagingMutedUntil *time.Time `json:"messaging_muted_until,omitempty"`
}

// UsableEmail returns the trimmed email and whether it can receive mail.
func (p Player) UsableEmail() (string, bool) {
	email := strings.TrimSpace(p.Email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", false
	}
	return email, true
}

// Restricted reports whether moderation blocks the player from messaging at
// the given instant.
func (p Player) Restricted(now time.Time) bool {
	if p.Banned {
		return true
	}
	return p.MessagingMutedUntil != nil && now.Before(*p.MessagingMutedUntil)
}

// Public strips private fields before a player is shown to someone else.
func (p Player) Public() Player {
	return Player{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}
}

// Block is a directed edge from blocker to blocked.
type Block struct {
	BlockerID string    `json:"blocker_id"`
	BlockedID string    `json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}
