package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is the punishment executed once an owner approves a request
type Action string

const (
	ActionKick Action = "kick"
	ActionBan  Action = "ban"
)

// ParseAction normalizes s and falls back to kick for anything unrecognized
func ParseAction(s string) Action {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionBan:
		return ActionBan
	default:
		return ActionKick
	}
}

func (a Action) Upper() string { return strings.ToUpper(string(a)) }

// PendingAction is a moderation decision awaiting the guild owner.
// Action is fixed when the request is created.
type PendingAction struct {
	Key          string    `json:"key"`
	GuildID      string    `json:"guild_id"`
	Action       Action    `json:"action"`
	TargetUserID string    `json:"target_user_id"`
	Reason       string    `json:"reason"`
	ChannelID    string    `json:"channel_id"`
	PromptID     string    `json:"prompt_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Event kinds published to the moderation feed
const (
	EventBannedWordDeleted = "banned_word.deleted"
	EventApprovalRequested = "approval.requested"
	EventApprovalApproved  = "approval.approved"
	EventApprovalDeclined  = "approval.declined"
	EventApprovalExpired   = "approval.expired"
	EventApprovalFailed    = "approval.failed"
)

// ModerationEvent records actions taken by the bot or approved by the owner
type ModerationEvent struct {
	ID           uuid.UUID `json:"id"`
	Kind         string    `json:"kind"`
	GuildID      string    `json:"guild_id"`
	ChannelID    string    `json:"channel_id,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
	TargetUserID string    `json:"target_user_id,omitempty"`
	ActorID      string    `json:"actor_id,omitempty"`
	Action       Action    `json:"action,omitempty"`
	Key          string    `json:"key,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewEvent stamps an event with a fresh id and the current time
func NewEvent(kind, guildID string) ModerationEvent {
	return ModerationEvent{
		ID:        uuid.New(),
		Kind:      kind,
		GuildID:   guildID,
		CreatedAt: time.Now(),
	}
}

type WordRequest struct {
	Word string `json:"word" binding:"required,max=200"`
}
