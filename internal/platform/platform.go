package platform

import (
	"context"
	"errors"

	"github.com/farazbot/backend/internal/models"
)

var (
	// ErrForbidden means the bot lacks the permission for a call
	ErrForbidden = errors.New("missing permission")
	// ErrNotFound means the target message, member or user does not exist
	ErrNotFound = errors.New("not found")
)

// Prompt is an approval request rendered with approve and decline controls
type Prompt struct {
	Content   string
	ApproveID string
	DeclineID string
}

// Platform is the set of outbound calls the bot makes to the chat service
type Platform interface {
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	SendPrompt(ctx context.Context, channelID string, p Prompt) (string, error)
	// EditPrompt replaces the content of a prompt and removes its controls
	EditPrompt(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	IsMember(ctx context.Context, guildID, userID string) (bool, error)
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
	GuildOwner(ctx context.Context, guildID string) (string, error)
	RespondEphemeral(ctx context.Context, it models.Interaction, content string) error
	// RespondUpdate edits the message the interaction came from and removes its controls
	RespondUpdate(ctx context.Context, it models.Interaction, content string) error
}

// EventHandler receives inbound events translated from the chat service
type EventHandler interface {
	HandleMessage(ctx context.Context, m models.Message)
	HandleMemberJoin(ctx context.Context, j models.MemberJoin)
	HandleInteraction(ctx context.Context, it models.Interaction)
}
