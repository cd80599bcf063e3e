// Package platformtest provides an in-memory platform.Platform that records calls.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/farazbot/backend/internal/models"
	"github.com/farazbot/backend/internal/platform"
)

// Sent is a message or prompt posted by the bot
type Sent struct {
	ID        string
	ChannelID string
	Content   string
	Prompt    *platform.Prompt
}

// Response is an interaction response
type Response struct {
	Interaction models.Interaction
	Content     string
	Ephemeral   bool
}

// Edit is a prompt edit
type Edit struct {
	ChannelID string
	MessageID string
	Content   string
}

// Moderation is a kick or ban call
type Moderation struct {
	Action  models.Action
	GuildID string
	UserID  string
	Reason  string
}

var _ platform.Platform = (*Fake)(nil)

// Fake is a concurrency-safe recording Platform
type Fake struct {
	mu sync.Mutex

	// Owners maps guild id to owner id
	Owners map[string]string
	// Members maps guild id to the set of current member ids
	Members map[string]map[string]bool

	DeleteErr error
	SendErr   error
	PromptErr error
	KickErr   error
	BanErr    error

	Sent        []Sent
	Deleted     []string
	Edits       []Edit
	Responses   []Response
	Moderations []Moderation

	seq int
}

func New() *Fake {
	return &Fake{
		Owners:  make(map[string]string),
		Members: make(map[string]map[string]bool),
	}
}

// AddMember marks userID as a current member of guildID
func (f *Fake) AddMember(guildID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Members[guildID] == nil {
		f.Members[guildID] = make(map[string]bool)
	}
	f.Members[guildID][userID] = true
}

func (f *Fake) nextID() string {
	f.seq++
	return fmt.Sprintf("msg-%d", f.seq)
}

func (f *Fake) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return "", f.SendErr
	}
	id := f.nextID()
	f.Sent = append(f.Sent, Sent{ID: id, ChannelID: channelID, Content: content})
	return id, nil
}

func (f *Fake) SendPrompt(ctx context.Context, channelID string, p platform.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PromptErr != nil {
		return "", f.PromptErr
	}
	id := f.nextID()
	f.Sent = append(f.Sent, Sent{ID: id, ChannelID: channelID, Content: p.Content, Prompt: &p})
	return id, nil
}

func (f *Fake) EditPrompt(ctx context.Context, channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edits = append(f.Edits, Edit{ChannelID: channelID, MessageID: messageID, Content: content})
	return nil
}

func (f *Fake) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deleted = append(f.Deleted, messageID)
	return nil
}

func (f *Fake) IsMember(ctx context.Context, guildID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Members[guildID][userID], nil
}

func (f *Fake) Kick(ctx context.Context, guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.KickErr != nil {
		return f.KickErr
	}
	f.Moderations = append(f.Moderations, Moderation{Action: models.ActionKick, GuildID: guildID, UserID: userID, Reason: reason})
	return nil
}

func (f *Fake) Ban(ctx context.Context, guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BanErr != nil {
		return f.BanErr
	}
	f.Moderations = append(f.Moderations, Moderation{Action: models.ActionBan, GuildID: guildID, UserID: userID, Reason: reason})
	return nil
}

func (f *Fake) GuildOwner(ctx context.Context, guildID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.Owners[guildID]
	if !ok {
		return "", platform.ErrNotFound
	}
	return owner, nil
}

func (f *Fake) RespondEphemeral(ctx context.Context, it models.Interaction, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, Response{Interaction: it, Content: content, Ephemeral: true})
	return nil
}

func (f *Fake) RespondUpdate(ctx context.Context, it models.Interaction, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, Response{Interaction: it, Content: content})
	return nil
}

// Snapshot helpers copy under the lock so tests can read while handlers run.

func (f *Fake) SentMessages() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.Sent...)
}

func (f *Fake) DeletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Deleted...)
}

func (f *Fake) PromptEdits() []Edit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Edit(nil), f.Edits...)
}

func (f *Fake) InteractionResponses() []Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Response(nil), f.Responses...)
}

func (f *Fake) ModerationCalls() []Moderation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Moderation(nil), f.Moderations...)
}

// Prompts returns only the sent approval prompts
func (f *Fake) Prompts() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sent
	for _, s := range f.Sent {
		if s.Prompt != nil {
			out = append(out, s)
		}
	}
	return out
}
