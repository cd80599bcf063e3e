package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/farazbot/backend/internal/models"
	"github.com/sirupsen/logrus"
)

const handlerTimeout = 15 * time.Second

// Intents the bot needs: guild metadata, member joins and message content
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildMessages |
	discordgo.IntentMessageContent

// Discord implements Platform on top of a discordgo session
type Discord struct {
	session *discordgo.Session
	logger  logrus.FieldLogger
}

// NewDiscord creates a session for token with the intents the bot needs
func NewDiscord(token string, logger logrus.FieldLogger) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	return &Discord{session: s, logger: logger}, nil
}

// Bind registers h for inbound events. Call before Open.
func (d *Discord) Bind(h EventHandler) {
	d.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.WithField("user", r.User.String()).Info("bot is online")
	})
	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		msg, ok := MessageFromDiscord(m)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		h.HandleMessage(ctx, msg)
	})
	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.Member == nil || m.Member.User == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		h.HandleMemberJoin(ctx, models.MemberJoin{
			GuildID:  m.GuildID,
			UserID:   m.Member.User.ID,
			Username: m.Member.User.Username,
		})
	})
	d.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		it, ok := InteractionFromDiscord(i)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		h.HandleInteraction(ctx, it)
	})
}

func (d *Discord) Open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

func (d *Discord) Close() error {
	return d.session.Close()
}

// MessageFromDiscord converts a guild message. Direct messages are skipped.
func MessageFromDiscord(m *discordgo.MessageCreate) (models.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.GuildID == "" {
		return models.Message{}, false
	}
	return models.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		AuthorBot: m.Author.Bot,
		Content:   m.Content,
	}, true
}

// InteractionFromDiscord converts a button press. Other interaction types are skipped.
func InteractionFromDiscord(i *discordgo.InteractionCreate) (models.Interaction, bool) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return models.Interaction{}, false
	}
	it := models.Interaction{
		ID:        i.ID,
		Token:     i.Token,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		CustomID:  i.MessageComponentData().CustomID,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		it.UserID = i.Member.User.ID
	case i.User != nil:
		it.UserID = i.User.ID
	}
	if i.Message != nil {
		it.MessageID = i.Message.ID
	}
	return it, true
}

func (d *Discord) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	msg, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return msg.ID, nil
}

func (d *Discord) SendPrompt(ctx context.Context, channelID string, p Prompt) (string, error) {
	msg, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: p.Content,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Approve ✅", Style: discordgo.DangerButton, CustomID: p.ApproveID},
					discordgo.Button{Label: "Decline ❌", Style: discordgo.SecondaryButton, CustomID: p.DeclineID},
				},
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return msg.ID, nil
}

func (d *Discord) EditPrompt(ctx context.Context, channelID, messageID, content string) error {
	components := []discordgo.MessageComponent{}
	_, err := d.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Content:    &content,
		Components: &components,
	}, discordgo.WithContext(ctx))
	return classify(err)
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return classify(d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func (d *Discord) IsMember(ctx context.Context, guildID, userID string) (bool, error) {
	if _, err := d.session.State.Member(guildID, userID); err == nil {
		return true, nil
	}
	_, err := d.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err == nil {
		return true, nil
	}
	if err = classify(err); errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (d *Discord) Kick(ctx context.Context, guildID, userID, reason string) error {
	return classify(d.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)))
}

func (d *Discord) Ban(ctx context.Context, guildID, userID, reason string) error {
	return classify(d.session.GuildBanCreateWithReason(guildID, userID, reason, 0, discordgo.WithContext(ctx)))
}

func (d *Discord) GuildOwner(ctx context.Context, guildID string) (string, error) {
	if g, err := d.session.State.Guild(guildID); err == nil && g.OwnerID != "" {
		return g.OwnerID, nil
	}
	g, err := d.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return g.OwnerID, nil
}

func (d *Discord) RespondEphemeral(ctx context.Context, it models.Interaction, content string) error {
	return classify(d.session.InteractionRespond(toInteraction(it), &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx)))
}

func (d *Discord) RespondUpdate(ctx context.Context, it models.Interaction, content string) error {
	return classify(d.session.InteractionRespond(toInteraction(it), &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	}, discordgo.WithContext(ctx)))
}

// responses are addressed by interaction id and token only
func toInteraction(it models.Interaction) *discordgo.Interaction {
	return &discordgo.Interaction{ID: it.ID, Token: it.Token}
}

// classify maps REST failures onto ErrForbidden and ErrNotFound
func classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	status, code := 0, 0
	if restErr.Response != nil {
		status = restErr.Response.StatusCode
	}
	if restErr.Message != nil {
		code = restErr.Message.Code
	}
	switch {
	case status == http.StatusForbidden,
		code == discordgo.ErrCodeMissingPermissions,
		code == discordgo.ErrCodeMissingAccess:
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	case status == http.StatusNotFound,
		code == discordgo.ErrCodeUnknownMember,
		code == discordgo.ErrCodeUnknownUser,
		code == discordgo.ErrCodeUnknownMessage:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
