package moderator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farazbot/backend/internal/approval"
	"github.com/farazbot/backend/internal/matcher"
	"github.com/farazbot/backend/internal/metrics"
	"github.com/farazbot/backend/internal/models"
	"github.com/farazbot/backend/internal/platform"
	"github.com/sirupsen/logrus"
)

const transientCallLimit = 10 * time.Second

type Config struct {
	Prefix           string
	BotName          string
	ServerName       string
	WelcomeChannelID string
	// WarningTTL is how long a banned-word warning stays visible
	WarningTTL time.Duration
}

// Limiter throttles commands per author
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Bot classifies guild messages and enforces moderation rules
type Bot struct {
	cfg       Config
	rules     *matcher.Rules
	platform  platform.Platform
	approvals *approval.Workflow
	events    approval.Publisher
	limiter   Limiter
	logger    logrus.FieldLogger
	commands  map[string]command

	// after schedules transient message removal
	after func(d time.Duration, f func())
}

// NewBot creates a new moderation bot instance. events and limiter may be nil.
func NewBot(cfg Config, rules *matcher.Rules, p platform.Platform, approvals *approval.Workflow, events approval.Publisher, limiter Limiter, logger logrus.FieldLogger) *Bot {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.WarningTTL <= 0 {
		cfg.WarningTTL = 5 * time.Second
	}
	b := &Bot{
		cfg:       cfg,
		rules:     rules,
		platform:  p,
		approvals: approvals,
		events:    events,
		limiter:   limiter,
		logger:    logger,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	b.commands = b.commandTable()
	return b
}

var _ platform.EventHandler = (*Bot)(nil)

// HandleMessage runs once per message created in a guild
func (b *Bot) HandleMessage(ctx context.Context, m models.Message) {
	if m.AuthorBot {
		return
	}
	if b.ownerRuleCommand(ctx, m) {
		b.handleCommand(ctx, m)
		return
	}

	res := matcher.Classify(m.Content, b.rules)
	metrics.MessagesClassified.WithLabelValues(res.Verdict.String()).Inc()

	switch {
	case res.Verdict == matcher.BannedWordHit:
		b.deleteMessage(ctx, m)
		b.warn(ctx, m)
		ev := models.NewEvent(models.EventBannedWordDeleted, m.GuildID)
		ev.ChannelID = m.ChannelID
		ev.MessageID = m.ID
		ev.TargetUserID = m.AuthorID
		ev.Reason = "Banned word: " + res.Match
		b.publish(ctx, ev)

	case res.Verdict.NeedsApproval():
		// a failed delete must not stop the approval request
		b.deleteMessage(ctx, m)
		if _, err := b.approvals.Request(ctx, m, res.Verdict.Reason()); err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"guild_id": m.GuildID,
				"user_id":  m.AuthorID,
				"verdict":  res.Verdict.String(),
			}).Error("failed to request approval")
		}

	default:
		b.handleCommand(ctx, m)
	}
}

// HandleInteraction routes button presses to the approval workflow
func (b *Bot) HandleInteraction(ctx context.Context, it models.Interaction) {
	err := b.approvals.HandleInteraction(ctx, it)
	if err != nil && !errors.Is(err, approval.ErrUnknownComponent) {
		b.logger.WithError(err).WithField("custom_id", it.CustomID).Warn("failed to handle interaction")
	}
}

// HandleMemberJoin greets new members in the welcome channel
func (b *Bot) HandleMemberJoin(ctx context.Context, j models.MemberJoin) {
	b.logger.WithFields(logrus.Fields{"guild_id": j.GuildID, "user_id": j.UserID}).Info("member joined")
	if b.cfg.WelcomeChannelID == "" {
		return
	}
	if _, err := b.platform.SendMessage(ctx, b.cfg.WelcomeChannelID, b.welcomeText(j.UserID)); err != nil {
		b.logger.WithError(err).Warn("failed to send welcome message")
	}
}

func (b *Bot) welcomeText(userID string) string {
	return fmt.Sprintf("🌌 Welcome %s to **%s**!\nPlease check 📢 announcements and enjoy your stay 🚀",
		models.Mention(userID), b.cfg.ServerName)
}

// deleteMessage is best effort; failures are logged and counted only
func (b *Bot) deleteMessage(ctx context.Context, m models.Message) {
	err := b.platform.DeleteMessage(ctx, m.ChannelID, m.ID)
	if err == nil {
		return
	}
	reason := "error"
	switch {
	case errors.Is(err, platform.ErrForbidden):
		reason = "forbidden"
	case errors.Is(err, platform.ErrNotFound):
		reason = "not_found"
	}
	metrics.DeleteFailures.WithLabelValues(reason).Inc()
	b.logger.WithError(err).WithFields(logrus.Fields{
		"guild_id":   m.GuildID,
		"channel_id": m.ChannelID,
		"message_id": m.ID,
	}).Warn("failed to delete message")
}

// warn posts a public notice that removes itself after WarningTTL
func (b *Bot) warn(ctx context.Context, m models.Message) {
	id, err := b.platform.SendMessage(ctx, m.ChannelID,
		fmt.Sprintf("⚠️ %s, your message contained a banned word.", models.Mention(m.AuthorID)))
	if err != nil {
		b.logger.WithError(err).Warn("failed to send banned word warning")
		return
	}
	b.after(b.cfg.WarningTTL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), transientCallLimit)
		defer cancel()
		if err := b.platform.DeleteMessage(ctx, m.ChannelID, id); err != nil {
			b.logger.WithError(err).Debug("failed to remove warning")
		}
	})
}

func (b *Bot) reply(ctx context.Context, m models.Message, content string) {
	if _, err := b.platform.SendMessage(ctx, m.ChannelID, content); err != nil {
		b.logger.WithError(err).WithField("channel_id", m.ChannelID).Warn("failed to reply")
	}
}

func (b *Bot) publish(ctx context.Context, ev models.ModerationEvent) {
	if b.events == nil {
		return
	}
	if err := b.events.PublishEvent(ctx, ev); err != nil {
		b.logger.WithError(err).WithField("kind", ev.Kind).Debug("failed to publish moderation event")
	}
}
