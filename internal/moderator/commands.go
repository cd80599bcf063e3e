package moderator

import (
	"context"
	"fmt"
	"strings"

	"github.com/farazbot/backend/internal/matcher"
	"github.com/farazbot/backend/internal/metrics"
	"github.com/farazbot/backend/internal/models"
)

type command struct {
	ownerOnly bool
	// editsRules marks commands whose argument is itself a rule phrase
	editsRules bool
	// usage is shown when a required argument is missing
	usage string
	// denied overrides the default rejection for non-owners
	denied string
	run    func(ctx context.Context, m models.Message, arg string)
}

func (b *Bot) commandTable() map[string]command {
	return map[string]command{
		"ping": {run: b.ping},
		"testwelcome": {
			ownerOnly: true,
			denied:    "❌ Only server owner can test this.",
			run:       b.testWelcome,
		},
		"addword":    {ownerOnly: true, editsRules: true, usage: "addword <word>", run: b.addTo(b.rules.Banned, "banned word")},
		"delword":    {ownerOnly: true, editsRules: true, usage: "delword <word>", run: b.removeFrom(b.rules.Banned, "banned word")},
		"addtrigger": {ownerOnly: true, editsRules: true, usage: "addtrigger <phrase>", run: b.addTo(b.rules.Severe, "severe trigger")},
		"deltrigger": {ownerOnly: true, editsRules: true, usage: "deltrigger <phrase>", run: b.removeFrom(b.rules.Severe, "severe trigger")},
		"words":      {ownerOnly: true, run: b.list(b.rules.Banned, "Banned words")},
		"triggers":   {ownerOnly: true, run: b.list(b.rules.Severe, "Severe triggers")},
	}
}

// parseCommand splits "<prefix>name rest of line" into name and argument
func parseCommand(prefix, content string) (name, arg string, ok bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	if rest == "" {
		return "", "", false
	}
	name, arg, _ = strings.Cut(rest, " ")
	arg = strings.TrimSpace(strings.Trim(strings.TrimSpace(arg), `"`))
	return strings.ToLower(name), arg, true
}

// ownerRuleCommand reports whether m is a rule-editing command sent by the
// owner. Those run without classification, otherwise an existing phrase could
// never be removed.
func (b *Bot) ownerRuleCommand(ctx context.Context, m models.Message) bool {
	name, _, ok := parseCommand(b.cfg.Prefix, m.Content)
	if !ok || !b.commands[name].editsRules {
		return false
	}
	return b.isOwner(ctx, m)
}

func (b *Bot) handleCommand(ctx context.Context, m models.Message) {
	name, arg, ok := parseCommand(b.cfg.Prefix, m.Content)
	if !ok {
		return
	}
	cmd, ok := b.commands[name]
	if !ok {
		return
	}
	// non-owners are always told why, throttled or not
	if cmd.ownerOnly && !b.isOwner(ctx, m) {
		metrics.CommandsHandled.WithLabelValues(name, "denied").Inc()
		denied := cmd.denied
		if denied == "" {
			denied = "❌ Only the server owner can use this command."
		}
		b.reply(ctx, m, denied)
		return
	}
	if b.limiter != nil && !b.limiter.Allow(ctx, m.AuthorID) {
		metrics.CommandsHandled.WithLabelValues(name, "throttled").Inc()
		b.logger.WithField("user_id", m.AuthorID).Debug("command throttled")
		return
	}

	if cmd.editsRules {
		arg = matcher.Normalize(arg)
	}
	if cmd.usage != "" && arg == "" {
		metrics.CommandsHandled.WithLabelValues(name, "usage").Inc()
		b.reply(ctx, m, fmt.Sprintf("Usage: `%s%s`", b.cfg.Prefix, cmd.usage))
		return
	}

	metrics.CommandsHandled.WithLabelValues(name, "ok").Inc()
	cmd.run(ctx, m, arg)
}

func (b *Bot) isOwner(ctx context.Context, m models.Message) bool {
	owner, err := b.platform.GuildOwner(ctx, m.GuildID)
	if err != nil {
		b.logger.WithError(err).WithField("guild_id", m.GuildID).Warn("failed to resolve guild owner")
		return false
	}
	return owner != "" && owner == m.AuthorID
}

func (b *Bot) ping(ctx context.Context, m models.Message, _ string) {
	b.reply(ctx, m, fmt.Sprintf("✅ %s is working perfectly!", b.cfg.BotName))
}

func (b *Bot) testWelcome(ctx context.Context, m models.Message, _ string) {
	if b.cfg.WelcomeChannelID == "" {
		b.reply(ctx, m, "⚠️ No welcome channel is configured.")
		return
	}
	if _, err := b.platform.SendMessage(ctx, b.cfg.WelcomeChannelID, b.welcomeText(m.AuthorID)); err != nil {
		b.logger.WithError(err).Warn("failed to send test welcome message")
	}
}

func (b *Bot) addTo(set *matcher.WordSet, label string) func(context.Context, models.Message, string) {
	return func(ctx context.Context, m models.Message, arg string) {
		w := matcher.Normalize(arg)
		if !set.Add(w) {
			b.reply(ctx, m, fmt.Sprintf("ℹ️ `%s` is already a %s.", w, label))
			return
		}
		b.logger.WithField("phrase", w).Infof("%s added", label)
		b.reply(ctx, m, fmt.Sprintf("✅ Added %s: `%s`", label, w))
	}
}

func (b *Bot) removeFrom(set *matcher.WordSet, label string) func(context.Context, models.Message, string) {
	return func(ctx context.Context, m models.Message, arg string) {
		w := matcher.Normalize(arg)
		if !set.Remove(w) {
			b.reply(ctx, m, fmt.Sprintf("ℹ️ `%s` is not a %s.", w, label))
			return
		}
		b.logger.WithField("phrase", w).Infof("%s removed", label)
		b.reply(ctx, m, fmt.Sprintf("✅ Removed %s: `%s`", label, w))
	}
}

func (b *Bot) list(set *matcher.WordSet, title string) func(context.Context, models.Message, string) {
	return func(ctx context.Context, m models.Message, _ string) {
		words := set.List()
		if len(words) == 0 {
			b.reply(ctx, m, fmt.Sprintf("%s: (none)", title))
			return
		}
		b.reply(ctx, m, fmt.Sprintf("%s: `%s`", title, strings.Join(words, "`, `")))
	}
}
