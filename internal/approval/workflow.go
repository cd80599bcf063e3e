package approval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/farazbot/backend/internal/metrics"
	"github.com/farazbot/backend/internal/models"
	"github.com/farazbot/backend/internal/platform"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout  = 300 * time.Second
	previewLimit    = 300
	expireCallLimit = 15 * time.Second
)

var (
	// ErrUnknownComponent is returned for button ids this workflow does not own
	ErrUnknownComponent = errors.New("unknown component")
	// ErrMemberLeft is returned when a kick target is no longer in the guild
	ErrMemberLeft = fmt.Errorf("member left the server: %w", platform.ErrNotFound)
)

// Publisher receives moderation events. A nil Publisher is allowed.
type Publisher interface {
	PublishEvent(ctx context.Context, ev models.ModerationEvent) error
}

type Config struct {
	// ModLogChannelID receives prompts; the workflow is inert when empty
	ModLogChannelID string
	Action          models.Action
	Timeout         time.Duration
}

// Workflow creates approval prompts and resolves them on owner input or timeout
type Workflow struct {
	cfg      Config
	store    *Store
	platform platform.Platform
	events   Publisher
	logger   logrus.FieldLogger

	seq    atomic.Uint64
	mu     sync.Mutex
	timers map[string]*time.Timer
	now    func() time.Time
}

func NewWorkflow(cfg Config, store *Store, p platform.Platform, events Publisher, logger logrus.FieldLogger) *Workflow {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Action != models.ActionBan {
		cfg.Action = models.ActionKick
	}
	return &Workflow{
		cfg:      cfg,
		store:    store,
		platform: p,
		events:   events,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		now:      time.Now,
	}
}

func (w *Workflow) Enabled() bool { return w.cfg.ModLogChannelID != "" }

func (w *Workflow) Store() *Store { return w.store }

// newKey builds a key from guild, author, action and creation time. The
// sequence suffix keeps keys unique within one nanosecond.
func (w *Workflow) newKey(guildID, authorID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s.%d",
		guildID, authorID, w.cfg.Action,
		strconv.FormatInt(at.UnixNano(), 36), w.seq.Add(1))
}

// Request stores a pending action for the author of m and posts a prompt to
// the moderation-log channel. It returns nil, nil when no channel is set.
func (w *Workflow) Request(ctx context.Context, m models.Message, reason string) (*models.PendingAction, error) {
	if !w.Enabled() {
		return nil, nil
	}

	now := w.now()
	p := models.PendingAction{
		Key:          w.newKey(m.GuildID, m.AuthorID, now),
		GuildID:      m.GuildID,
		Action:       w.cfg.Action,
		TargetUserID: m.AuthorID,
		Reason:       reason,
		ChannelID:    m.ChannelID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(w.cfg.Timeout),
	}
	if err := w.store.Put(p); err != nil {
		return nil, err
	}
	w.closeEvicted(ctx)

	promptID, err := w.platform.SendPrompt(ctx, w.cfg.ModLogChannelID, platform.Prompt{
		Content:   renderPrompt(p, m.Content),
		ApproveID: approveID(p.Key),
		DeclineID: declineID(p.Key),
	})
	if err != nil {
		w.store.Take(p.Key)
		return nil, fmt.Errorf("failed to post approval prompt: %w", err)
	}
	p.PromptID = promptID
	w.store.SetPrompt(p.Key, promptID)
	w.schedule(p.Key)
	w.syncPending()

	ev := w.event(models.EventApprovalRequested, p)
	ev.MessageID = m.ID
	ev.ChannelID = m.ChannelID
	w.publish(ctx, ev)

	w.logger.WithFields(logrus.Fields{
		"key":     p.Key,
		"user_id": p.TargetUserID,
		"action":  p.Action,
	}).Info("approval requested")
	return &p, nil
}

// HandleInteraction resolves a button press on an approval prompt
func (w *Workflow) HandleInteraction(ctx context.Context, it models.Interaction) error {
	op, key, ok := parseCustomID(it.CustomID)
	if !ok {
		return ErrUnknownComponent
	}

	// Only the owner of the guild the action targets may resolve it, wherever the prompt lives
	targetGuild := it.GuildID
	if p, ok := w.store.Get(key); ok {
		targetGuild = p.GuildID
	}
	owner, err := w.platform.GuildOwner(ctx, targetGuild)
	if err != nil || owner == "" || owner != it.UserID {
		if err != nil {
			w.logger.WithError(err).WithField("guild_id", targetGuild).Warn("failed to resolve guild owner")
		}
		return w.platform.RespondEphemeral(ctx, it, "❌ Only the server owner can approve/decline.")
	}

	switch op {
	case opApprove:
		return w.approve(ctx, it, key)
	default:
		return w.decline(ctx, it, key)
	}
}

func (w *Workflow) approve(ctx context.Context, it models.Interaction, key string) error {
	p, ok := w.store.Take(key)
	if !ok {
		return w.platform.RespondEphemeral(ctx, it, "Request expired or already handled.")
	}
	w.resolved(key)

	if !w.now().Before(p.ExpiresAt) {
		w.finishExpired(ctx, p)
		return w.platform.RespondEphemeral(ctx, it, "Request expired or already handled.")
	}

	log := w.logger.WithFields(logrus.Fields{"key": key, "user_id": p.TargetUserID, "action": p.Action})
	if err := w.execute(ctx, p); err != nil {
		metrics.ActionsExecuted.WithLabelValues(string(p.Action), "error").Inc()
		metrics.ApprovalsResolved.WithLabelValues("failed").Inc()
		log.WithError(err).Warn("approved action failed")

		ev := w.event(models.EventApprovalFailed, p)
		ev.ActorID = it.UserID
		ev.Reason = err.Error()
		w.publish(ctx, ev)

		if editErr := w.platform.EditPrompt(ctx, it.ChannelID, promptID(p, it), fmt.Sprintf(
			"⚠️ Approved, but %s failed for %s. No further action will be taken.\nReason: %s",
			p.Action.Upper(), models.Mention(p.TargetUserID), p.Reason)); editErr != nil {
			log.WithError(editErr).Warn("failed to close approval prompt")
		}
		return w.platform.RespondEphemeral(ctx, it, failureNotice(p, err))
	}

	metrics.ActionsExecuted.WithLabelValues(string(p.Action), "ok").Inc()
	metrics.ApprovalsResolved.WithLabelValues("approved").Inc()
	log.Info("approved action executed")

	ev := w.event(models.EventApprovalApproved, p)
	ev.ActorID = it.UserID
	w.publish(ctx, ev)

	return w.platform.RespondUpdate(ctx, it, fmt.Sprintf(
		"✅ Approved. %s executed for %s.\nReason: %s",
		p.Action.Upper(), models.Mention(p.TargetUserID), p.Reason))
}

func (w *Workflow) decline(ctx context.Context, it models.Interaction, key string) error {
	p, ok := w.store.Take(key)
	if !ok {
		return w.platform.RespondEphemeral(ctx, it, "Request expired or already handled.")
	}
	w.resolved(key)
	metrics.ApprovalsResolved.WithLabelValues("declined").Inc()

	ev := w.event(models.EventApprovalDeclined, p)
	ev.ActorID = it.UserID
	w.publish(ctx, ev)

	w.logger.WithField("key", key).Info("approval declined")
	return w.platform.RespondUpdate(ctx, it, "❌ Declined. No action taken.")
}

func (w *Workflow) execute(ctx context.Context, p models.PendingAction) error {
	switch p.Action {
	case models.ActionBan:
		return w.platform.Ban(ctx, p.GuildID, p.TargetUserID, p.Reason)
	default:
		member, err := w.platform.IsMember(ctx, p.GuildID, p.TargetUserID)
		if err != nil {
			return err
		}
		if !member {
			return ErrMemberLeft
		}
		return w.platform.Kick(ctx, p.GuildID, p.TargetUserID, p.Reason)
	}
}

func failureNotice(p models.PendingAction, err error) string {
	switch {
	case errors.Is(err, ErrMemberLeft):
		return fmt.Sprintf("❌ %s is no longer a member of the server; nothing to kick.", models.Mention(p.TargetUserID))
	case errors.Is(err, platform.ErrForbidden):
		return "❌ I don't have permission to kick/ban."
	case errors.Is(err, platform.ErrNotFound):
		return fmt.Sprintf("❌ %s could not be found.", models.Mention(p.TargetUserID))
	default:
		return fmt.Sprintf("❌ %s failed: %v", p.Action.Upper(), err)
	}
}

func promptID(p models.PendingAction, it models.Interaction) string {
	if it.MessageID != "" {
		return it.MessageID
	}
	return p.PromptID
}

func (w *Workflow) schedule(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timers[key] = time.AfterFunc(w.cfg.Timeout, func() { w.expire(key) })
}

// resolved stops the expiry timer of a request that left the store
func (w *Workflow) resolved(key string) {
	w.mu.Lock()
	t, ok := w.timers[key]
	delete(w.timers, key)
	w.mu.Unlock()
	if ok {
		t.Stop()
	}
	w.syncPending()
}

// syncPending reports the store size, which also reflects capacity evictions
func (w *Workflow) syncPending() {
	metrics.ApprovalsPending.Set(float64(w.store.Len()))
}

func (w *Workflow) expire(key string) {
	p, ok := w.store.Take(key)
	if !ok {
		w.mu.Lock()
		delete(w.timers, key)
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), expireCallLimit)
		defer cancel()
		w.closeEvicted(ctx)
		w.syncPending()
		return
	}
	w.resolved(key)

	ctx, cancel := context.WithTimeout(context.Background(), expireCallLimit)
	defer cancel()
	w.finishExpired(ctx, p)
}

// closeEvicted expires requests the store dropped on its own, so their
// prompts lose their buttons
func (w *Workflow) closeEvicted(ctx context.Context) {
	for _, p := range w.store.Evicted() {
		w.resolved(p.Key)
		w.finishExpired(ctx, p)
	}
}

// finishExpired closes the prompt of a request that was already taken from the store
func (w *Workflow) finishExpired(ctx context.Context, p models.PendingAction) {
	metrics.ApprovalsResolved.WithLabelValues("expired").Inc()
	w.publish(ctx, w.event(models.EventApprovalExpired, p))
	w.logger.WithField("key", p.Key).Info("approval expired")

	if p.PromptID == "" {
		return
	}
	if err := w.platform.EditPrompt(ctx, w.cfg.ModLogChannelID, p.PromptID,
		"⌛ Approval request expired. No action taken."); err != nil {
		w.logger.WithError(err).WithField("key", p.Key).Warn("failed to close expired prompt")
	}
}

// Close stops pending expiry timers. Pending entries are left as they are.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
}

func (w *Workflow) event(kind string, p models.PendingAction) models.ModerationEvent {
	ev := models.NewEvent(kind, p.GuildID)
	ev.ChannelID = p.ChannelID
	ev.TargetUserID = p.TargetUserID
	ev.Action = p.Action
	ev.Key = p.Key
	ev.Reason = p.Reason
	return ev
}

func (w *Workflow) publish(ctx context.Context, ev models.ModerationEvent) {
	if w.events == nil {
		return
	}
	if err := w.events.PublishEvent(ctx, ev); err != nil {
		w.logger.WithError(err).WithField("kind", ev.Kind).Debug("failed to publish moderation event")
	}
}

func renderPrompt(p models.PendingAction, content string) string {
	return fmt.Sprintf(
		"⚠️ **Approval Required**\n"+
			"User: %s\n"+
			"Action Requested: **%s**\n"+
			"Reason: %s\n"+
			"Channel: %s\n"+
			"Message: ```%s```",
		models.Mention(p.TargetUserID),
		p.Action.Upper(),
		p.Reason,
		models.ChannelMention(p.ChannelID),
		preview(content),
	)
}

// preview truncates content to previewLimit runes and defuses code fences
func preview(content string) string {
	r := []rune(content)
	if len(r) > previewLimit {
		r = r[:previewLimit]
	}
	s := strings.ReplaceAll(string(r), "```", "'''")
	if s == "" {
		return " "
	}
	return s
}
