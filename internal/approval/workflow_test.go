package approval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/farazbot/backend/internal/models"
	"github.com/farazbot/backend/internal/platform"
	"github.com/farazbot/backend/internal/platform/platformtest"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guildID  = "g1"
	ownerID  = "owner"
	authorID = "u1"
	modLogID = "modlog"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ModerationEvent
}

func (r *recordingPublisher) PublishEvent(ctx context.Context, ev models.ModerationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestWorkflow(t *testing.T, action models.Action, timeout time.Duration) (*Workflow, *platformtest.Fake, *recordingPublisher) {
	t.Helper()
	fake := platformtest.New()
	fake.Owners[guildID] = ownerID
	fake.AddMember(guildID, authorID)
	pub := &recordingPublisher{}
	logger, _ := logtest.NewNullLogger()
	w := NewWorkflow(Config{ModLogChannelID: modLogID, Action: action, Timeout: timeout},
		NewStore(100, time.Hour), fake, pub, logger)
	t.Cleanup(w.Close)
	return w, fake, pub
}

func testMessage(content string) models.Message {
	return models.Message{ID: "m1", GuildID: guildID, ChannelID: "general", AuthorID: authorID, Content: content}
}

func press(p *models.PendingAction, userID, customID string) models.Interaction {
	return models.Interaction{
		ID:        "i-" + userID,
		Token:     "tok",
		GuildID:   guildID,
		ChannelID: modLogID,
		MessageID: p.PromptID,
		UserID:    userID,
		CustomID:  customID,
	}
}

func TestRequestWithoutModLogChannel(t *testing.T) {
	fake := platformtest.New()
	logger, _ := logtest.NewNullLogger()
	w := NewWorkflow(Config{Action: models.ActionBan}, NewStore(10, time.Hour), fake, nil, logger)

	p, err := w.Request(context.Background(), testMessage("free nitro"), "Severe trigger detected")
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, fake.Prompts())
	assert.Equal(t, 0, w.Store().Len())
}

func TestRequestPostsPrompt(t *testing.T) {
	w, fake, pub := newTestWorkflow(t, models.ActionKick, time.Minute)

	p, err := w.Request(context.Background(), testMessage("click here http://evil.example for free nitro"), "Severe trigger detected")
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.True(t, strings.HasPrefix(p.Key, "g1:u1:kick:"))
	assert.Equal(t, models.ActionKick, p.Action)
	assert.Equal(t, p.CreatedAt.Add(time.Minute), p.ExpiresAt)

	prompts := fake.Prompts()
	require.Len(t, prompts, 1)
	sent := prompts[0]
	assert.Equal(t, modLogID, sent.ChannelID)
	assert.Equal(t, approveID(p.Key), sent.Prompt.ApproveID)
	assert.Equal(t, declineID(p.Key), sent.Prompt.DeclineID)
	assert.Contains(t, sent.Content, "<@u1>")
	assert.Contains(t, sent.Content, "**KICK**")
	assert.Contains(t, sent.Content, "Reason: Severe trigger detected")
	assert.Contains(t, sent.Content, "<#general>")
	assert.Contains(t, sent.Content, "free nitro")

	stored, ok := w.Store().Get(p.Key)
	require.True(t, ok)
	assert.Equal(t, sent.ID, stored.PromptID)
	assert.Equal(t, []string{models.EventApprovalRequested}, pub.kinds())
}

func TestRequestKeysAreUnique(t *testing.T) {
	w, _, _ := newTestWorkflow(t, models.ActionKick, time.Minute)
	fixed := time.Unix(1700000000, 0)
	w.now = func() time.Time { return fixed }

	a, err := w.Request(context.Background(), testMessage("scam"), "Severe trigger detected")
	require.NoError(t, err)
	b, err := w.Request(context.Background(), testMessage("scam"), "Severe trigger detected")
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, b.Key)
	assert.Equal(t, 2, w.Store().Len())
}

func TestRequestPromptFailureLeavesNoEntry(t *testing.T) {
	w, fake, _ := newTestWorkflow(t, models.ActionKick, time.Minute)
	fake.PromptErr = platform.ErrForbidden

	p, err := w.Request(context.Background(), testMessage("scam"), "Severe trigger detected")
	assert.ErrorIs(t, err, platform.ErrForbidden)
	assert.Nil(t, p)
	assert.Equal(t, 0, w.Store().Len())
}

func TestNonOwnerCannotResolve(t *testing.T) {
	w, fake, _ := newTestWorkflow(t, models.ActionBan, time.Minute)
	ctx := context.Background()
	p, err := w.Request(ctx, testMessage("scam"), "Severe trigger detected")
	require.NoError(t, err)

	for _, id := range []string{approveID(p.Key), declineID(p.Key)} {
		require.NoError(t, w.HandleInteraction(ctx, press(p, "someone-else", id)))
	}

	responses := fake.InteractionResponses()
	require.Len(t, responses, 2)
	for _, r := range responses {
		assert.True(t, r.Ephemeral)
		assert.Contains(t, r.Content, "Only the server owner")
	}
	_, ok := w.Store().Get(p.Key)
	assert.True(t, ok, "pending action must remain")
	assert.Empty(t, fake.ModerationCalls())
	assert.Empty(t, fake.PromptEdits())
}

func TestOnlyTargetGuildOwnerCanResolve(t *testing.T) {
	w, fake, _ := newTestWorkflow(t, models.ActionBan, time.Minute)
	fake.Owners["g2"] = "owner2"
	fake.AddMember("g2", "victim")
	ctx := context.Background()

	msg := testMessage("scam")
	msg.GuildID = "g2"
	msg.AuthorID = "victim"
	p, err := w.Request(ctx, msg, "Severe trigger detected")
	require.NoError(t, err)

	// the mod-log channel lives in g1, so its owner sees the prompt
	require.NoError(t, w.HandleInteraction(ctx, press(p, ownerID, approveID(p.Key))))
	assert.Empty(t, fake.ModerationCalls())
	responses := fake.InteractionResponses()
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Ephemeral)
	assert.Contains(t, responses[0].Content, "Only the server owner")
	_, ok := w.Store().Get(p.Key)
	assert.True(t, ok, "pending action must remain")

	require.NoError(t, w.HandleInteraction(ctx, press(p, "owner2", approveID(p.Key))))
	calls := fake.ModerationCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "g2", calls[0].GuildID)
	assert.Equal(t, "victim", calls[0].UserID)
}

func TestApproveBan(t *testing.T) {
	w, fake, pub := newTestWorkflow(t, models.ActionBan, time.Minute)
	ctx := context.Background()
	p, err := w.Request(ctx, testMessage("visit https://example.com"), "Link detected")
	require.NoError(t, err)

	require.NoError(t, w.HandleInteraction(ctx, press(p, ownerID, approveID(p.Key))))

	calls := fake.ModerationCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.ActionBan, calls[0].Action)
	assert.Equal(t, authorID, calls[0].UserID)
	assert.Equal(t, "Link detected", calls[0].Reason)

	_, ok := w.Store().Get(p.Key)
	assert.False(t, ok)

	responses := fake.InteractionResponses()
	require.Len(t, responses, 1)
	assert.False(t, responses[0].Ephemeral, "prompt is updated in place")
	assert.Equal(t, "✅ Approved. BAN executed for <@u1>.\nReason: Link detected", responses[0].Content)
	assert.Equal(t, []string{models.EventApprovalRequested, models.EventApprovalApproved}, pub.kinds())
}

func TestApproveTwiceExecutesOnce(t *testing.T) {
	w, fake, _ := newTestWorkflow(t, models.ActionBan, time.Minute)
	ctx := context.Background()
	p, err := w.Request(ctx, testMessage("scam"), "Severe trigger detected")
	require.NoError(t, err)

	require.NoError(t, w.HandleInteraction(ctx, press(p, ownerID, approveID(p.Key))))
	require.NoError(t, w.HandleInteraction(ctx, press(p, ownerID, approveID(p.Key))))

	assert.Len(t, fake.ModerationCalls(), 1)
	responses := fake.InteractionResponses()
	require.Len(t, responses, 2)
	assert.True(t, responses[1].Ephemeral)
	assert.Equal(t, "Request expired or already handled.", responses[1].Content)
}

func TestConcurrentApprovalsExecuteOnce(t *testing.T) {
	w, fake, _ := newTestWorkflow(t, models.ActionKick, time.Minute)
	ctx := context.Background()
	p, err := w.Request(ctx, testMessage("scam"), "Severe trigger detected")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := approveID(p.Key)
			if i%2 == 1 {
				id = declineID(p.Key)
			}
			_ = w.HandleInteraction(ctx, press(p, ownerID, id))
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, len(fake.ModerationCalls()), 1)
	terminal := 0
	for _, r := range fake.InteractionResponses() {
		if !r.Ephemeral {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal, "exactly one press resolves the request")
}

func TestDeclineIsIdempotent(t *testing.T) {
	w, fake, pub := newTestWorkflow(t, models.ActionKick, time.Minute)
	ctx := context.Background()
	p, err := w.Request(ctx, testMessage("scam"), "Severe trigger detected")
	require.NoError(t, err)

	require.NoError(t, w.HandleInteraction(ctx, press(p, ownerID, declineID(p.Key))))
	require.NoError(t, w.HandleInteraction(ctx, press(p, ownerID, declineID(p.Key))))

	assert.Empty(t, fake.ModerationCalls())
	responses := fake.InteractionResponses()
	require.Len(t, responses, 2)
	assert.Equal(t, "❌ Declined. No action taken.", responses[0].Content)
	assert.False(t, responses[0].Ephemeral)
	assert.True(t, responses[1].Ephemeral)
	assert.Equal(t, 0, w.Store().Len())
	assert.Equal(t, []string{models.EventApprovalRequested, models.EventApprovalDeclined}, pub.kinds())
}

func TestApproveKickMemberLeft(t *testing.T) {
	w, fake, pub := newTestWorkflow(t, models.ActionKick, time.Minute)
	ctx := context.Background()
	msg := testMessage("scam")
	msg.AuthorID = "gone"
	p, err := w.Request(ctx, msg, "Severe trigger detected")
	require.NoError(t, err)

	require.NoError(t, w.HandleInteraction(ctx, press(p, ownerID, approveID(p.Key))))

	assert.Empty(t, fake.ModerationCalls())
	responses := fake.InteractionResponses()
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Ephemeral)
	assert.Contains(t, responses[0].Content, "no longer a member")

	edits := fake.PromptEdits()
	require.Len(t, edits, 1)
	assert.Equal(t, p.PromptID, edits[0].MessageID)
	assert.Equal(t, 0, w.Store().Len(), "failed actions are not retried")
	assert.Contains(t, pub.kinds(), models.EventApprovalFailed)
}

func TestApprovePermissionFailure(t *testing.T) {
	tests := []struct {
		name   string
		action models.Action
		setup  func(f *platformtest.Fake)
		want   string
	}{
		{
			name:   "kick forbidden",
			action: models.ActionKick,
			setup:  func(f *platformtest.Fake) { f.KickErr = platform.ErrForbidden },
			want:   "❌ I don't have permission to kick/ban.",
		},
		{
			name:   "ban forbidden",
			action: models.ActionBan,
			setup:  func(f *platformtest.Fake) { f.BanErr = platform.ErrForbidden },
			want:   "❌ I don't have permission to kick/ban.",
		},
		{
			name:   "unexpected error",
			action: models.ActionBan,
			setup:  func(f *platformtest.Fake) { f.BanErr = errors.New("gateway timeout") },
			want:   "❌ BAN failed: gateway timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, fake, _ := newTestWorkflow(t, tt.action, time.Minute)
			tt.setup(fake)
			ctx := context.Background()
			p, err := w.Request(ctx, testMessage("scam"), "Severe trigger detected")
			require.NoError(t, err)

			require.NoError(t, w.HandleInteraction(ctx, press(p, ownerID, approveID(p.Key))))

			responses := fake.InteractionResponses()
			require.Len(t, responses, 1)
			assert.True(t, responses[0].Ephemeral)
			assert.Equal(t, tt.want, responses[0].Content)
			assert.Equal(t, 0, w.Store().Len())
		})
	}
}

func TestExpiryClosesPrompt(t *testing.T) {
	w, fake, pub := newTestWorkflow(t, models.ActionBan, 20*time.Millisecond)
	ctx := context.Background()
	p, err := w.Request(ctx, testMessage("scam"), "Severe trigger detected")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return w.Store().Len() == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(fake.PromptEdits()) == 1 }, time.Second, 5*time.Millisecond)

	edit := fake.PromptEdits()[0]
	assert.Equal(t, modLogID, edit.ChannelID)
	assert.Equal(t, p.PromptID, edit.MessageID)
	assert.Contains(t, edit.Content, "expired")

	require.NoError(t, w.HandleInteraction(ctx, press(p, ownerID, approveID(p.Key))))
	assert.Empty(t, fake.ModerationCalls())
	responses := fake.InteractionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "Request expired or already handled.", responses[0].Content)
	assert.Contains(t, pub.kinds(), models.EventApprovalExpired)
}

func TestCapacityEvictionClosesPrompt(t *testing.T) {
	fake := platformtest.New()
	fake.Owners[guildID] = ownerID
	pub := &recordingPublisher{}
	logger, _ := logtest.NewNullLogger()
	w := NewWorkflow(Config{ModLogChannelID: modLogID, Action: models.ActionKick, Timeout: time.Minute},
		NewStore(1, time.Hour), fake, pub, logger)
	t.Cleanup(w.Close)
	ctx := context.Background()

	first, err := w.Request(ctx, testMessage("scam"), "Severe trigger detected")
	require.NoError(t, err)
	second, err := w.Request(ctx, testMessage("free nitro"), "Severe trigger detected")
	require.NoError(t, err)

	edits := fake.PromptEdits()
	require.Len(t, edits, 1)
	assert.Equal(t, first.PromptID, edits[0].MessageID)
	assert.Contains(t, edits[0].Content, "expired")
	assert.Contains(t, pub.kinds(), models.EventApprovalExpired)

	w.mu.Lock()
	_, timerLeft := w.timers[first.Key]
	w.mu.Unlock()
	assert.False(t, timerLeft)

	require.NoError(t, w.HandleInteraction(ctx, press(first, ownerID, approveID(first.Key))))
	responses := fake.InteractionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "Request expired or already handled.", responses[0].Content)

	_, ok := w.Store().Get(second.Key)
	assert.True(t, ok)
}

func TestApproveAfterDeadlineIsExpired(t *testing.T) {
	w, fake, _ := newTestWorkflow(t, models.ActionBan, time.Minute)
	ctx := context.Background()
	p, err := w.Request(ctx, testMessage("scam"), "Severe trigger detected")
	require.NoError(t, err)

	w.now = func() time.Time { return p.ExpiresAt.Add(time.Second) }
	require.NoError(t, w.HandleInteraction(ctx, press(p, ownerID, approveID(p.Key))))

	assert.Empty(t, fake.ModerationCalls())
	assert.Equal(t, 0, w.Store().Len())
	require.Len(t, fake.PromptEdits(), 1)
}

func TestUnknownComponent(t *testing.T) {
	w, fake, _ := newTestWorkflow(t, models.ActionKick, time.Minute)
	err := w.HandleInteraction(context.Background(), models.Interaction{GuildID: guildID, UserID: ownerID, CustomID: "poll:vote:1"})
	assert.ErrorIs(t, err, ErrUnknownComponent)
	assert.Empty(t, fake.InteractionResponses())
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("é", 400)
	assert.Len(t, []rune(preview(long)), previewLimit)
	assert.Equal(t, "a '''b''' c", preview("a ```b``` c"))
	assert.Equal(t, " ", preview(""))
}
