package approval

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/farazbot/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(key string, at time.Time) models.PendingAction {
	return models.PendingAction{
		Key:          key,
		GuildID:      "g1",
		Action:       models.ActionKick,
		TargetUserID: "u1",
		Reason:       "Link detected",
		CreatedAt:    at,
		ExpiresAt:    at.Add(time.Minute),
	}
}

func TestStoreBasics(t *testing.T) {
	assert := assert.New(t)
	s := NewStore(10, time.Hour)
	now := time.Now()

	assert.NoError(s.Put(pending("a", now)))
	assert.ErrorIs(s.Put(pending("a", now)), ErrDuplicateKey)
	assert.NoError(s.Put(pending("b", now.Add(time.Second))))
	assert.Equal(2, s.Len())

	assert.True(s.SetPrompt("a", "prompt-a"))
	assert.False(s.SetPrompt("missing", "x"))
	p, ok := s.Get("a")
	assert.True(ok)
	assert.Equal("prompt-a", p.PromptID)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal("a", list[0].Key)
	assert.Equal("b", list[1].Key)

	p, ok = s.Take("a")
	assert.True(ok)
	assert.Equal("a", p.Key)
	_, ok = s.Take("a")
	assert.False(ok, "second take must miss")
	assert.Equal(1, s.Len())
}

func TestStoreCapacityDropsOldest(t *testing.T) {
	s := NewStore(2, time.Hour)
	now := time.Now()
	require.NoError(t, s.Put(pending("a", now)))
	require.NoError(t, s.Put(pending("b", now)))
	require.NoError(t, s.Put(pending("c", now)))

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestStoreEvictedCollectsDrops(t *testing.T) {
	s := NewStore(2, time.Hour)
	now := time.Now()
	require.NoError(t, s.Put(pending("a", now)))
	require.NoError(t, s.Put(pending("b", now)))

	_, ok := s.Take("b")
	require.True(t, ok)
	assert.Empty(t, s.Evicted(), "taken entries are not evictions")

	require.NoError(t, s.Put(pending("c", now)))
	require.NoError(t, s.Put(pending("d", now)))

	evicted := s.Evicted()
	require.Len(t, evicted, 1)
	assert.Equal(t, "a", evicted[0].Key)
	assert.Empty(t, s.Evicted(), "Evicted clears what it returns")
}

func TestStoreTTLBackstop(t *testing.T) {
	s := NewStore(10, 20*time.Millisecond)
	require.NoError(t, s.Put(pending("a", time.Now())))

	assert.Eventually(t, func() bool {
		_, ok := s.Get("a")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestStoreTakeIsAtomic(t *testing.T) {
	s := NewStore(10, time.Hour)
	require.NoError(t, s.Put(pending("k", time.Now())))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Take("k"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestParseCustomID(t *testing.T) {
	tests := []struct {
		id     string
		op     string
		key    string
		wantOK bool
	}{
		{id: approveID("g:u:kick:x.1"), op: opApprove, key: "g:u:kick:x.1", wantOK: true},
		{id: declineID("g:u:ban:x.2"), op: opDecline, key: "g:u:ban:x.2", wantOK: true},
		{id: "modbot:approve:", wantOK: false},
		{id: "modbot:nuke:key", wantOK: false},
		{id: "other:approve:key", wantOK: false},
		{id: "garbage", wantOK: false},
	}
	for _, tt := range tests {
		op, key, ok := parseCustomID(tt.id)
		assert.Equal(t, tt.wantOK, ok, tt.id)
		if tt.wantOK {
			assert.Equal(t, tt.op, op)
			assert.Equal(t, tt.key, key)
		}
	}
}
