package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/tutor/internal/models"
)

func TestHistory_KeepsMostRecentTurns(t *testing.T) {
	h := NewHistory(0)
	for i := 1; i <= 15; i++ {
		h.Record(models.RoleUser, fmt.Sprintf("turn %d", i))
	}

	turns := h.Turns()
	require.Len(t, turns, 10)
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprintf("turn %d", i+6), turn.Content)
	}
}

func TestHistory_AppendPairsAndReset(t *testing.T) {
	h := NewHistory(3)
	h.Append(
		models.Turn{Role: models.RoleUser, Content: "q1"},
		models.Turn{Role: models.RoleAssistant, Content: "a1"},
	)
	h.Append(
		models.Turn{Role: models.RoleUser, Content: "q2"},
		models.Turn{Role: models.RoleAssistant, Content: "a2"},
	)

	turns := h.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "a1", turns[0].Content)
	assert.Equal(t, "a2", turns[2].Content)

	// Turns is a copy.
	turns[0].Content = "changed"
	assert.Equal(t, "a1", h.Turns()[0].Content)

	h.Reset()
	assert.Zero(t, h.Len())
	assert.Empty(t, h.Turns())
}

func TestHistory_Concurrent(t *testing.T) {
	h := NewHistory(10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Append(
					models.Turn{Role: models.RoleUser, Content: "q"},
					models.Turn{Role: models.RoleAssistant, Content: "a"},
				)
			}
		}(i)
	}
	wg.Wait()

	turns := h.Turns()
	require.Len(t, turns, 10)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, models.RoleUser, turns[i].Role)
		assert.Equal(t, models.RoleAssistant, turns[i+1].Role)
	}
}

func TestStore_SessionsAreIndependent(t *testing.T) {
	s := NewStore(StoreConfig{})
	s.Get("a").Record(models.RoleUser, "hello from a")
	s.Get("b").Record(models.RoleUser, "hello from b")
	s.Get("").Record(models.RoleUser, "hello from default")

	assert.Equal(t, 1, s.Get("a").Len())
	assert.Equal(t, "hello from b", s.Get("b").Turns()[0].Content)
	assert.Equal(t, 1, s.Get(DefaultSession).Len())

	s.Reset("a")
	assert.Zero(t, s.Get("a").Len())
	assert.Equal(t, 1, s.Get("b").Len())

	s.ResetAll()
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Get("b").Len())
}

func TestStore_ExpiresIdleSessions(t *testing.T) {
	s := NewStore(StoreConfig{SessionTTL: 50 * time.Millisecond})

	s.Get("old").Record(models.RoleUser, "hi")
	time.Sleep(120 * time.Millisecond)

	_, ok := s.Peek("old")
	assert.False(t, ok)

	s.Get("new")
	assert.Equal(t, 1, s.Len())
	assert.Zero(t, s.Get("old").Len())
}

func TestStore_UseRenewsIdleTimer(t *testing.T) {
	s := NewStore(StoreConfig{SessionTTL: 200 * time.Millisecond})

	s.Get("busy").Record(models.RoleUser, "hi")
	for i := 0; i < 3; i++ {
		time.Sleep(100 * time.Millisecond)
		s.Get("busy")
	}

	h, ok := s.Peek("busy")
	require.True(t, ok)
	assert.Equal(t, 1, h.Len())
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := NewStore(StoreConfig{MaxSessions: 2})

	s.Get("a")
	s.Get("b")
	s.Get("a")
	s.Get("c")

	assert.Equal(t, 2, s.Len())
	_, ok := s.Peek("b")
	assert.False(t, ok)
	_, ok = s.Peek("a")
	assert.True(t, ok)
	_, ok = s.Peek("c")
	assert.True(t, ok)
}

func TestStore_AppendAfterSessionDropped(t *testing.T) {
	s := NewStore(StoreConfig{})
	s.Get("x").Record(models.RoleUser, "earlier")
	s.ResetAll()

	s.Append("x",
		models.Turn{Role: models.RoleUser, Content: "q"},
		models.Turn{Role: models.RoleAssistant, Content: "a"},
	)

	h, ok := s.Peek("x")
	require.True(t, ok)
	assert.Equal(t, 2, h.Len())
}

func TestStore_RecordUsesClock(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	s := NewStore(StoreConfig{Now: func() time.Time { return at }})
	s.Get("x").Record(models.RoleAssistant, "hello")
	assert.Equal(t, at, s.Get("x").Turns()[0].Timestamp)
}
