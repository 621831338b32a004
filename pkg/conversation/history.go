// Package conversation keeps the recent turns of each tutoring session in memory.
package conversation

import (
	"sync"
	"time"

	"github.com/xhad/tutor/internal/models"
)

// DefaultMaxTurns bounds a session's history.
const DefaultMaxTurns = 10

// History is a bounded FIFO of turns. The oldest turns are dropped first.
type History struct {
	mu       sync.Mutex
	maxTurns int
	turns    []models.Turn
	now      func() time.Time
}

func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{maxTurns: maxTurns, now: time.Now}
}

// Record appends a single turn stamped with the current time.
func (h *History) Record(role models.Role, content string) {
	h.Append(models.Turn{Role: role, Content: content, Timestamp: h.now()})
}

// Append adds turns in order under one lock, so a question and its answer
// are never separated by a concurrent writer.
func (h *History) Append(turns ...models.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turns...)
	if over := len(h.turns) - h.maxTurns; over > 0 {
		h.turns = append([]models.Turn(nil), h.turns[over:]...)
	}
}

// Turns returns a copy of the history, oldest first.
func (h *History) Turns() []models.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Turn{}, h.turns...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
