package emotion

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		question string
		answer   string
		want     Label
	}{
		{"question word wins over answer", "How does gravity work?", "Great question! I'm not sure.", Thinking},
		{"why", "WHY is the sky blue", "", Thinking},
		{"what is", "what is a noun", "ok", Thinking},
		{"explain", "Please explain fractions", "ok", Thinking},
		{"happy", "Tell me about cats", "That is correct.", Happy},
		{"happy before explaining", "Tell me a fact", "Excellent, because cats purr.", Happy},
		{"because", "Tell me a fact", "Cats purr because they are content.", Explaining},
		{"long answer", "Tell me a fact", strings.Repeat("a", 201), Explaining},
		{"confused", "Tell me a fact", "I don't know that one.", Confused},
		{"unclear", "Tell me a fact", "That is unclear.", Confused},
	}

	c := New(1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.question, tt.answer))
		})
	}
}

func TestClassify_LengthCountsRunes(t *testing.T) {
	c := New(1)
	// 200 runes but 400 bytes is not long.
	answer := strings.Repeat("é", 200)
	assert.Contains(t, fallback, c.Classify("Tell me", answer))
}

func TestClassify_FallbackIsSeeded(t *testing.T) {
	a, b := New(42), New(42)

	seen := map[Label]bool{}
	for i := 0; i < 50; i++ {
		la := a.Classify("Hello", "Hi there")
		assert.Equal(t, la, b.Classify("Hello", "Hi there"))
		assert.Contains(t, fallback, la)
		seen[la] = true
	}
	assert.Len(t, seen, 3)
}

func TestClassify_Concurrent(t *testing.T) {
	c := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Classify("Hello", "Hi")
			}
		}()
	}
	wg.Wait()
}

func TestLabels(t *testing.T) {
	labels := Labels()
	assert.Len(t, labels, 7)
	for _, l := range fallback {
		assert.Contains(t, labels, l)
	}
}
