// Package emotion labels tutor answers with a tone for the avatar front end.
package emotion

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

type Label string

const (
	Happy       Label = "happy"
	Thinking    Label = "thinking"
	Explaining  Label = "explaining"
	Confused    Label = "confused"
	Neutral     Label = "neutral"
	Friendly    Label = "friendly"
	Encouraging Label = "encouraging"
)

// Labels returns every label the classifier can produce.
func Labels() []Label {
	return []Label{Happy, Thinking, Explaining, Confused, Neutral, Friendly, Encouraging}
}

// longAnswer is the rune count above which an answer counts as an explanation.
const longAnswer = 200

type rule struct {
	label Label
	match func(question, answer string) bool
}

// rules are checked in order; the first match wins. Inputs are lower-cased.
var rules = []rule{
	{Thinking, func(q, _ string) bool { return containsAny(q, "how", "why", "explain", "what is") }},
	{Happy, func(_, a string) bool { return containsAny(a, "great", "excellent", "wonderful", "correct") }},
	{Explaining, func(_, a string) bool { return utf8.RuneCountInString(a) > longAnswer || strings.Contains(a, "because") }},
	{Confused, func(_, a string) bool { return containsAny(a, "don't know", "unclear", "not sure") }},
}

var fallback = []Label{Neutral, Friendly, Encouraging}

// Classifier applies the rule table. It is safe for concurrent use.
type Classifier struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Classifier whose fallback picks come from seed. A zero seed
// uses the current time.
func New(seed int64) *Classifier {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Classifier{
		rnd: rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1)),
	}
}

func (c *Classifier) Classify(question, answer string) Label {
	q := strings.ToLower(question)
	a := strings.ToLower(answer)

	for _, r := range rules {
		if r.match(q, a) {
			return r.label
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return fallback[c.rnd.IntN(len(fallback))]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
