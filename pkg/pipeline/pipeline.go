// Package pipeline ties loading, indexing, retrieval, generation, emotion
// labelling and conversation history into the tutor's question answering flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/conversation"
	"github.com/xhad/tutor/pkg/emotion"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/loader"
	"github.com/xhad/tutor/pkg/processor"
	"github.com/xhad/tutor/pkg/scraper"
	"github.com/xhad/tutor/pkg/store"
)

var (
	// ErrNotInitialized is returned by query operations before Initialize succeeds.
	ErrNotInitialized = errors.New("pipeline not initialized")
	// ErrMissingCredential is returned by Initialize when no provider is configured.
	ErrMissingCredential = errors.New("missing provider credential")
	// ErrEmptyQuestion is returned for blank questions and messages.
	ErrEmptyQuestion = errors.New("question must not be empty")
)

type State int

const (
	StateUninitialized State = iota
	StateReadyNoDocs
	StateReadyWithDocs
)

func (s State) String() string {
	switch s {
	case StateReadyNoDocs:
		return "ready_no_docs"
	case StateReadyWithDocs:
		return "ready_with_docs"
	default:
		return "uninitialized"
	}
}

type Mode string

const (
	ModeGrounded      Mode = "grounded"
	ModeUngrounded    Mode = "ungrounded"
	ModeProviderError Mode = "provider_error"
)

// Answer is a tutor reply. Mode records which path produced it and
// FallbackReason why a better path was not taken.
type Answer struct {
	Text           string        `json:"text"`
	Emotion        emotion.Label `json:"emotion"`
	Sources        int           `json:"sources"`
	Mode           Mode          `json:"mode"`
	FallbackReason string        `json:"fallback_reason,omitempty"`
}

type Config struct {
	Loader    loader.LoaderConfig
	Processor processor.ProcessorConfig
	Builder   store.BuilderConfig
	// SeedURLs are crawled with Scraper settings and indexed with the local files.
	SeedURLs     []string
	Scraper      scraper.ScraperConfig
	TopK         int
	Conversation conversation.StoreConfig
	EmotionSeed  int64
	// NewIndex opens the index the corpus is loaded into. Defaults to an
	// in-memory index.
	NewIndex func(ctx context.Context) (types.Index, error)
}

// Providers are the hosted model clients. Either being nil means the
// credentials were missing.
type Providers struct {
	Name     string
	Chat     *llm.ChatEngine
	Embedder types.Embedder
}

type Pipeline struct {
	config    Config
	providers Providers

	processor  types.Processor
	classifier *emotion.Classifier
	sessions   *conversation.Store

	initOnce sync.Once
	initErr  error

	mu        sync.RWMutex
	state     State
	index     types.Index
	retriever *store.Retriever
}

func NewWithConfig(config Config, providers Providers) *Pipeline {
	if config.TopK <= 0 {
		config.TopK = 3
	}
	if config.NewIndex == nil {
		config.NewIndex = func(context.Context) (types.Index, error) {
			return store.NewMemoryIndex(), nil
		}
	}

	proc := processor.NewWithConfig(config.Processor)

	return &Pipeline{
		config:     config,
		providers:  providers,
		processor:  &proc,
		classifier: emotion.New(config.EmotionSeed),
		sessions:   conversation.NewStore(config.Conversation),
	}
}

// Initialize loads and indexes the corpus. It runs once; later calls return
// the first result. Corpus problems are logged and leave the pipeline ready
// without documents.
func (p *Pipeline) Initialize(ctx context.Context) error {
	p.initOnce.Do(func() {
		p.initErr = p.initialize(ctx)
	})
	return p.initErr
}

func (p *Pipeline) initialize(ctx context.Context) error {
	if p.providers.Chat == nil || p.providers.Embedder == nil {
		log.Printf("Cannot initialize without provider credentials")
		return ErrMissingCredential
	}

	docs := loader.NewWithConfig(p.config.Loader).Load(ctx)
	docs = append(docs, p.crawl(ctx)...)
	log.Printf("Loaded %d documents", len(docs))

	chunks := p.processor.Process(docs)
	if len(chunks) == 0 {
		log.Printf("No documents to index, answering from general knowledge")
		p.setReady(StateReadyNoDocs, nil)
		return nil
	}
	log.Printf("Split documents into %d chunks", len(chunks))

	target, err := p.config.NewIndex(ctx)
	if err != nil {
		log.Printf("Failed to open index, continuing without documents: %v", err)
		p.setReady(StateReadyNoDocs, nil)
		return nil
	}

	index, err := store.NewBuilder(p.providers.Embedder, p.config.Builder).Build(ctx, chunks, target)
	if err != nil || index == nil {
		if err != nil {
			log.Printf("Failed to build index, continuing without documents: %v", err)
		}
		target.Close()
		p.setReady(StateReadyNoDocs, nil)
		return nil
	}

	p.setReady(StateReadyWithDocs, index)
	return nil
}

func (p *Pipeline) crawl(ctx context.Context) []models.Document {
	var docs []models.Document
	for _, u := range p.config.SeedURLs {
		cfg := p.config.Scraper
		cfg.BaseURL = u

		s, err := scraper.NewWithConfig(cfg)
		if err != nil {
			log.Printf("Skipping seed URL %s: %v", u, err)
			continue
		}
		pages, err := s.Scrape(ctx, u)
		if err != nil {
			log.Printf("Failed to crawl %s: %v", u, err)
		}
		docs = append(docs, pages...)
	}
	return docs
}

func (p *Pipeline) setReady(state State, index types.Index) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = state
	p.index = index
	if index != nil {
		p.retriever = store.NewRetriever(p.providers.Embedder, index, p.config.TopK)
	}
}

func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) Ready() bool {
	return p.State() != StateUninitialized
}

// Provider names the configured model provider.
func (p *Pipeline) Provider() string {
	return p.providers.Name
}

// Answer responds to a standalone question without touching any session.
func (p *Pipeline) Answer(ctx context.Context, question string, opts ...llm.ComposeOption) (Answer, error) {
	if !p.Ready() {
		return Answer{}, ErrNotInitialized
	}
	if strings.TrimSpace(question) == "" {
		return Answer{}, ErrEmptyQuestion
	}
	return p.respond(ctx, question, nil, opts...), nil
}

// Chat answers message within a session, using the session's recent turns
// as conversational context and recording the new exchange.
func (p *Pipeline) Chat(ctx context.Context, message, sessionID string, opts ...llm.ComposeOption) (Answer, error) {
	if !p.Ready() {
		return Answer{}, ErrNotInitialized
	}
	if strings.TrimSpace(message) == "" {
		return Answer{}, ErrEmptyQuestion
	}

	turns := p.sessions.Get(sessionID).Turns()
	answer := p.respond(ctx, message, turns, opts...)

	p.sessions.Append(sessionID,
		models.Turn{Role: models.RoleUser, Content: message, Timestamp: p.now()},
		models.Turn{Role: models.RoleAssistant, Content: answer.Text, Timestamp: p.now()},
	)
	return answer, nil
}

// History returns a session's turns, oldest first.
func (p *Pipeline) History(sessionID string) ([]models.Turn, error) {
	if !p.Ready() {
		return nil, ErrNotInitialized
	}
	h, ok := p.sessions.Peek(sessionID)
	if !ok {
		return []models.Turn{}, nil
	}
	return h.Turns(), nil
}

// Reset clears one session, or every session when sessionID is empty.
func (p *Pipeline) Reset(sessionID string) error {
	if !p.Ready() {
		return ErrNotInitialized
	}
	if sessionID == "" {
		p.sessions.ResetAll()
		return nil
	}
	p.sessions.Reset(sessionID)
	return nil
}

// Close releases the index.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index != nil {
		p.index.Close()
	}
}

func (p *Pipeline) respond(ctx context.Context, question string, history []models.Turn, opts ...llm.ComposeOption) Answer {
	contexts, reason := p.retrieve(ctx, question)

	text, err := p.providers.Chat.Compose(ctx, question, contexts, history, opts...)
	if err != nil {
		log.Printf("Error answering question: %v", err)
		return Answer{
			Text:           fmt.Sprintf("I encountered an error: %v. Make sure your API key is valid.", err),
			Emotion:        emotion.Confused,
			Mode:           ModeProviderError,
			FallbackReason: err.Error(),
		}
	}

	answer := Answer{
		Text:    text,
		Emotion: p.classifier.Classify(question, text),
		Sources: len(contexts),
		Mode:    ModeGrounded,
	}
	if len(contexts) == 0 {
		answer.Mode = ModeUngrounded
		answer.FallbackReason = reason
	}
	return answer
}

// retrieve returns the context passages for question, or the reason there
// are none.
func (p *Pipeline) retrieve(ctx context.Context, question string) ([]string, string) {
	p.mu.RLock()
	retriever := p.retriever
	p.mu.RUnlock()

	if retriever == nil {
		return nil, "no documents indexed"
	}

	chunks, err := retriever.Retrieve(ctx, question)
	if err != nil {
		log.Printf("Retrieval failed, answering without documents: %v", err)
		return nil, fmt.Sprintf("retrieval failed: %v", err)
	}
	if len(chunks) == 0 {
		return nil, "no matching passages"
	}

	contexts := make([]string, len(chunks))
	for i, c := range chunks {
		contexts[i] = c.Text
	}
	return contexts, ""
}

func (p *Pipeline) now() time.Time {
	if p.config.Conversation.Now != nil {
		return p.config.Conversation.Now()
	}
	return time.Now()
}
