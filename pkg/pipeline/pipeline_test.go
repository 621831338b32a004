package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/tutor/internal/llmtest"
	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/emotion"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/loader"
	"github.com/xhad/tutor/pkg/pipeline"
)

func newProviders(t *testing.T, model *llmtest.Model, emb *llmtest.Embedder) pipeline.Providers {
	t.Helper()
	chat, err := llm.NewWithConfig(model, llm.ChatConfig{
		Guard: llm.NewGuard(llm.GuardConfig{Backoff: time.Millisecond}),
	})
	require.NoError(t, err)
	return pipeline.Providers{Name: "fake", Chat: chat, Embedder: emb}
}

func corpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newPipeline(t *testing.T, dir string, model *llmtest.Model, emb *llmtest.Embedder) *pipeline.Pipeline {
	t.Helper()
	p := pipeline.NewWithConfig(pipeline.Config{
		Loader:      loader.LoaderConfig{Path: dir},
		EmotionSeed: 7,
	}, newProviders(t, model, emb))
	require.NoError(t, p.Initialize(context.Background()))
	return p
}

var scienceNotes = map[string]string{
	"gravity.txt":        "Gravity is the force that pulls masses toward each other. Newton described it with an inverse square law.",
	"photosynthesis.txt": "Photosynthesis lets plants turn light, water and carbon dioxide into sugar and oxygen.",
}

func TestInitialize_MissingCredential(t *testing.T) {
	p := pipeline.NewWithConfig(pipeline.Config{Loader: loader.LoaderConfig{Path: t.TempDir()}}, pipeline.Providers{})

	err := p.Initialize(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrMissingCredential)
	assert.Equal(t, pipeline.StateUninitialized, p.State())
	assert.False(t, p.Ready())

	_, err = p.Answer(context.Background(), "What is 2+2?")
	assert.ErrorIs(t, err, pipeline.ErrNotInitialized)
	_, err = p.Chat(context.Background(), "Hi", "s1")
	assert.ErrorIs(t, err, pipeline.ErrNotInitialized)
	_, err = p.History("s1")
	assert.ErrorIs(t, err, pipeline.ErrNotInitialized)
	assert.ErrorIs(t, p.Reset(""), pipeline.ErrNotInitialized)
}

func TestAnswer_EmptyCorpus(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "documents")
	model := &llmtest.Model{Answer: "Four."}
	emb := &llmtest.Embedder{}
	p := newPipeline(t, dir, model, emb)

	assert.Equal(t, pipeline.StateReadyNoDocs, p.State())
	assert.DirExists(t, dir)

	answer, err := p.Answer(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "Four.", answer.Text)
	assert.Equal(t, emotion.Thinking, answer.Emotion)
	assert.Zero(t, answer.Sources)
	assert.Equal(t, pipeline.ModeUngrounded, answer.Mode)
	assert.Equal(t, "no documents indexed", answer.FallbackReason)

	prompt := llmtest.Text(model.Calls()[0][0])
	assert.NotContains(t, prompt, "Context:")
	assert.Zero(t, emb.Calls())
}

func TestAnswer_Grounded(t *testing.T) {
	model := &llmtest.Model{Answer: "Masses attract each other."}
	p := newPipeline(t, corpus(t, scienceNotes), model, &llmtest.Embedder{})
	assert.Equal(t, pipeline.StateReadyWithDocs, p.State())

	answer, err := p.Answer(context.Background(), "How does gravity work?")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeGrounded, answer.Mode)
	assert.Equal(t, 2, answer.Sources)
	assert.Empty(t, answer.FallbackReason)
	assert.Equal(t, emotion.Thinking, answer.Emotion)

	prompt := llmtest.Text(model.Calls()[0][0])
	assert.Contains(t, prompt, "Context: ")
	assert.Contains(t, prompt, "inverse square law")
}

func TestInitialize_EmbeddingFailureFallsBackToNoDocs(t *testing.T) {
	emb := &llmtest.Embedder{Err: errors.New("quota exceeded")}
	model := &llmtest.Model{Answer: "Hello!"}
	p := newPipeline(t, corpus(t, scienceNotes), model, emb)

	assert.Equal(t, pipeline.StateReadyNoDocs, p.State())

	answer, err := p.Answer(context.Background(), "Tell me about plants")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeUngrounded, answer.Mode)
	assert.Zero(t, answer.Sources)
}

func TestAnswer_RetrievalFailureAnswersUngrounded(t *testing.T) {
	// Indexing succeeds, the query embedding fails.
	emb := &llmtest.Embedder{Err: errors.New("embedding service down"), FailAfter: 1}
	model := &llmtest.Model{Answer: "Here is what I know."}
	p := newPipeline(t, corpus(t, scienceNotes), model, emb)
	require.Equal(t, pipeline.StateReadyWithDocs, p.State())

	answer, err := p.Answer(context.Background(), "Tell me about plants")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeUngrounded, answer.Mode)
	assert.Contains(t, answer.FallbackReason, "embedding service down")
	assert.Zero(t, answer.Sources)
}

func TestAnswer_ProviderErrorIsSoft(t *testing.T) {
	model := &llmtest.Model{Err: errors.New("API key not valid")}
	p := newPipeline(t, t.TempDir(), model, &llmtest.Embedder{})

	answer, err := p.Answer(context.Background(), "Tell me a joke")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeProviderError, answer.Mode)
	assert.Equal(t, emotion.Confused, answer.Emotion)
	assert.Zero(t, answer.Sources)
	assert.True(t, strings.HasPrefix(answer.Text, "I encountered an error: "), answer.Text)
	assert.Contains(t, answer.Text, "API key not valid")
	assert.True(t, strings.HasSuffix(answer.Text, "Make sure your API key is valid."), answer.Text)
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	p := newPipeline(t, t.TempDir(), &llmtest.Model{Answer: "x"}, &llmtest.Embedder{})
	_, err := p.Answer(context.Background(), "  ")
	assert.ErrorIs(t, err, pipeline.ErrEmptyQuestion)
}

func TestInitialize_RunsOnce(t *testing.T) {
	emb := &llmtest.Embedder{}
	p := pipeline.NewWithConfig(pipeline.Config{
		Loader: loader.LoaderConfig{Path: corpus(t, scienceNotes)},
	}, newProviders(t, &llmtest.Model{Answer: "ok"}, emb))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, emb.Calls())
	assert.Equal(t, pipeline.StateReadyWithDocs, p.State())
}

func TestChat_History(t *testing.T) {
	model := &llmtest.Model{Reply: func(prompt string) string { return "Noted." }}
	p := newPipeline(t, t.TempDir(), model, &llmtest.Embedder{})
	ctx := context.Background()

	for _, msg := range []string{"Hi", "My name is Sam", "What is my name?"} {
		_, err := p.Chat(ctx, msg, "s1")
		require.NoError(t, err)
	}

	turns, err := p.History("s1")
	require.NoError(t, err)
	require.Len(t, turns, 6)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, "Hi", turns[0].Content)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Noted.", turns[1].Content)

	// The third call carried the first two exchanges before the prompt.
	calls := model.Calls()
	require.Len(t, calls, 3)
	assert.Len(t, calls[2], 5)
	assert.Equal(t, "My name is Sam", llmtest.Text(calls[2][2]))

	other, err := p.History("s2")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, p.Reset("s1"))
	turns, err = p.History("s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestChat_RecordsExchangeWhenSessionDroppedMidAnswer(t *testing.T) {
	var p *pipeline.Pipeline
	model := &llmtest.Model{Reply: func(prompt string) string {
		require.NoError(t, p.Reset(""))
		return "Still here."
	}}
	p = newPipeline(t, t.TempDir(), model, &llmtest.Embedder{})

	_, err := p.Chat(context.Background(), "Are you there?", "s1")
	require.NoError(t, err)

	turns, err := p.History("s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "Are you there?", turns[0].Content)
	assert.Equal(t, "Still here.", turns[1].Content)
}

func TestChat_HistoryIsBounded(t *testing.T) {
	p := newPipeline(t, t.TempDir(), &llmtest.Model{Answer: "ok"}, &llmtest.Embedder{})
	for i := 0; i < 8; i++ {
		_, err := p.Chat(context.Background(), "again", "")
		require.NoError(t, err)
	}

	turns, err := p.History("default")
	require.NoError(t, err)
	assert.Len(t, turns, 10)
}

func TestReset_AllSessions(t *testing.T) {
	p := newPipeline(t, t.TempDir(), &llmtest.Model{Answer: "ok"}, &llmtest.Embedder{})
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := p.Chat(ctx, "hello", id)
		require.NoError(t, err)
	}

	require.NoError(t, p.Reset(""))
	for _, id := range []string{"a", "b"} {
		turns, err := p.History(id)
		require.NoError(t, err)
		assert.Empty(t, turns)
	}
}

func TestChat_ProviderErrorIsRecorded(t *testing.T) {
	model := &llmtest.Model{Err: errors.New("quota")}
	p := newPipeline(t, t.TempDir(), model, &llmtest.Embedder{})

	answer, err := p.Chat(context.Background(), "Hi", "s")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeProviderError, answer.Mode)

	turns, err := p.History("s")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, answer.Text, turns[1].Content)
}

func TestAnswer_Stream(t *testing.T) {
	p := newPipeline(t, t.TempDir(), &llmtest.Model{Answer: "Streaming works fine."}, &llmtest.Embedder{})

	var chunks []string
	answer, err := p.Answer(context.Background(), "Say something", llm.WithStreamHandler(func(ctx context.Context, chunk []byte) error {
		chunks = append(chunks, string(chunk))
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, answer.Text, strings.Join(chunks, ""))
	assert.Greater(t, len(chunks), 1)
}
