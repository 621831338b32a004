package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/tutor/internal/llmtest"
	"github.com/xhad/tutor/pkg/config"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/loader"
	"github.com/xhad/tutor/pkg/pipeline"
	"github.com/xhad/tutor/pkg/store"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd("1.2.3")
	assert.Equal(t, "tutor", cmd.Use)
	assert.Equal(t, "1.2.3", cmd.Version)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "chat", "index"}, names)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: nope\n"), 0o644))
	t.Setenv("TUTOR_LLM_PROVIDER", "")

	_, err := loadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
}

func TestPipelineConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("documents:\n  path: ./notes\nindex:\n  top_k: 5\n"), 0o644))
	t.Setenv("DOCUMENTS_PATH", "")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	pc := pipelineConfig(cfg, nil)
	assert.Equal(t, "./notes", pc.Loader.Path)
	assert.Equal(t, 5, pc.TopK)
	assert.Equal(t, cfg.Processor.ChunkSize, pc.Processor.ChunkSize)

	idx, err := pc.NewIndex(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryIndex{}, idx)
}

func TestChatLoop(t *testing.T) {
	chat, err := llm.NewWithConfig(&llmtest.Model{Answer: "Two plus two is four."}, llm.ChatConfig{})
	require.NoError(t, err)
	p := pipeline.NewWithConfig(pipeline.Config{Loader: loader.LoaderConfig{Path: t.TempDir()}},
		pipeline.Providers{Chat: chat, Embedder: &llmtest.Embedder{}})
	require.NoError(t, p.Initialize(context.Background()))

	in := strings.NewReader("What is 2+2?\n\nreset\nexit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), p, in, &out, true))

	assert.Contains(t, out.String(), "Two plus two is four.")
	assert.Contains(t, out.String(), "thinking")
	assert.Contains(t, out.String(), "Conversation reset")
	assert.NotContains(t, out.String(), "ignored")

	turns, err := p.History(cliSession)
	require.NoError(t, err)
	assert.Empty(t, turns)
}
