package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/xhad/tutor/internal/models"
)

// ErrEmptyCompletion is returned when the provider answers with no text.
var ErrEmptyCompletion = errors.New("no response from LLM")

const defaultUngroundedTemplate = `You are a friendly and helpful AI tutor. Answer the student's question in a clear, structured, and engaging way.

Use this format for your answers:
- Start with a direct answer to the question
- Use bullet points (•) for lists and key points
- Use clear paragraphs for explanations
- Include relevant examples when helpful
- Keep your tone warm and encouraging
- Use emojis sparingly and appropriately

Question: {{.question}}

Helpful Answer:`

const defaultGroundedTemplate = `You are a friendly and helpful AI tutor. Use the following context from the documents to answer the student's question.
If the context doesn't contain the answer, use your general knowledge. Always be encouraging and supportive.

Context: {{.context}}

Question: {{.question}}

Helpful Answer:`

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Temperature        float64
	MaxTokens          int
	GroundedTemplate   string // Go template with .context and .question
	UngroundedTemplate string // Go template with .question
	Guard              *Guard
}

// ChatEngine composes tutor prompts and sends them to the language model.
type ChatEngine struct {
	config     ChatConfig
	llm        llms.Model
	grounded   prompts.PromptTemplate
	ungrounded prompts.PromptTemplate
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if model == nil {
		return nil, errors.New("language model is required")
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.GroundedTemplate == "" {
		config.GroundedTemplate = defaultGroundedTemplate
	}
	if config.UngroundedTemplate == "" {
		config.UngroundedTemplate = defaultUngroundedTemplate
	}
	if config.Guard == nil {
		config.Guard = NewGuard(GuardConfig{})
	}

	return &ChatEngine{
		config:     config,
		llm:        model,
		grounded:   prompts.NewPromptTemplate(config.GroundedTemplate, []string{"context", "question"}),
		ungrounded: prompts.NewPromptTemplate(config.UngroundedTemplate, []string{"question"}),
	}, nil
}

type composeOptions struct {
	stream func(ctx context.Context, chunk []byte) error
}

// ComposeOption customises a single Compose call.
type ComposeOption func(*composeOptions)

// WithStreamHandler delivers the completion chunk by chunk as it is generated.
func WithStreamHandler(fn func(ctx context.Context, chunk []byte) error) ComposeOption {
	return func(o *composeOptions) {
		o.stream = fn
	}
}

// Prompt renders the grounded template when contexts are present and the
// ungrounded one otherwise.
func (ce *ChatEngine) Prompt(question string, contexts []string) (string, error) {
	if len(contexts) == 0 {
		return ce.ungrounded.Format(map[string]any{"question": question})
	}
	return ce.grounded.Format(map[string]any{
		"context":  strings.Join(contexts, "\n\n"),
		"question": question,
	})
}

// Compose asks the model to answer question. Earlier turns of the
// conversation precede the prompt so follow-up questions keep their context.
func (ce *ChatEngine) Compose(ctx context.Context, question string, contexts []string, history []models.Turn, opts ...ComposeOption) (string, error) {
	var o composeOptions
	for _, opt := range opts {
		opt(&o)
	}

	prompt, err := ce.Prompt(question, contexts)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}

	content := make([]llms.MessageContent, 0, len(history)+1)
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, turn.Content))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	callOpts := []llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}

	var response *llms.ContentResponse
	call := func(ctx context.Context) error {
		var err error
		response, err = ce.llm.GenerateContent(ctx, content, callOpts...)
		if err != nil {
			return err
		}
		if response == nil || len(response.Choices) == 0 || strings.TrimSpace(response.Choices[0].Content) == "" {
			return ErrEmptyCompletion
		}
		return nil
	}

	if o.stream != nil {
		callOpts = append(callOpts, llms.WithStreamingFunc(o.stream))
		err = ce.config.Guard.Once(ctx, call)
	} else {
		err = ce.config.Guard.Do(ctx, call)
	}
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}
