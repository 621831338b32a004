// Package speech wraps the hosted speech-to-text and text-to-speech APIs.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNotConfigured is returned when no speech API key is available.
var ErrNotConfigured = errors.New("speech service is not configured")

const (
	unrecognisedMessage = "Could not understand audio. Please speak clearly."
	serviceErrorPrefix  = "Speech recognition service error: "
)

// Result is the outcome of a transcription. Provider failures are reported
// here rather than as errors.
type Result struct {
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

type TranscriberConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

type Transcriber struct {
	config TranscriberConfig
	client *openai.Client
}

func NewTranscriber(config TranscriberConfig) (*Transcriber, error) {
	if config.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	if config.Language == "" {
		config.Language = "en"
	}

	return &Transcriber{
		config: config,
		client: newClient(config.APIKey, config.BaseURL),
	}, nil
}

// Transcribe converts the audio in r to text. filename is passed to the API
// so it can infer the audio format.
func (t *Transcriber) Transcribe(ctx context.Context, filename string, r io.Reader) Result {
	if filename == "" {
		filename = "audio.wav"
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.config.Model,
		FilePath: filename,
		Reader:   r,
		Language: t.config.Language,
	})
	if err != nil {
		return Result{Error: serviceErrorPrefix + err.Error()}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{Error: unrecognisedMessage}
	}
	return Result{Success: true, Text: text}
}

type SynthesizerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

type Synthesizer struct {
	config SynthesizerConfig
	client *openai.Client
}

func NewSynthesizer(config SynthesizerConfig) (*Synthesizer, error) {
	if config.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if config.Model == "" {
		config.Model = string(openai.TTSModel1)
	}
	if config.Voice == "" {
		config.Voice = string(openai.VoiceNova)
	}

	return &Synthesizer{
		config: config,
		client: newClient(config.APIKey, config.BaseURL),
	}, nil
}

// Synthesize returns MP3 audio for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is required")
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.config.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.config.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}
	return audio, nil
}

func newClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}
