package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/xhad/tutor/pkg/emotion"
	"github.com/xhad/tutor/pkg/pipeline"
	"github.com/xhad/tutor/pkg/speech"
)

const notReadyDetail = "Tutor pipeline not initialized. Check the provider API key and documents folder."

type Config struct {
	CORSOrigins    []string
	MaxUploadBytes int64
	Version        string
}

// Server exposes the tutor over HTTP and WebSocket.
type Server struct {
	config      Config
	pipeline    *pipeline.Pipeline
	transcriber *speech.Transcriber
	synthesizer *speech.Synthesizer
	upgrader    websocket.Upgrader
	cors        *cors.Cors
}

// New builds a Server. transcriber and synthesizer may be nil when speech is
// not configured.
func New(config Config, p *pipeline.Pipeline, transcriber *speech.Transcriber, synthesizer *speech.Synthesizer) *Server {
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = []string{"*"}
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 25 << 20
	}
	if config.Version == "" {
		config.Version = "1.0.0"
	}

	s := &Server{
		config:      config,
		pipeline:    p,
		transcriber: transcriber,
		synthesizer: synthesizer,
		cors: cors.New(cors.Options{
			AllowedOrigins: config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return r.Header.Get("Origin") == "" || s.cors.OriginAllowed(r)
		},
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /speak", s.handleSpeak)
	mux.HandleFunc("GET /emotions", s.handleEmotions)
	mux.HandleFunc("DELETE /reset", s.handleReset)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return s.recoverer(s.cors.Handler(mux))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "AI Tutor API is running!",
		"status":  "online",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"query":      "POST /query - Single question",
			"chat":       "POST /chat - Multi-turn conversation",
			"history":    "GET /history - Conversation turns for a session",
			"transcribe": "POST /transcribe - Speech to text",
			"speak":      "POST /speak - Text to speech",
			"emotions":   "GET /emotions - Available emotion states",
			"reset":      "DELETE /reset - Clear conversation history",
			"ws":         "GET /ws - Streaming chat over WebSocket",
			"health":     "GET /health - Health check",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"pipeline_ready": s.pipeline.Ready(),
		"mode":           s.pipeline.State().String(),
		"provider":       s.pipeline.Provider(),
	})
}

type queryRequest struct {
	Question string `json:"question"`
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	answer, err := s.pipeline.Answer(r.Context(), req.Question)
	if err != nil {
		s.pipelineError(w, "Error processing query", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	answer, err := s.pipeline.Chat(r.Context(), req.Message, req.SessionID)
	if err != nil {
		s.pipelineError(w, "Error processing chat", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		id = "default"
	}

	turns, err := s.pipeline.History(id)
	if err != nil {
		s.pipelineError(w, "Error reading history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"turns":      turns,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if err := s.pipeline.Reset(id); err != nil {
		s.pipelineError(w, "Error resetting conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Conversation reset successfully",
	})
}

func (s *Server) handleEmotions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"emotions": emotion.Labels(),
	})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audio file")
		return
	}
	defer file.Close()

	if s.transcriber == nil {
		writeJSON(w, http.StatusOK, speech.Result{Error: "Speech transcription is not configured"})
		return
	}

	writeJSON(w, http.StatusOK, s.transcriber.Transcribe(r.Context(), header.Filename, file))
}

type speakRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if s.synthesizer == nil {
		writeError(w, http.StatusServiceUnavailable, "Text to speech is not configured")
		return
	}

	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	audio, err := s.synthesizer.Synthesize(r.Context(), req.Text)
	if err != nil {
		log.Printf("Error synthesizing speech: %v", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"audio_base64": base64.StdEncoding.EncodeToString(audio),
	})
}

func (s *Server) pipelineError(w http.ResponseWriter, prefix string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, notReadyDetail)
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("%s: %v", prefix, err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", prefix, err))
	}
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.Printf("Panic serving %s %s: %v", r.Method, r.URL.Path, v)
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("Internal server error: %v", v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
