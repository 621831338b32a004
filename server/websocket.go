package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/pipeline"
)

// Message is the frame exchanged over /ws.
type Message struct {
	Type      string      `json:"type"`
	Content   string      `json:"content"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Clients that don't name a session get one per connection.
	connSession := uuid.NewString()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Error reading message: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(conn, Message{Type: "error", Content: "Invalid message: " + err.Error()})
			continue
		}
		if msg.SessionID == "" {
			msg.SessionID = connSession
		}

		// Messages are handled in order so a session's turns stay in sequence
		// and writes to conn never overlap.
		s.handleMessage(r.Context(), conn, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	switch msg.Type {
	case "ping":
		s.sendMessage(conn, Message{Type: "pong", SessionID: msg.SessionID})
		return
	case "chat", "":
	default:
		s.sendMessage(conn, Message{Type: "error", Content: "Unknown message type: " + msg.Type, SessionID: msg.SessionID})
		return
	}

	stream := llm.WithStreamHandler(func(ctx context.Context, chunk []byte) error {
		return conn.WriteJSON(Message{Type: "stream", Content: string(chunk), SessionID: msg.SessionID})
	})

	answer, err := s.pipeline.Chat(ctx, msg.Content, msg.SessionID, stream)
	if err != nil {
		detail := err.Error()
		if errors.Is(err, pipeline.ErrNotInitialized) {
			detail = notReadyDetail
		}
		s.sendMessage(conn, Message{Type: "error", Content: detail, SessionID: msg.SessionID})
		return
	}

	s.sendMessage(conn, Message{
		Type:      "response",
		Content:   answer.Text,
		SessionID: msg.SessionID,
		Data: map[string]any{
			"emotion": answer.Emotion,
			"sources": answer.Sources,
			"mode":    answer.Mode,
		},
	})
}

func (s *Server) sendMessage(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}
