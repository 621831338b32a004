package models

import "time"

// Document is one page or file of ingested content. It is discarded once chunked.
type Document struct {
	ID       string
	SourceID string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// Chunk is a window of a Document's content. Offset counts runes from the
// start of the Document content.
type Chunk struct {
	ID       string
	SourceID string
	Offset   int
	Text     string
	Metadata map[string]interface{}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversation message.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
