package processor

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xhad/tutor/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	// NoOverlap asks for adjacent windows that share nothing.
	NoOverlap = -1
)

// Boundaries the window end prefers, strongest first.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune(" "),
}

// chunkNamespace seeds the deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c1c1e-4a7e-4d55-9a1e-2f3b8c9d0e11")

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// MinFill is the shortest window a boundary cut may leave. Defaults to half
	// of ChunkSize.
	MinFill int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	switch {
	case config.ChunkOverlap == 0:
		config.ChunkOverlap = DefaultChunkOverlap
	case config.ChunkOverlap < 0:
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 4
	}
	if config.MinFill <= 0 || config.MinFill > config.ChunkSize {
		config.MinFill = config.ChunkSize / 2
	}

	return Processor{
		config: config,
	}
}

func (p *Processor) Config() ProcessorConfig {
	return p.config
}

// Process splits every document into overlapping windows. Documents with no
// visible text produce no chunks.
func (p *Processor) Process(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk

	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}

		for _, w := range p.split([]rune(doc.Content)) {
			chunks = append(chunks, models.Chunk{
				ID:       chunkID(doc, w.offset),
				SourceID: doc.SourceID,
				Offset:   w.offset,
				Text:     w.text,
				Metadata: copyMetadata(doc.Metadata),
			})
		}
	}

	return chunks
}

type window struct {
	offset int
	text   string
}

func (p *Processor) split(text []rune) []window {
	var windows []window
	size, overlap := p.config.ChunkSize, p.config.ChunkOverlap

	start := 0
	for {
		if len(text)-start <= size {
			windows = append(windows, window{offset: start, text: string(text[start:])})
			return windows
		}

		end := p.cut(text, start)
		windows = append(windows, window{offset: start, text: string(text[start:end])})

		// Each new window repeats exactly the last overlap runes of the previous one
		start = end - overlap
	}
}

// cut returns the end of the window that starts at start. The result is always
// greater than start+overlap so the next window moves forward.
func (p *Processor) cut(text []rune, start int) int {
	hardEnd := start + p.config.ChunkSize
	lowest := start + p.config.MinFill
	if floor := start + p.config.ChunkOverlap + 1; floor > lowest {
		lowest = floor
	}

	for _, sep := range separators {
		if end := lastBoundary(text, sep, lowest, hardEnd); end > 0 {
			return end
		}
	}

	return hardEnd
}

// lastBoundary finds the latest position in [lowest, hardEnd] that directly
// follows sep, or -1.
func lastBoundary(text, sep []rune, lowest, hardEnd int) int {
	for end := hardEnd; end >= lowest; end-- {
		if end < len(sep) {
			break
		}
		if hasSuffixAt(text, sep, end) {
			return end
		}
	}
	return -1
}

func hasSuffixAt(text, sep []rune, end int) bool {
	for i := range sep {
		if text[end-len(sep)+i] != sep[i] {
			return false
		}
	}
	return true
}

func chunkID(doc models.Document, offset int) string {
	key := fmt.Sprintf("%s#%s@%d", doc.SourceID, doc.ID, offset)
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

func copyMetadata(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
