package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/skim/internal/types"
)

// Metadata is the content of a book's metadata.json.
type Metadata struct {
	Title        string        `json:"title"`
	FileType     string        `json:"file_type"`
	ChapterCount int           `json:"chapter_count"`
	UploadedAt   time.Time     `json:"uploaded_at,omitzero"`
	Chapters     []ChapterMeta `json:"chapters"`
}

// ChapterMeta describes one chapter inside metadata.json.
type ChapterMeta struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Length       int    `json:"length"`
	IsNonChapter bool   `json:"isNonChapter"`
}

// ID returns the chapter id ("chapter-N").
func (c ChapterMeta) ID() types.ChapterID {
	return types.NewChapterID(c.Number)
}

// Chapter returns the chapter with the given number.
func (m *Metadata) Chapter(n int) (ChapterMeta, bool) {
	for _, ch := range m.Chapters {
		if ch.Number == n {
			return ch, true
		}
	}
	return ChapterMeta{}, false
}

// ChapterTitle returns the display title of a chapter, falling back to its id.
func (m *Metadata) ChapterTitle(id types.ChapterID) string {
	if m != nil {
		if ch, ok := m.Chapter(id.Number()); ok && ch.Title != "" {
			return ch.Title
		}
	}
	return string(id)
}

const metadataSchemaJSON = `{
  "type": "object",
  "required": ["title", "chapters"],
  "properties": {
    "title": {"type": "string"},
    "file_type": {"type": "string"},
    "chapter_count": {"type": "integer", "minimum": 0},
    "uploaded_at": {"type": "string"},
    "chapters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["number", "title"],
        "properties": {
          "number": {"type": "integer", "minimum": 1},
          "title": {"type": "string"},
          "length": {"type": "integer", "minimum": 0},
          "isNonChapter": {"type": "boolean"}
        }
      }
    }
  }
}`

var metadataSchema = jsonschema.MustCompileString("metadata.schema.json", metadataSchemaJSON)

// decodeMetadata validates raw metadata.json bytes against the schema and decodes them.
func decodeMetadata(data []byte) (*Metadata, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	if err := metadataSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("metadata does not match schema: %w", err)
	}

	var meta Metadata
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if meta.ChapterCount == 0 {
		meta.ChapterCount = len(meta.Chapters)
	}
	return &meta, nil
}

func encodeMetadata(meta *Metadata) ([]byte, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return append(data, '\n'), nil
}
