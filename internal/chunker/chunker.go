// Package chunker splits uploaded documentation into ordered, bounded text
// units with provenance metadata.
package chunker

import "strings"

const (
	DefaultMaxWords     = 500
	DefaultOverlapWords = 50

	introductionTitle = "Introduction"
	rawSectionTitle   = "raw"
)

type ChunkType string

const (
	TypeMarkdown ChunkType = "markdown"
	TypeOpenAPI  ChunkType = "openapi"
	TypePDF      ChunkType = "pdf"
)

// Chunk is one retrievable unit. Index is the position within the document.
type Chunk struct {
	Content      string
	SectionTitle string
	Index        int
	Metadata     Metadata
}

// Metadata is implemented by the per-format metadata variants in this package.
type Metadata interface {
	Common() BaseMetadata
	sealed()
}

type BaseMetadata struct {
	FileName      string    `json:"fileName"`
	Section       string    `json:"section"`
	Type          ChunkType `json:"type"`
	SequenceIndex int       `json:"sequenceIndex"`
	SubIndex      int       `json:"subIndex"`
}

func (b BaseMetadata) Common() BaseMetadata { return b }
func (BaseMetadata) sealed()                {}

type MarkdownMetadata struct {
	BaseMetadata
	HeadingLevel int `json:"headingLevel,omitempty"`
}

type OpenAPIFamily string

const (
	FamilyInfo      OpenAPIFamily = "info"
	FamilyOperation OpenAPIFamily = "operation"
	FamilySchema    OpenAPIFamily = "schema"
	FamilyRaw       OpenAPIFamily = "raw"
)

type OpenAPIMetadata struct {
	BaseMetadata
	Family     OpenAPIFamily `json:"family"`
	Method     string        `json:"method,omitempty"`
	Path       string        `json:"endpoint,omitempty"`
	SchemaName string        `json:"schemaName,omitempty"`
	ParseError bool          `json:"parseError,omitempty"`
}

type PDFMetadata struct {
	BaseMetadata
	Page int `json:"page"`
}

type Options struct {
	MaxWords     int
	OverlapWords int
}

type Chunker struct {
	maxWords     int
	overlapWords int
}

func New(opts Options) *Chunker {
	if opts.MaxWords <= 0 {
		opts.MaxWords = DefaultMaxWords
	}
	if opts.OverlapWords < 0 || opts.OverlapWords >= opts.MaxWords {
		opts.OverlapWords = 0
	}
	return &Chunker{maxWords: opts.MaxWords, overlapWords: opts.OverlapWords}
}

// Split dispatches on type. PDF input must go through Pages instead.
func (c *Chunker) Split(kind ChunkType, fileName, text string) []Chunk {
	switch kind {
	case TypeOpenAPI:
		return c.OpenAPI(fileName, text)
	default:
		return c.Markdown(fileName, text)
	}
}

// section is a titled span of text awaiting word-window splitting. meta
// receives the finished base metadata so each format can attach its own fields.
type section struct {
	title string
	text  string
	meta  func(BaseMetadata) Metadata
}

func (c *Chunker) assemble(fileName string, kind ChunkType, sections []section) []Chunk {
	var out []Chunk
	for _, s := range sections {
		for sub, window := range SplitWords(s.text, c.maxWords, c.overlapWords) {
			base := BaseMetadata{
				FileName:      fileName,
				Section:       s.title,
				Type:          kind,
				SequenceIndex: len(out),
				SubIndex:      sub,
			}
			out = append(out, Chunk{
				Content:      window,
				SectionTitle: s.title,
				Index:        len(out),
				Metadata:     s.meta(base),
			})
		}
	}
	return out
}

// ensureNonEmpty guarantees a non-blank document never yields zero chunks.
func (c *Chunker) ensureNonEmpty(chunks []Chunk, fileName string, kind ChunkType, text string, meta func(BaseMetadata) Metadata) []Chunk {
	if len(chunks) > 0 || strings.TrimSpace(text) == "" {
		return chunks
	}
	return c.assemble(fileName, kind, []section{{title: rawSectionTitle, text: text, meta: meta}})
}
