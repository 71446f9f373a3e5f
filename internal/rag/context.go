package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxContextTokens = 8000
	avgCharsPerToken        = 4
	chunkSeparator          = "\n\n"

	NoDocumentationFound = "No relevant documentation found."
)

type FormatStyle string

const (
	StyleSimple   FormatStyle = "simple"
	StyleCompact  FormatStyle = "compact"
	StyleDetailed FormatStyle = "detailed"
)

type ContextOptions struct {
	MaxTokens int
	Style     FormatStyle
}

type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EstimateTokens approximates tokens as one per four characters, rounded up.
func EstimateTokens(text string) int {
	return tokensForRunes(utf8.RuneCountInString(text))
}

func tokensForRunes(n int) int {
	return (n + avgCharsPerToken - 1) / avgCharsPerToken
}

// BuildContext packs whole formatted results, best first, until the next one
// would push the assembled text over the token budget.
func BuildContext(results []SearchResult, opts ContextOptions) string {
	if len(results) == 0 {
		return NoDocumentationFound
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	style := opts.Style
	if style == "" {
		style = StyleDetailed
	}

	var b strings.Builder
	runes := 0
	included := 0
	for _, r := range results {
		formatted := formatResult(r, included+1, style)
		next := runes + utf8.RuneCountInString(formatted)
		if included > 0 {
			next += len(chunkSeparator)
		}
		if tokensForRunes(next) > maxTokens {
			break
		}
		if included > 0 {
			b.WriteString(chunkSeparator)
		}
		b.WriteString(formatted)
		runes = next
		included++
	}
	return b.String()
}

// BuildContextWithHistory gives the chunk context 70% of the budget, then
// counts how many of the most recent history turns fit in what remains.
func BuildContextWithHistory(results []SearchResult, history []HistoryTurn, opts ContextOptions) (string, int) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	contextOpts := opts
	contextOpts.MaxTokens = maxTokens * 7 / 10
	text := BuildContext(results, contextOpts)

	remaining := maxTokens - EstimateTokens(text)
	used := 0
	count := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Content)
		if used+cost > remaining {
			break
		}
		used += cost
		count++
	}
	return text, count
}

// SourcesSummary lists each originating file once, in first-seen order.
func SourcesSummary(results []SearchResult) string {
	var order []string
	counts := make(map[string]int)
	for _, r := range results {
		name := r.FileName
		if name == "" {
			name = "Unknown"
		}
		if _, ok := counts[name]; !ok {
			order = append(order, name)
		}
		counts[name]++
	}

	var b strings.Builder
	b.WriteString("Available documentation:")
	for _, name := range order {
		plural := ""
		if counts[name] > 1 {
			plural = "s"
		}
		fmt.Fprintf(&b, "\n- %s (%d section%s)", name, counts[name], plural)
	}
	return b.String()
}

func formatResult(r SearchResult, position int, style FormatStyle) string {
	switch style {
	case StyleSimple:
		return r.Chunk.Content
	case StyleCompact:
		return fmt.Sprintf("[%d] %s", position, r.Chunk.Content)
	}

	source := r.FileName
	if source == "" {
		source = r.DocumentTitle
	}
	if source == "" {
		source = "Unknown"
	}
	label := source
	if r.Chunk.SectionTitle != "" {
		label += " - " + r.Chunk.SectionTitle
	}
	relevance := ""
	if r.Similarity > 0 {
		relevance = fmt.Sprintf(" (relevance: %.0f%%)", r.Similarity*100)
	}
	return fmt.Sprintf("[%s]%s\n\n%s\n\n---", label, relevance, r.Chunk.Content)
}
