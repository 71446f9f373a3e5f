package chunker

import (
	"regexp"
	"strings"
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

type markdownSection struct {
	title string
	level int
	body  strings.Builder
}

// Markdown splits at ATX headings outside fenced code blocks. The heading line
// stays in its section so the chunk text keeps its own label.
func (c *Chunker) Markdown(fileName, text string) []Chunk {
	var sections []section
	current := &markdownSection{title: introductionTitle}
	inFence := false

	flush := func() {
		body := current.body.String()
		if strings.TrimSpace(body) == "" {
			return
		}
		level := current.level
		sections = append(sections, section{
			title: current.title,
			text:  body,
			meta: func(base BaseMetadata) Metadata {
				return MarkdownMetadata{BaseMetadata: base, HeadingLevel: level}
			},
		})
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence {
			if m := headingPattern.FindStringSubmatch(line); m != nil {
				flush()
				current = &markdownSection{title: strings.TrimSpace(m[2]), level: len(m[1])}
			}
		}
		current.body.WriteString(line)
		current.body.WriteByte('\n')
	}
	flush()

	chunks := c.assemble(fileName, TypeMarkdown, sections)
	return c.ensureNonEmpty(chunks, fileName, TypeMarkdown, text, func(base BaseMetadata) Metadata {
		return MarkdownMetadata{BaseMetadata: base}
	})
}
