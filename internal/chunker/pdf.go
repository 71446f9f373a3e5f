package chunker

import "fmt"

// Pages chunks extracted PDF text page by page with the plain word window.
func (c *Chunker) Pages(fileName string, pages []string) []Chunk {
	sections := make([]section, 0, len(pages))
	for i, text := range pages {
		page := i + 1
		sections = append(sections, section{
			title: fmt.Sprintf("Page %d", page),
			text:  text,
			meta: func(base BaseMetadata) Metadata {
				return PDFMetadata{BaseMetadata: base, Page: page}
			},
		})
	}
	return c.assemble(fileName, TypePDF, sections)
}
