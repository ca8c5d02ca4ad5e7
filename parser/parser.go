package parser

import "context"

// ParseResult is what a parser produces from a single document.
type ParseResult struct {
	Text  string // extracted plain text
	Type  string // "pdf", "docx", "pptx", "xlsx", "text", "webpage"
	Title string // display title, when the format carries one
}

// Parser extracts plain text from a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
