package parser

import (
	"context"
	"fmt"
	"os"
)

// TextParser handles formats that are already plain text (.txt, .md,
// .markdown, .csv). Bytes are read as UTF-8 without any transformation.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string {
	return []string{"txt", "md", "markdown", "csv"}
}

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	return &ParseResult{
		Text: string(data),
		Type: "text",
	}, nil
}
