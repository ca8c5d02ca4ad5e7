// Package chunker splits extracted document text into overlapping,
// sentence-boundary-respecting chunks of bounded character size.
package chunker

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/avelis/ragchat/index"
)

// Config controls the chunking behaviour.
type Config struct {
	Size    int // Maximum characters per chunk.
	Overlap int // Approximate characters of overlap between consecutive chunks.
}

// Chunker converts extracted text into index-ready chunks (without
// embeddings or keyword bags, which are attached downstream).
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.Size == 0 {
		cfg.Size = 800
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = 200
	}
	if cfg.Overlap >= cfg.Size {
		cfg.Overlap = cfg.Size / 4
	}
	return &Chunker{cfg: cfg}
}

var multiNewline = regexp.MustCompile(`\n{3,}`)

// Chunk splits text into ordered chunks. Sentences are accumulated greedily;
// when the next sentence would push the buffer past the size limit, the
// buffer is emitted and the following buffer is seeded with the trailing
// words of the emitted chunk so consecutive chunks share context. A single
// sentence longer than the limit becomes one oversize chunk rather than
// being cut mid-sentence. Empty input yields no chunks.
func (c *Chunker) Chunk(text string, meta index.ChunkMetadata) []index.Chunk {
	text = normalize(text)
	sentences := splitSentences(text)

	var chunks []index.Chunk
	emit := func(content string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		i := len(chunks)
		m := meta
		m.ChunkIndex = i
		// Advisory offsets: the cursor positions assuming nominal stride.
		m.CharStart = i * (c.cfg.Size - c.cfg.Overlap)
		m.CharEnd = m.CharStart + len(content)
		chunks = append(chunks, index.Chunk{
			ID:       fmt.Sprintf("%s-chunk-%d", meta.Source, i),
			Content:  content,
			Metadata: m,
		})
	}

	var buf strings.Builder
	for _, sent := range sentences {
		if buf.Len() > 0 && buf.Len()+1+len(sent) > c.cfg.Size {
			emitted := buf.String()
			emit(emitted)
			buf.Reset()
			if tail := c.overlapTail(emitted); tail != "" {
				buf.WriteString(tail)
			}
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(sent)
	}
	emit(buf.String())

	return chunks
}

// overlapTail returns the trailing words of an emitted chunk that seed the
// next buffer. The word count approximates the configured character overlap:
// ceil(overlap/size * words).
func (c *Chunker) overlapTail(content string) string {
	words := strings.Fields(content)
	if len(words) == 0 || c.cfg.Overlap <= 0 {
		return ""
	}
	n := int(math.Ceil(float64(c.cfg.Overlap) / float64(c.cfg.Size) * float64(len(words))))
	if n > len(words) {
		n = len(words)
	}
	if n == 0 {
		return ""
	}
	return strings.Join(words[len(words)-n:], " ")
}

// normalize converts Windows line endings and collapses runs of three or
// more newlines down to a paragraph break.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return multiNewline.ReplaceAllString(text, "\n\n")
}

// splitSentences splits text at sentence-terminal punctuation followed by
// whitespace, or at paragraph breaks (two consecutive newlines). Results
// are trimmed and empties dropped.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			flush()
			i++
			continue
		}
		cur.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				flush()
			}
		}
	}
	flush()
	return sentences
}
