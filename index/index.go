// Package index holds the in-memory hybrid index: every chunk with its
// embedding and keyword bag, plus the registry of owning documents. Ranking
// combines dense cosine similarity, sparse keyword overlap, and a phrase
// presence boost.
package index

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Scoring weights for hybrid search.
const (
	weightVector  = 0.60
	weightKeyword = 0.25

	phrasePerWord    = 0.05
	phraseBonus      = 0.10
	phraseBoostLimit = 0.15

	// importantWords is how many leading query keywords participate in
	// phrase boosting.
	importantWords = 5

	// defaultK is used when a caller passes k <= 0.
	defaultK = 8
)

// Chunk is the unit of retrieval.
type Chunk struct {
	ID        string        `json:"id"`
	DocID     string        `json:"docId"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"-"`
	Keywords  []string      `json:"keywords,omitempty"`
}

// ChunkMetadata stamps a chunk with its origin.
type ChunkMetadata struct {
	Source     string `json:"source"`
	Type       string `json:"type"`
	ChunkIndex int    `json:"chunk_index"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	Title      string `json:"title,omitempty"`
}

// Document is a registry entry for an ingested document or URL.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ChunkCount int       `json:"chunkCount"`
	AddedAt    time.Time `json:"addedAt"`
}

// SearchResult is a chunk with its retrieval scores.
type SearchResult struct {
	Chunk
	VectorScore  float64 `json:"vectorScore"`
	KeywordScore float64 `json:"keywordScore"`
	PhraseBoost  float64 `json:"phraseBoost"`
	Score        float64 `json:"score"`
}

// Index is the in-memory hybrid index plus document registry. A single
// writer or many readers hold it at a time; chunks of one document are
// published in one critical section, so readers never observe a partially
// ingested document.
type Index struct {
	mu       sync.RWMutex
	chunks   []Chunk
	docs     map[string]*Document
	docOrder []string
}

// New returns an empty index.
func New() *Index {
	return &Index{
		docs: make(map[string]*Document),
	}
}

// Add registers the document and publishes its chunks in the given order.
// Chunks must arrive fully prepared (embedded, keyword bags attached);
// embedding inside the write lock would stall every reader on network I/O.
func (ix *Index) Add(docID, name string, chunks []Chunk) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for i := range chunks {
		chunks[i].DocID = docID
	}
	ix.chunks = append(ix.chunks, chunks...)

	if _, ok := ix.docs[docID]; !ok {
		ix.docOrder = append(ix.docOrder, docID)
	}
	ix.docs[docID] = &Document{
		ID:         docID,
		Name:       name,
		ChunkCount: len(chunks),
		AddedAt:    time.Now(),
	}
}

// Remove evicts the document and every chunk it owns. Returns false when
// the document is unknown.
func (ix *Index) Remove(docID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.docs[docID]; !ok {
		return false
	}
	delete(ix.docs, docID)
	for i, id := range ix.docOrder {
		if id == docID {
			ix.docOrder = append(ix.docOrder[:i], ix.docOrder[i+1:]...)
			break
		}
	}

	kept := ix.chunks[:0]
	for _, c := range ix.chunks {
		if c.DocID != docID {
			kept = append(kept, c)
		}
	}
	// Zero the tail so evicted embeddings can be collected.
	for i := len(kept); i < len(ix.chunks); i++ {
		ix.chunks[i] = Chunk{}
	}
	ix.chunks = kept
	return true
}

// Clear empties the index and the registry.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.chunks = nil
	ix.docs = make(map[string]*Document)
	ix.docOrder = nil
}

// CountDocuments returns the number of registered documents.
func (ix *Index) CountDocuments() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// CountChunks returns the number of indexed chunks.
func (ix *Index) CountChunks() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// HasDocuments reports whether the index holds at least one document.
func (ix *Index) HasDocuments() bool {
	return ix.CountDocuments() > 0
}

// ListDocuments returns registry entries in insertion order.
func (ix *Index) ListDocuments() []Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]Document, 0, len(ix.docOrder))
	for _, id := range ix.docOrder {
		if d, ok := ix.docs[id]; ok {
			out = append(out, *d)
		}
	}
	return out
}

// VectorSearch returns the top k chunks by cosine similarity alone.
func (ix *Index) VectorSearch(queryEmbedding []float32, k int) []SearchResult {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]SearchResult, 0, len(ix.chunks))
	for _, c := range ix.chunks {
		vs := dot(queryEmbedding, c.Embedding)
		results = append(results, SearchResult{
			Chunk:       c,
			VectorScore: vs,
			Score:       vs,
		})
	}
	return topK(results, k)
}

// HybridSearch returns the top k chunks by the combined score
//
//	score = 0.60*cosine + 0.25*keyword_overlap + phrase_boost
//
// computed against the supplied query embedding and query keyword bag.
// Ranking is deterministic: equal scores keep insertion order.
func (ix *Index) HybridSearch(queryEmbedding []float32, queryKeywords []string, k int) []SearchResult {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]SearchResult, 0, len(ix.chunks))
	for _, c := range ix.chunks {
		vs := dot(queryEmbedding, c.Embedding)
		ks := keywordOverlap(queryKeywords, c.Keywords)
		pb := phraseBoost(c.Content, queryKeywords)
		results = append(results, SearchResult{
			Chunk:        c,
			VectorScore:  vs,
			KeywordScore: ks,
			PhraseBoost:  pb,
			Score:        weightVector*vs + weightKeyword*ks + pb,
		})
	}
	return topK(results, k)
}

// topK sorts descending by score, keeping insertion order for ties, and
// truncates to k entries.
func topK(results []SearchResult, k int) []SearchResult {
	if k <= 0 {
		k = defaultK
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// dot computes the dot product of two vectors. Both sides are
// L2-normalized on insert, so this equals cosine similarity. Mismatched
// lengths score zero.
func dot(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// keywordOverlap returns |query ∩ chunk| / max(|query|, 1).
func keywordOverlap(queryKeywords, chunkKeywords []string) float64 {
	if len(queryKeywords) == 0 {
		return 0
	}
	set := make(map[string]bool, len(chunkKeywords))
	for _, kw := range chunkKeywords {
		set[kw] = true
	}
	matched := 0
	for _, kw := range queryKeywords {
		if set[kw] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryKeywords))
}

// phraseBoost scores literal presence of the leading query keywords in the
// chunk content: 0.05 per important word found, plus 0.10 when the two-word
// phrase of the first two appears, clamped to 0.15.
func phraseBoost(content string, queryKeywords []string) float64 {
	if len(queryKeywords) == 0 {
		return 0
	}
	important := queryKeywords
	if len(important) > importantWords {
		important = important[:importantWords]
	}

	lower := strings.ToLower(content)
	boost := 0.0
	for _, w := range important {
		if strings.Contains(lower, w) {
			boost += phrasePerWord
		}
	}
	if len(important) >= 2 {
		phrase := important[0] + " " + important[1]
		if strings.Contains(lower, phrase) {
			boost += phraseBonus
		}
	}
	if boost > phraseBoostLimit {
		boost = phraseBoostLimit
	}
	return boost
}
