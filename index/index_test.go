package index

import (
	"math"
	"testing"
)

func ch(id, content string, emb []float32, kws ...string) Chunk {
	return Chunk{ID: id, Content: content, Embedding: emb, Keywords: kws}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// ---------------------------------------------------------------------------
// Registry bookkeeping
// ---------------------------------------------------------------------------

func TestAddUpdatesCounts(t *testing.T) {
	ix := New()

	ix.Add("doc-1", "alpha.txt", []Chunk{
		ch("c1", "first", nil),
		ch("c2", "second", nil),
	})
	ix.Add("doc-2", "beta.txt", []Chunk{
		ch("c3", "third", nil),
	})

	if got := ix.CountDocuments(); got != 2 {
		t.Errorf("CountDocuments = %d, want 2", got)
	}
	if got := ix.CountChunks(); got != 3 {
		t.Errorf("CountChunks = %d, want 3", got)
	}
	if !ix.HasDocuments() {
		t.Error("HasDocuments = false, want true")
	}
}

func TestAddStampsDocID(t *testing.T) {
	ix := New()
	ix.Add("doc-9", "gamma.txt", []Chunk{
		ch("c1", "content one", []float32{1, 0}),
		ch("c2", "content two", []float32{0, 1}),
	})

	results := ix.VectorSearch([]float32{1, 0}, 10)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.DocID != "doc-9" {
			t.Errorf("chunk %s DocID = %q, want \"doc-9\"", r.ID, r.DocID)
		}
	}
}

func TestListDocumentsInsertionOrder(t *testing.T) {
	ix := New()
	ix.Add("doc-b", "b.txt", []Chunk{ch("b1", "b", nil)})
	ix.Add("doc-a", "a.txt", []Chunk{ch("a1", "a", nil), ch("a2", "a2", nil)})
	ix.Add("doc-c", "c.txt", []Chunk{ch("c1", "c", nil)})

	docs := ix.ListDocuments()
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}

	wantOrder := []string{"doc-b", "doc-a", "doc-c"}
	for i, want := range wantOrder {
		if docs[i].ID != want {
			t.Errorf("docs[%d].ID = %q, want %q", i, docs[i].ID, want)
		}
	}
	if docs[1].Name != "a.txt" {
		t.Errorf("docs[1].Name = %q, want \"a.txt\"", docs[1].Name)
	}
	if docs[1].ChunkCount != 2 {
		t.Errorf("docs[1].ChunkCount = %d, want 2", docs[1].ChunkCount)
	}
	if docs[0].AddedAt.IsZero() {
		t.Error("docs[0].AddedAt is zero, want a timestamp")
	}
}

func TestRemove(t *testing.T) {
	ix := New()
	ix.Add("doc-1", "one.txt", []Chunk{
		ch("c1", "one a", []float32{1, 0}),
		ch("c2", "one b", []float32{0, 1}),
	})
	ix.Add("doc-2", "two.txt", []Chunk{
		ch("c3", "two a", []float32{1, 0}),
	})

	if !ix.Remove("doc-1") {
		t.Fatal("Remove(doc-1) = false, want true")
	}
	if got := ix.CountDocuments(); got != 1 {
		t.Errorf("CountDocuments = %d, want 1", got)
	}
	if got := ix.CountChunks(); got != 1 {
		t.Errorf("CountChunks = %d, want 1", got)
	}

	// No chunk of the removed document survives.
	for _, r := range ix.VectorSearch([]float32{1, 0}, 10) {
		if r.DocID == "doc-1" {
			t.Errorf("chunk %s of removed document still indexed", r.ID)
		}
	}

	docs := ix.ListDocuments()
	if len(docs) != 1 || docs[0].ID != "doc-2" {
		t.Errorf("ListDocuments = %v, want only doc-2", docs)
	}
}

func TestRemoveUnknown(t *testing.T) {
	ix := New()
	ix.Add("doc-1", "one.txt", []Chunk{ch("c1", "x", nil)})

	if ix.Remove("doc-404") {
		t.Error("Remove of unknown document = true, want false")
	}
	if got := ix.CountChunks(); got != 1 {
		t.Errorf("CountChunks changed to %d after failed remove", got)
	}
}

func TestAddRemoveRoundTrip(t *testing.T) {
	ix := New()
	ix.Add("doc-keep", "keep.txt", []Chunk{ch("k1", "kept", nil)})

	before := ix.CountChunks()
	ix.Add("doc-tmp", "tmp.txt", []Chunk{
		ch("t1", "temp a", nil),
		ch("t2", "temp b", nil),
		ch("t3", "temp c", nil),
	})
	ix.Remove("doc-tmp")

	if got := ix.CountChunks(); got != before {
		t.Errorf("CountChunks = %d after add+remove, want %d", got, before)
	}
}

func TestClearIdempotent(t *testing.T) {
	ix := New()
	ix.Add("doc-1", "one.txt", []Chunk{ch("c1", "x", nil)})

	ix.Clear()
	if ix.CountDocuments() != 0 || ix.CountChunks() != 0 {
		t.Errorf("after Clear: docs=%d chunks=%d, want 0/0",
			ix.CountDocuments(), ix.CountChunks())
	}
	if ix.HasDocuments() {
		t.Error("HasDocuments = true after Clear")
	}

	ix.Clear()
	if ix.CountDocuments() != 0 || ix.CountChunks() != 0 {
		t.Error("second Clear changed counts")
	}
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestVectorSearchRanksByCosine(t *testing.T) {
	ix := New()
	ix.Add("doc-1", "d.txt", []Chunk{
		ch("cx", "x axis", []float32{1, 0, 0}),
		ch("cy", "y axis", []float32{0, 1, 0}),
		ch("cz", "z axis", []float32{0, 0, 1}),
	})

	results := ix.VectorSearch([]float32{0, 1, 0}, 3)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != "cy" {
		t.Errorf("top result = %s, want cy", results[0].ID)
	}
	if !almostEqual(results[0].Score, 1.0) {
		t.Errorf("top score = %v, want 1.0", results[0].Score)
	}
	if !almostEqual(results[1].Score, 0.0) {
		t.Errorf("second score = %v, want 0.0", results[1].Score)
	}
}

func TestHybridSearchScoreMath(t *testing.T) {
	ix := New()
	ix.Add("doc-1", "d.txt", []Chunk{
		{
			ID:        "c1",
			Content:   "alpha is discussed here at length",
			Embedding: []float32{1, 0},
			Keywords:  []string{"alpha", "gamma"},
		},
	})

	// vector:  dot({0.8, 0.6}, {1, 0})            = 0.8
	// keyword: |{alpha}| / |{alpha, beta}|        = 0.5
	// phrase:  "alpha" present, "beta" absent     = 0.05
	// score:   0.60*0.8 + 0.25*0.5 + 0.05         = 0.655
	results := ix.HybridSearch([]float32{0.8, 0.6}, []string{"alpha", "beta"}, 1)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	if !almostEqual(r.VectorScore, 0.8) {
		t.Errorf("VectorScore = %v, want 0.8", r.VectorScore)
	}
	if !almostEqual(r.KeywordScore, 0.5) {
		t.Errorf("KeywordScore = %v, want 0.5", r.KeywordScore)
	}
	if !almostEqual(r.PhraseBoost, 0.05) {
		t.Errorf("PhraseBoost = %v, want 0.05", r.PhraseBoost)
	}
	if !almostEqual(r.Score, 0.655) {
		t.Errorf("Score = %v, want 0.655", r.Score)
	}
}

func TestHybridSearchRanking(t *testing.T) {
	ix := New()
	ix.Add("doc-1", "d.txt", []Chunk{
		{
			ID:        "vector-close",
			Content:   "disk cache behavior",
			Embedding: []float32{1, 0},
			Keywords:  []string{"cache", "memory"},
		},
		{
			ID:        "keyword-heavy",
			Content:   "the storage engine compacts data",
			Embedding: []float32{0, 1},
			Keywords:  []string{"storage", "engine"},
		},
	})

	results := ix.HybridSearch([]float32{1, 0}, []string{"storage", "engine"}, 2)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	// vector-close: 0.60*1.0 + 0 + 0            = 0.60
	// keyword-heavy: 0 + 0.25*1.0 + 0.15 (clamp) = 0.40
	if results[0].ID != "vector-close" {
		t.Errorf("top result = %s, want vector-close", results[0].ID)
	}
	if !almostEqual(results[0].Score, 0.60) {
		t.Errorf("top score = %v, want 0.60", results[0].Score)
	}
	if !almostEqual(results[1].Score, 0.40) {
		t.Errorf("second score = %v, want 0.40", results[1].Score)
	}
	if !almostEqual(results[1].PhraseBoost, 0.15) {
		t.Errorf("second PhraseBoost = %v, want clamp at 0.15", results[1].PhraseBoost)
	}
}

func TestHybridSearchDeterministicTies(t *testing.T) {
	ix := New()
	ix.Add("doc-1", "d.txt", []Chunk{
		ch("first", "aaa", nil),
		ch("second", "bbb", nil),
		ch("third", "ccc", nil),
	})

	for run := 0; run < 10; run++ {
		results := ix.HybridSearch(nil, nil, 3)
		if len(results) != 3 {
			t.Fatalf("run %d: got %d results, want 3", run, len(results))
		}
		// All scores tie at zero; insertion order must hold.
		for i, want := range []string{"first", "second", "third"} {
			if results[i].ID != want {
				t.Fatalf("run %d: results[%d] = %s, want %s", run, i, results[i].ID, want)
			}
		}
	}
}

func TestHybridSearchRespectsK(t *testing.T) {
	ix := New()
	chunks := make([]Chunk, 5)
	for i := range chunks {
		chunks[i] = ch(string(rune('a'+i)), "content", []float32{float32(i + 1), 0})
	}
	ix.Add("doc-1", "d.txt", chunks)

	if got := len(ix.HybridSearch([]float32{1, 0}, nil, 2)); got != 2 {
		t.Errorf("k=2: got %d results, want 2", got)
	}
	// k <= 0 falls back to the default of 8, capped by index size.
	if got := len(ix.HybridSearch([]float32{1, 0}, nil, 0)); got != 5 {
		t.Errorf("k=0: got %d results, want 5", got)
	}
}

func TestHybridSearchEmptyIndex(t *testing.T) {
	ix := New()
	if results := ix.HybridSearch([]float32{1, 0}, []string{"anything"}, 8); len(results) != 0 {
		t.Errorf("got %d results from empty index, want 0", len(results))
	}
}

func TestHybridSearchScoreBounds(t *testing.T) {
	ix := New()
	ix.Add("doc-1", "d.txt", []Chunk{
		{
			ID:        "best",
			Content:   "storage engine details inside",
			Embedding: []float32{1, 0},
			Keywords:  []string{"storage", "engine"},
		},
		{
			ID:        "worst",
			Content:   "unrelated",
			Embedding: []float32{-1, 0},
			Keywords:  nil,
		},
	})

	results := ix.HybridSearch([]float32{1, 0}, []string{"storage", "engine"}, 2)
	for _, r := range results {
		// Algebraic range of 0.60*[-1,1] + 0.25*[0,1] + [0,0.15].
		if r.Score < -0.60 || r.Score > 1.00 {
			t.Errorf("chunk %s score %v outside [-0.60, 1.00]", r.ID, r.Score)
		}
		if r.KeywordScore < 0 || r.KeywordScore > 1 {
			t.Errorf("chunk %s keyword score %v outside [0,1]", r.ID, r.KeywordScore)
		}
		if r.PhraseBoost < 0 || r.PhraseBoost > 0.15 {
			t.Errorf("chunk %s phrase boost %v outside [0,0.15]", r.ID, r.PhraseBoost)
		}
	}

	// The crafted best case hits the true maximum.
	if !almostEqual(results[0].Score, 1.0) {
		t.Errorf("best score = %v, want 1.0", results[0].Score)
	}
	if !almostEqual(results[1].Score, -0.60) {
		t.Errorf("worst score = %v, want -0.60", results[1].Score)
	}
}

// ---------------------------------------------------------------------------
// Scoring helpers
// ---------------------------------------------------------------------------

func TestDot(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical_unit", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched_lengths", []float32{1, 0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dot(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("dot = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeywordOverlap(t *testing.T) {
	tests := []struct {
		name  string
		query []string
		chunk []string
		want  float64
	}{
		{"full", []string{"a1", "b2"}, []string{"a1", "b2", "c3"}, 1.0},
		{"half", []string{"a1", "b2"}, []string{"a1"}, 0.5},
		{"none", []string{"a1"}, []string{"zz"}, 0},
		{"empty_query", nil, []string{"a1"}, 0},
		{"empty_chunk", []string{"a1"}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keywordOverlap(tt.query, tt.chunk); !almostEqual(got, tt.want) {
				t.Errorf("keywordOverlap = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPhraseBoost(t *testing.T) {
	tests := []struct {
		name    string
		content string
		kws     []string
		want    float64
	}{
		{"no_keywords", "some text", nil, 0},
		{"one_word", "alpha appears", []string{"alpha", "beta"}, 0.05},
		{"two_words_apart", "alpha and then beta", []string{"alpha", "beta"}, 0.10},
		{"two_word_phrase", "alpha beta together", []string{"alpha", "beta"}, 0.15},
		{"clamped", "v w x y z", []string{"v", "w", "x", "y", "z"}, 0.15},
		{"case_insensitive", "Alpha Beta", []string{"alpha", "beta"}, 0.15},
		{"only_first_five_matter", "six exists", []string{"one", "two", "three", "four", "five", "six"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := phraseBoost(tt.content, tt.kws); !almostEqual(got, tt.want) {
				t.Errorf("phraseBoost(%q, %v) = %v, want %v", tt.content, tt.kws, got, tt.want)
			}
		})
	}
}
