// Package embed implements the embedding index: chunking category files,
// requesting embeddings from a provider, persisting one JSON document per
// project, and brute-force cosine search over it.
package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/provider"
	"github.com/engram-hq/engram/store"
	"golang.org/x/exp/slices"
)

const (
	// targetChunkSize is the length at which the chunker closes a chunk at
	// the next paragraph boundary; a single paragraph longer than that is
	// not split and becomes one chunk on its own. chunkOverlap is how many
	// trailing characters of the previous chunk are repeated at the start
	// of the next, so a sentence that straddles a boundary stays searchable
	// from either chunk.
	targetChunkSize = 750
	chunkOverlap    = 100
)

// Chunk is one embeddable unit, stable across re-embeddings as long as its
// source file and offset are unchanged.
type Chunk struct {
	ID         string    `json:"id"`
	SourceFile string    `json:"source_file"`
	Text       string    `json:"text"`
	Vector     []float64 `json:"vector"`
}

// Index is the exact per-project JSON document shape persisted on disk.
type Index struct {
	Chunks  []Chunk `json:"chunks"`
	Dim     int     `json:"dim"`
	Model   string  `json:"model"`
	Version int     `json:"version"`
}

func indexPath(root, project string) string {
	return filepath.Join(root, "embeddings", project, "index.json")
}

// Load reads project's embedding index, returning an empty Index (version 0)
// if none has been built yet.
func Load(root, project string) (*Index, error) {
	data, err := os.ReadFile(indexPath(root, project))
	if os.IsNotExist(err) {
		return &Index{}, nil
	}
	if err != nil {
		return nil, &engramerr.StoreError{Op: "load_index", Project: project, Err: err}
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, &engramerr.StateError{Reason: "embedding index is not valid JSON: " + err.Error()}
	}
	return &idx, nil
}

// Save atomically persists idx for project.
func Save(root, project string, idx *Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return &engramerr.StoreError{Op: "save_index", Project: project, Err: err}
	}
	dir := filepath.Join(root, "embeddings", project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &engramerr.StoreError{Op: "save_index", Project: project, Err: err}
	}
	if err := store.AtomicWriteFile(indexPath(root, project), data); err != nil {
		return &engramerr.StoreError{Op: "save_index", Project: project, Err: err}
	}
	return nil
}

// ChunkEntry splits one knowledge entry's body into paragraph-bounded
// chunks of roughly targetChunkSize characters, id'd by
// "<category>/<entry-id>:<offset>" so ids stay stable across re-embeddings
// of unchanged text.
func ChunkEntry(category store.Category, e store.Entry) []Chunk {
	sourceFile := string(category) + "/" + e.ID
	paragraphs := strings.Split(e.Body, "\n\n")

	var chunks []Chunk
	var buf strings.Builder
	offset := 0
	bufStart := 0

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text == "" {
			buf.Reset()
			return
		}
		chunks = append(chunks, Chunk{
			ID:         sourceFile + ":" + strconv.Itoa(bufStart),
			SourceFile: sourceFile,
			Text:       text,
		})
		buf.Reset()
	}

	for _, p := range paragraphs {
		if buf.Len() > 0 && buf.Len()+len(p) > targetChunkSize {
			prevTail := lastN(strings.TrimSpace(buf.String()), chunkOverlap)
			flush()
			if prevTail != "" {
				buf.WriteString(prevTail)
				buf.WriteString("\n\n")
			}
			bufStart = offset
		}
		if buf.Len() == 0 {
			bufStart = offset
		}
		buf.WriteString(p)
		buf.WriteString("\n\n")
		offset += len(p) + 2
	}
	flush()
	return chunks
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Build re-chunks and re-embeds every entry in snapshot, replacing the
// project's index outright and bumping its version counter. It does no
// expiry filtering of its own.
func Build(ctx context.Context, p provider.LLMProvider, prev *Index, snapshot map[store.Category][]store.Entry) (*Index, error) {
	idx := &Index{Model: p.Model(), Dim: p.Dim(), Version: prev.Version + 1}

	for _, cat := range store.Categories {
		for _, e := range snapshot[cat] {
			for _, c := range ChunkEntry(cat, e) {
				vec, err := p.Embed(ctx, c.Text)
				if err != nil {
					return nil, err
				}
				c.Vector = vec
				idx.Chunks = append(idx.Chunks, c)
			}
		}
	}
	return idx, nil
}

// Hit is one scored search result.
type Hit struct {
	Chunk Chunk
	Score float64
}

// Search embeds query and returns the top_k chunks in idx scoring at least
// threshold, highest score first. No approximate-nearest-neighbor structure
// is used: at the expected scale (<=10^4 chunks/project), brute-force cosine
// search over the full chunk slice is fast enough.
func Search(ctx context.Context, p provider.LLMProvider, idx *Index, query string, topK int, threshold float64) ([]Hit, error) {
	if idx == nil || len(idx.Chunks) == 0 {
		return nil, nil
	}
	if idx.Model != p.Model() || idx.Dim != p.Dim() {
		return nil, &engramerr.StateError{Reason: fmt.Sprintf(
			"embedding index was built with model %q (dim %d) but the current provider is %q (dim %d); rebuild the index",
			idx.Model, idx.Dim, p.Model(), p.Dim(),
		)}
	}
	qvec, err := p.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, c := range idx.Chunks {
		score := cosineSimilarity(qvec, c.Vector)
		if score >= threshold {
			hits = append(hits, Hit{Chunk: c, Score: score})
		}
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// cosineSimilarity computes cosine similarity between two vectors of equal
// length, returning 0 for mismatched dimensions or zero vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
