// Package retrieval implements the hybrid-search-then-rerank-then-
// graph-expand-then-rerank pipeline from spec.md §4.8.
package retrieval

import (
	"context"
	"sort"

	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/remote"
	"github.com/ragline/ragline/internal/scope"
	"github.com/ragline/ragline/internal/store/graph"
	"github.com/ragline/ragline/internal/store/vector"
	"github.com/sirupsen/logrus"
)

// Source tags where a Hit entered the merged result set, per spec.md
// §4.8 step 7.
type Source string

const (
	SourceWeaviate Source = "weaviate"
	SourceGraph    Source = "graph"
)

// Hit is one retrieval result, flattened to the shape spec.md §4.8's
// result payload lists.
type Hit struct {
	Source       Source  `json:"source"`
	WeaviateUUID string  `json:"weaviate_uuid,omitempty"`
	Score        float32 `json:"score"`
	RerankScore  float32 `json:"rerank_score"`
	ChunkID      string  `json:"chunk_id"`
	DocID        string  `json:"doc_id"`
	scope.Key    `json:"scope"`
	Title        string `json:"title,omitempty"`
	Section      string `json:"section,omitempty"`
	Summary      string `json:"summary,omitempty"`
	Pages        []int  `json:"pages"`
	Text         string `json:"text"`

	AlsoFromGraph       bool     `json:"also_from_graph,omitempty"`
	GraphSharedEntities int      `json:"graph_shared_entities,omitempty"`
	GraphEntities       []string `json:"graph_entities,omitempty"`
}

// GraphInfo is the top-level `graph` block of the /v1/retrieve payload.
type GraphInfo struct {
	Enabled       bool     `json:"enabled"`
	SeedChunkIDs  []string `json:"seed_chunk_ids"`
	ExpandedCount int      `json:"expanded_count"`
	Error         string   `json:"error,omitempty"`
}

// Result is the full /v1/retrieve response body.
type Result struct {
	Hits  []Hit     `json:"results"`
	Graph GraphInfo `json:"graph"`
}

// Engine wires the VectorStore, GraphStore, Embedder, and Reranker
// together.
type Engine struct {
	vector   vector.Store
	graph    graph.Store
	embedder remote.Embedder
	reranker remote.Reranker
	alpha    float64
	logger   *logrus.Logger
}

// New builds a retrieval Engine. alpha is the default applied when a
// caller's request omits it entirely (spec.md §6: `alpha∈[0,1]=0.5`);
// Retrieve always takes the caller's per-request value otherwise.
func New(vectorStore vector.Store, graphStore graph.Store, embedder remote.Embedder, reranker remote.Reranker, alpha float64, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{vector: vectorStore, graph: graphStore, embedder: embedder, reranker: reranker, alpha: alpha, logger: logger}
}

// DefaultAlpha is the configured fallback for requests that omit alpha.
func (e *Engine) DefaultAlpha() float64 {
	return e.alpha
}

// Retrieve runs the full pipeline: hybrid search for k1, rerank, take
// the top k2 as seeds, expand those via shared graph entities for k_exp, merge, rerank
// the merged set, and return the top `limit` hits tagged by source.
// alpha is the caller's per-request value (§8: `alpha=0` ranks
// sparse-only, `alpha=1` dense-only) — it is never overridden.
func (e *Engine) Retrieve(ctx context.Context, query string, limit int, alpha float64, vis scope.Visibility) (Result, error) {
	if limit <= 0 {
		limit = 10
	}

	k1 := limit * 4
	if k1 < 20 {
		k1 = 20
	}

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, err
	}
	if len(vectors) == 0 {
		return Result{}, ragerr.New(ragerr.MalformedUpstream, "retrieval: embedder returned no vector for query")
	}
	queryVector := vectors[0]

	hybridResults, err := e.vector.HybridSearch(ctx, query, queryVector, alpha, k1, vis)
	if err != nil {
		return Result{}, err
	}

	graphInfo := GraphInfo{Enabled: e.graph.Enabled()}
	if len(hybridResults) == 0 {
		return Result{Graph: graphInfo}, nil
	}

	firstPass := make([]Hit, len(hybridResults))
	for i, r := range hybridResults {
		firstPass[i] = hitFromResult(r)
	}

	firstPass = e.rerank(ctx, query, firstPass)

	k2 := 10
	if k2 > len(firstPass) {
		k2 = len(firstPass)
	}
	seeds := firstPass[:k2]

	merged := appendUnique(nil, firstPass)

	if graphInfo.Enabled {
		seedIDs := make([]string, len(seeds))
		for i, h := range seeds {
			seedIDs[i] = h.ChunkID
		}
		graphInfo.SeedChunkIDs = seedIDs

		kExp := limit * 2
		if kExp < 10 {
			kExp = 10
		}
		expanded, err := e.graph.ExpandBySharedEntities(ctx, seedIDs, vis, kExp)
		if err != nil {
			// Graph expansion failure never fails the request, per
			// spec.md §4.8's failure policy: continue without it and
			// surface the error in the graph block instead.
			e.logger.WithError(err).Warn("retrieval: graph expansion failed, continuing without it")
			graphInfo.Error = err.Error()
		} else {
			graphHits := make([]Hit, len(expanded))
			for i, ex := range expanded {
				graphHits[i] = hitFromExpanded(ex)
			}
			merged = appendUnique(merged, graphHits)
			graphInfo.ExpandedCount = len(expanded)
		}
	}

	final := e.rerank(ctx, query, merged)

	if len(final) > limit {
		final = final[:limit]
	}
	return Result{Hits: final, Graph: graphInfo}, nil
}

func hitFromResult(r vector.Result) Hit {
	return Hit{
		Source:       SourceWeaviate,
		WeaviateUUID: r.WeaviateUUID,
		Score:        r.Score,
		RerankScore:  r.Score,
		ChunkID:      r.Chunk.ChunkID,
		DocID:        r.Chunk.DocID,
		Key:          r.Chunk.Key,
		Title:        r.Chunk.Title,
		Section:      r.Chunk.Section,
		Summary:      r.Chunk.Summary,
		Pages:        r.Chunk.Pages,
		Text:         r.Chunk.Text,
	}
}

func hitFromExpanded(ex graph.Expanded) Hit {
	return Hit{
		Source:              SourceGraph,
		Score:               float32(ex.SharedEntityCount),
		RerankScore:         float32(ex.SharedEntityCount),
		ChunkID:             ex.Chunk.ChunkID,
		DocID:               ex.Chunk.DocID,
		Key:                 ex.Chunk.Key,
		Title:               ex.Chunk.Title,
		Section:             ex.Chunk.Section,
		Summary:             ex.Chunk.Summary,
		Pages:               ex.Chunk.Pages,
		Text:                ex.Chunk.Text,
		GraphSharedEntities: ex.SharedEntityCount,
		GraphEntities:       ex.EntityNames,
	}
}

// rerank never fails the request: a reranker error is logged and the
// incoming order is kept, per spec.md §4.8's failure policy and the
// §8 boundary property "Reranker failure mid-retrieve → results still
// returned, ordered by hybrid score."
func (e *Engine) rerank(ctx context.Context, query string, hits []Hit) []Hit {
	if len(hits) == 0 {
		return hits
	}
	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = h.Text
	}
	scores, err := e.reranker.Rerank(ctx, query, docs)
	if err != nil {
		e.logger.WithError(err).Warn("retrieval: reranker failed, keeping hybrid ordering")
		return hits
	}
	out := make([]Hit, len(hits))
	copy(out, hits)
	for i := range out {
		if i < len(scores) {
			out[i].RerankScore = scores[i]
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RerankScore > out[j].RerankScore })
	return out
}

// appendUnique merges hits into base by ChunkID. A chunk already
// present in base is flagged also_from_graph and gains the incoming
// graph fields, but keeps its hybrid score, per spec.md §4.8 step 5.
func appendUnique(base []Hit, hits []Hit) []Hit {
	index := map[string]int{}
	for i, h := range base {
		index[h.ChunkID] = i
	}
	for _, h := range hits {
		if i, ok := index[h.ChunkID]; ok {
			base[i].AlsoFromGraph = true
			base[i].GraphSharedEntities = h.GraphSharedEntities
			base[i].GraphEntities = h.GraphEntities
			continue
		}
		index[h.ChunkID] = len(base)
		base = append(base, h)
	}
	return base
}
