package retrieval

import (
	"context"
	"testing"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/scope"
	"github.com/ragline/ragline/internal/store/graph"
	"github.com/ragline/ragline/internal/store/vector"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}
func (f *fakeEmbedder) Dimension() int  { return f.dim }
func (f *fakeEmbedder) ModelID() string { return "fake-embed" }

type fakeVectorStore struct {
	results []vector.Result
	gotAlpha float64
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	return nil
}
func (f *fakeVectorStore) Insert(ctx context.Context, chunk model.Chunk, v []float32) error {
	return nil
}
func (f *fakeVectorStore) HybridSearch(ctx context.Context, query string, v []float32, alpha float64, limit int, vis scope.Visibility) ([]vector.Result, error) {
	f.gotAlpha = alpha
	return f.results, nil
}
func (f *fakeVectorStore) DeleteByDoc(ctx context.Context, docID string) error { return nil }

type fakeGraphStore struct {
	enabled  bool
	expanded []graph.Expanded
	err      error
}

func (f *fakeGraphStore) Enabled() bool { return f.enabled }
func (f *fakeGraphStore) LinkChunkEntities(ctx context.Context, chunk model.Chunk, entities []model.Entity) error {
	return nil
}
func (f *fakeGraphStore) ExpandBySharedEntities(ctx context.Context, seedChunkIDs []string, vis scope.Visibility, limit int) ([]graph.Expanded, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.expanded, nil
}
func (f *fakeGraphStore) TopEntities(ctx context.Context, q, entityType string, limit int) ([]graph.EntitySummary, error) {
	return nil, nil
}
func (f *fakeGraphStore) ChunksForEntity(ctx context.Context, entityID string, limit int) ([]model.Chunk, error) {
	return nil, nil
}
func (f *fakeGraphStore) EntitiesForDocument(ctx context.Context, docID string, limit int) ([]graph.EntitySummary, error) {
	return nil, nil
}
func (f *fakeGraphStore) Close(ctx context.Context) error { return nil }

// fakeReranker scores every document by its length, so longer text wins
// — enough signal to verify ordering without a real model.
type fakeReranker struct{ err error }

func (f fakeReranker) Rerank(ctx context.Context, query string, documents []string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	scores := make([]float32, len(documents))
	for i, d := range documents {
		scores[i] = float32(len(d))
	}
	return scores, nil
}
func (fakeReranker) ModelID() string { return "fake-rerank" }

func chunkHit(id, text string) vector.Result {
	return vector.Result{WeaviateUUID: "uuid-" + id, Chunk: model.Chunk{ChunkID: id, Text: text}}
}

func TestRetrieveHybridOnlyWhenGraphDisabled(t *testing.T) {
	vs := &fakeVectorStore{results: []vector.Result{
		chunkHit("c1", "short"),
		chunkHit("c2", "a much longer chunk of text"),
	}}
	gs := &fakeGraphStore{enabled: false}
	e := New(vs, gs, &fakeEmbedder{dim: 4}, fakeReranker{}, 0.5, logrus.New())

	res, err := e.Retrieve(context.Background(), "query", 10, 0.5, scope.NewVisibility("t1", "", ""))
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	for _, h := range res.Hits {
		assert.Equal(t, SourceWeaviate, h.Source)
	}
	// longer text scores higher under fakeReranker
	assert.Equal(t, "c2", res.Hits[0].ChunkID)
	assert.Equal(t, "uuid-c2", res.Hits[0].WeaviateUUID)
	assert.False(t, res.Graph.Enabled)
	assert.Equal(t, 0, res.Graph.ExpandedCount)
}

func TestRetrieveThreadsPerRequestAlpha(t *testing.T) {
	vs := &fakeVectorStore{results: []vector.Result{chunkHit("c1", "text")}}
	gs := &fakeGraphStore{enabled: false}
	e := New(vs, gs, &fakeEmbedder{dim: 4}, fakeReranker{}, 0.5, logrus.New())

	_, err := e.Retrieve(context.Background(), "query", 10, 0, scope.NewVisibility("t1", "", ""))
	require.NoError(t, err)
	assert.Equal(t, 0.0, vs.gotAlpha) // explicit alpha=0 must reach HybridSearch untouched

	_, err = e.Retrieve(context.Background(), "query", 10, 1, scope.NewVisibility("t1", "", ""))
	require.NoError(t, err)
	assert.Equal(t, 1.0, vs.gotAlpha)
}

func TestRetrieveMergesGraphExpansionWhenEnabled(t *testing.T) {
	vs := &fakeVectorStore{results: []vector.Result{chunkHit("c1", "seed chunk")}}
	gs := &fakeGraphStore{enabled: true, expanded: []graph.Expanded{
		{Chunk: model.Chunk{ChunkID: "c2", Text: "expanded via shared entity"}, SharedEntityCount: 2, EntityNames: []string{"Acme"}},
	}}
	e := New(vs, gs, &fakeEmbedder{dim: 4}, fakeReranker{}, 0.5, logrus.New())

	res, err := e.Retrieve(context.Background(), "query", 10, 0.5, scope.NewVisibility("t1", "", ""))
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)

	sources := map[string]Source{}
	for _, h := range res.Hits {
		sources[h.ChunkID] = h.Source
	}
	assert.Equal(t, SourceWeaviate, sources["c1"])
	assert.Equal(t, SourceGraph, sources["c2"])
	assert.True(t, res.Graph.Enabled)
	assert.Equal(t, 1, res.Graph.ExpandedCount)
	assert.Equal(t, []string{"c1"}, res.Graph.SeedChunkIDs)
}

func TestRetrieveGraphExpansionFailureDoesNotFailRequest(t *testing.T) {
	vs := &fakeVectorStore{results: []vector.Result{chunkHit("c1", "seed chunk")}}
	gs := &fakeGraphStore{enabled: true, err: ragerr.New(ragerr.DependencyTransient, "neo4j down")}
	e := New(vs, gs, &fakeEmbedder{dim: 4}, fakeReranker{}, 0.5, logrus.New())

	res, err := e.Retrieve(context.Background(), "query", 10, 0.5, scope.NewVisibility("t1", "", ""))
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.NotEmpty(t, res.Graph.Error)
	assert.Equal(t, 0, res.Graph.ExpandedCount)
}

func TestRetrieveRerankFailureKeepsHybridOrdering(t *testing.T) {
	vs := &fakeVectorStore{results: []vector.Result{
		chunkHit("c1", "short"),
		chunkHit("c2", "a much longer chunk of text"),
	}}
	gs := &fakeGraphStore{enabled: false}
	e := New(vs, gs, &fakeEmbedder{dim: 4}, fakeReranker{err: ragerr.New(ragerr.DependencyTransient, "reranker down")}, 0.5, logrus.New())

	res, err := e.Retrieve(context.Background(), "query", 10, 0.5, scope.NewVisibility("t1", "", ""))
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "c1", res.Hits[0].ChunkID) // hybrid order preserved, not rerank order
}

func TestRetrieveNoHybridResultsReturnsEmpty(t *testing.T) {
	vs := &fakeVectorStore{results: nil}
	gs := &fakeGraphStore{enabled: true}
	e := New(vs, gs, &fakeEmbedder{dim: 4}, fakeReranker{}, 0.5, logrus.New())

	res, err := e.Retrieve(context.Background(), "query", 5, 0.5, scope.NewVisibility("t1", "", ""))
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestRetrieveTruncatesToLimit(t *testing.T) {
	vs := &fakeVectorStore{results: []vector.Result{
		chunkHit("c1", "aaaaaaaaaa"),
		chunkHit("c2", "bbb"),
		chunkHit("c3", "ccccc"),
	}}
	gs := &fakeGraphStore{enabled: false}
	e := New(vs, gs, &fakeEmbedder{dim: 4}, fakeReranker{}, 0.5, logrus.New())

	res, err := e.Retrieve(context.Background(), "query", 2, 0.5, scope.NewVisibility("t1", "", ""))
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "c1", res.Hits[0].ChunkID) // longest text
}

func TestAppendUniqueMarksAlsoFromGraph(t *testing.T) {
	base := []Hit{{ChunkID: "c1", Score: 0.9, Source: SourceWeaviate}}
	more := []Hit{
		{ChunkID: "c1", Source: SourceGraph, GraphSharedEntities: 3, GraphEntities: []string{"Acme"}},
		{ChunkID: "c2", Source: SourceGraph},
	}
	out := appendUnique(base, more)
	require.Len(t, out, 2)
	assert.Equal(t, SourceWeaviate, out[0].Source) // hybrid score/source kept
	assert.Equal(t, float32(0.9), out[0].Score)
	assert.True(t, out[0].AlsoFromGraph)
	assert.Equal(t, 3, out[0].GraphSharedEntities)
	assert.Equal(t, []string{"Acme"}, out[0].GraphEntities)
	assert.Equal(t, "c2", out[1].ChunkID)
}
