package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedder(t *testing.T, body string, status int) Embedder {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewEmbedder(config.ModelCard{BaseURL: srv.URL, ID: "embed-1", Dimension: 3}, time.Second, 1)
}

func TestEmbedReturnsVectorPerText(t *testing.T) {
	e := newTestEmbedder(t, `{"data":[{"embedding":[1,2,3],"index":0},{"embedding":[4,5,6],"index":1}]}`, http.StatusOK)

	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 2, 3}, vecs[0])
	assert.Equal(t, []float32{4, 5, 6}, vecs[1])
}

func TestEmbedRejectsFewerVectorsThanTexts(t *testing.T) {
	e := newTestEmbedder(t, `{"data":[{"embedding":[1,2,3],"index":0}]}`, http.StatusOK)

	_, err := e.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, ragerr.MalformedUpstream, ragerr.KindOf(err))
}

func TestEmbedRejectsMissingIndexSlot(t *testing.T) {
	// two texts submitted, but both embeddings come back at index 0 —
	// same length response, no vector ever lands in slot 1.
	e := newTestEmbedder(t, `{"data":[{"embedding":[1,2,3],"index":0},{"embedding":[4,5,6],"index":0}]}`, http.StatusOK)

	_, err := e.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, ragerr.MalformedUpstream, ragerr.KindOf(err))
}

func TestEmbedEmptyInputReturnsNoVectors(t *testing.T) {
	e := newTestEmbedder(t, `{}`, http.StatusOK)

	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
