package meta

import (
	"context"
	"testing"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/scope"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertDoc(t *testing.T, s *SQLiteStore, docID string, key scope.Key) *model.Document {
	t.Helper()
	d := &model.Document{
		DocID: docID, Key: key, Filename: "f.txt", ContentType: "text/plain",
		StoragePath: "/tmp/f.txt", Status: model.StatusQueued, StageValue: model.StageQueued,
	}
	require.NoError(t, s.InsertDocument(context.Background(), d))
	return d
}

func TestInsertAndGetDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	insertDoc(t, s, "doc-1", scope.Key{TenantID: "t1", Scope: scope.Tenant})

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, "doc-1", got.DocID)
	require.Equal(t, model.StatusQueued, got.Status)
}

func TestGetDocumentNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetDocument(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, ragerr.NotFound, ragerr.KindOf(err))
}

func TestListDocumentsFiltersByVisibility(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	insertDoc(t, s, "doc-a", scope.Key{TenantID: "t1", Scope: scope.Workspace, WorkspaceID: "w1"})
	insertDoc(t, s, "doc-b", scope.Key{TenantID: "t1", Scope: scope.Workspace, WorkspaceID: "w2"})
	insertDoc(t, s, "doc-c", scope.Key{TenantID: "t1", Scope: scope.Tenant})

	vis := scope.NewVisibility("t1", "w1", "")
	docs, total, err := s.ListDocuments(ctx, vis, ListFilters{})
	require.NoError(t, err)
	require.Equal(t, 2, total) // doc-a (workspace w1) and doc-c (tenant-wide)

	ids := map[string]bool{}
	for _, d := range docs {
		ids[d.DocID] = true
	}
	require.True(t, ids["doc-a"])
	require.True(t, ids["doc-c"])
	require.False(t, ids["doc-b"])
}

func TestListDocumentsEmptyVisibilityReturnsNothing(t *testing.T) {
	s := openTestStore(t)
	insertDoc(t, s, "doc-a", scope.Key{TenantID: "t1", Scope: scope.Tenant})

	docs, total, err := s.ListDocuments(context.Background(), scope.Visibility{}, ListFilters{})
	require.NoError(t, err)
	require.Equal(t, 0, total)
	require.Empty(t, docs)
}

func TestCountsByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	vis := scope.NewVisibility("t1", "", "")

	insertDoc(t, s, "doc-1", scope.Key{TenantID: "t1", Scope: scope.Tenant})
	insertDoc(t, s, "doc-2", scope.Key{TenantID: "t1", Scope: scope.Tenant})

	indexed := model.StatusIndexed
	require.NoError(t, s.UpdateDocument(ctx, "doc-2", UpdateFields{Status: &indexed}))

	counts, err := s.CountsByStatus(ctx, vis)
	require.NoError(t, err)
	require.Equal(t, 2, counts.Total)
	require.Equal(t, 1, counts.Queued)
	require.Equal(t, 1, counts.Indexed)
}

func TestUpdateDocumentNotFound(t *testing.T) {
	s := openTestStore(t)
	status := model.StatusFailed
	err := s.UpdateDocument(context.Background(), "missing", UpdateFields{Status: &status})
	require.Error(t, err)
	require.Equal(t, ragerr.NotFound, ragerr.KindOf(err))
}

func TestUpdateDocumentPartialFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	insertDoc(t, s, "doc-1", scope.Key{TenantID: "t1", Scope: scope.Tenant})

	progress := 55
	stage := model.StageEmbedding
	require.NoError(t, s.UpdateDocument(ctx, "doc-1", UpdateFields{Progress: &progress, Stage: &stage}))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, 55, got.Progress)
	require.Equal(t, model.StageEmbedding, got.StageValue)
	require.Equal(t, model.StatusQueued, got.Status) // untouched
}
