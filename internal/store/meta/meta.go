// Package meta is the MetaStore adapter (spec.md §4.1): document rows,
// scope-filtered listing, and atomic per-document field updates, backed
// by SQLite the way the teacher repo's internal/store package was.
package meta

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/scope"
)

// Store is the MetaStore interface from spec.md §4.1.
type Store interface {
	InsertDocument(ctx context.Context, d *model.Document) error
	GetDocument(ctx context.Context, docID string) (*model.Document, error)
	ListDocuments(ctx context.Context, vis scope.Visibility, f ListFilters) ([]*model.Document, int, error)
	CountsByStatus(ctx context.Context, vis scope.Visibility) (Counts, error)
	UpdateDocument(ctx context.Context, docID string, fields UpdateFields) error
	Close() error
}

// ListFilters captures the pagination and sort parameters of
// GET /v1/documents.
type ListFilters struct {
	Status *model.Status
	Limit  int
	Offset int
	Sort   string
	Order  string
}

// Counts is the shape returned by GET /v1/documents/counts.
type Counts struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Indexed    int `json:"indexed"`
	Failed     int `json:"failed"`
}

// UpdateFields is a partial update to a Document row. Nil fields are
// left untouched. The update is applied in a single statement so it is
// atomic per document, as required by spec.md §4.1.
type UpdateFields struct {
	Status       *model.Status
	Stage        *model.Stage
	Progress     *int
	ErrorMessage *string
	ChunkCount   *int
	EntityCount  *int
}

var allowedSort = map[string]bool{
	"created_at": true, "updated_at": true, "filename": true, "status": true,
	"stage": true, "progress": true, "chunk_count": true, "entity_count": true,
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id       TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	scope        TEXT NOT NULL,
	workspace_id TEXT NOT NULL DEFAULT '',
	principal_id TEXT NOT NULL DEFAULT '',
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	stage        TEXT NOT NULL,
	progress     INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	chunk_count  INTEGER NOT NULL DEFAULT 0,
	entity_count INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_scope ON documents(tenant_id, scope, workspace_id, principal_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`

// SQLiteStore implements Store over a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite meta database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyFatal, "meta: open sqlite", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, ragerr.Wrap(ragerr.DependencyFatal, "meta: apply schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) InsertDocument(ctx context.Context, d *model.Document) error {
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id, tenant_id, scope, workspace_id, principal_id, filename,
			content_type, storage_path, content_hash, status, stage, progress, error_message,
			chunk_count, entity_count, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.DocID, d.TenantID, string(d.Scope), d.WorkspaceID, d.PrincipalID, d.Filename,
		d.ContentType, d.StoragePath, d.ContentHash, string(d.Status), string(d.StageValue),
		d.Progress, d.ErrorMessage, d.ChunkCount, d.EntityCount, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return ragerr.Wrap(ragerr.DependencyFatal, "meta: insert document", err)
	}
	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc_id, tenant_id, scope, workspace_id, principal_id,
		filename, content_type, storage_path, content_hash, status, stage, progress,
		error_message, chunk_count, entity_count, created_at, updated_at
		FROM documents WHERE doc_id = ?`, docID)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ragerr.New(ragerr.NotFound, "meta: document not found")
	}
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyFatal, "meta: get document", err)
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	d := &model.Document{}
	var scopeStr, status, stage string
	if err := row.Scan(&d.DocID, &d.TenantID, &scopeStr, &d.WorkspaceID, &d.PrincipalID,
		&d.Filename, &d.ContentType, &d.StoragePath, &d.ContentHash, &status, &stage,
		&d.Progress, &d.ErrorMessage, &d.ChunkCount, &d.EntityCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Scope = scope.Level(scopeStr)
	d.Status = model.Status(status)
	d.StageValue = model.Stage(stage)
	return d, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, vis scope.Visibility, f ListFilters) ([]*model.Document, int, error) {
	where, args := visibilityWhere(vis)
	if f.Status != nil {
		where += " AND status = ?"
		args = append(args, string(*f.Status))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM documents WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, ragerr.Wrap(ragerr.DependencyFatal, "meta: count documents", err)
	}

	sortCol := "created_at"
	if allowedSort[f.Sort] {
		sortCol = f.Sort
	}
	order := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		order = "ASC"
	}

	limit, offset := f.Limit, f.Offset
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT doc_id, tenant_id, scope, workspace_id, principal_id,
		filename, content_type, storage_path, content_hash, status, stage, progress,
		error_message, chunk_count, entity_count, created_at, updated_at
		FROM documents WHERE %s ORDER BY %s %s LIMIT ? OFFSET ?`, where, sortCol, order)

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, ragerr.Wrap(ragerr.DependencyFatal, "meta: list documents", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, ragerr.Wrap(ragerr.DependencyFatal, "meta: scan document", err)
		}
		docs = append(docs, d)
	}
	return docs, total, nil
}

func (s *SQLiteStore) CountsByStatus(ctx context.Context, vis scope.Visibility) (Counts, error) {
	where, args := visibilityWhere(vis)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM documents WHERE "+where+" GROUP BY status", args...)
	if err != nil {
		return Counts{}, ragerr.Wrap(ragerr.DependencyFatal, "meta: counts by status", err)
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, ragerr.Wrap(ragerr.DependencyFatal, "meta: scan counts", err)
		}
		c.Total += n
		switch model.Status(status) {
		case model.StatusQueued:
			c.Queued = n
		case model.StatusProcessing:
			c.Processing = n
		case model.StatusIndexed:
			c.Indexed = n
		case model.StatusFailed:
			c.Failed = n
		}
	}
	return c, nil
}

func (s *SQLiteStore) UpdateDocument(ctx context.Context, docID string, f UpdateFields) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if f.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Stage != nil {
		sets = append(sets, "stage = ?")
		args = append(args, string(*f.Stage))
	}
	if f.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *f.Progress)
	}
	if f.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *f.ErrorMessage)
	}
	if f.ChunkCount != nil {
		sets = append(sets, "chunk_count = ?")
		args = append(args, *f.ChunkCount)
	}
	if f.EntityCount != nil {
		sets = append(sets, "entity_count = ?")
		args = append(args, *f.EntityCount)
	}

	args = append(args, docID)
	query := fmt.Sprintf("UPDATE documents SET %s WHERE doc_id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ragerr.Wrap(ragerr.DependencyFatal, "meta: update document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ragerr.New(ragerr.NotFound, "meta: document not found")
	}
	return nil
}

// visibilityWhere builds the WHERE clause (minus "WHERE") that restricts
// rows to the scope keys in vis.Keys(), per spec.md §4.1.
func visibilityWhere(vis scope.Visibility) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	for _, k := range vis.Keys() {
		switch k.Scope {
		case scope.Tenant:
			clauses = append(clauses, "(tenant_id = ? AND scope = 'tenant')")
			args = append(args, k.TenantID)
		case scope.Workspace:
			clauses = append(clauses, "(tenant_id = ? AND scope = 'workspace' AND workspace_id = ?)")
			args = append(args, k.TenantID, k.WorkspaceID)
		case scope.User:
			clauses = append(clauses, "(tenant_id = ? AND scope = 'user' AND workspace_id = ? AND principal_id = ?)")
			args = append(args, k.TenantID, k.WorkspaceID, k.PrincipalID)
		}
	}
	if len(clauses) == 0 {
		return "1 = 0", nil
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}
