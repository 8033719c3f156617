package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/extract"
	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/progress"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/retrieval"
	"github.com/ragline/ragline/internal/store/graph"
	"github.com/ragline/ragline/internal/store/meta"
	"github.com/ragline/ragline/internal/store/queue"
	"github.com/sirupsen/logrus"
)

// Server groups every dependency a handler might need. It is the gin
// counterpart of the teacher's package-level handler functions, which
// closed over a single global server instance.
type Server struct {
	Config    *config.Config
	Meta      meta.Store
	Queue     queue.Queue
	Graph     graph.Store
	Retrieval *retrieval.Engine
	Broadcast *progress.Broadcaster
	Health    *HealthChecker
	Logger    *logrus.Logger
}

// Router builds the gin engine with every route from spec.md §6 wired
// up.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.Logger))

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/v1", AuthMiddleware(s.Config), VisibilityMiddleware())
	v1.GET("/whoami", s.handleWhoami)
	v1.POST("/ingest/document", s.handleIngestDocument)
	v1.GET("/documents/:doc_id", s.handleGetDocument)
	v1.GET("/documents", s.handleListDocuments)
	v1.GET("/documents/counts", s.handleDocumentCounts)
	v1.GET("/ingestions/active", s.handleActiveIngestions)
	v1.GET("/ingestions/stream", s.handleIngestionsStream)
	v1.POST("/retrieve", s.handleRetrieve)
	v1.GET("/graph/entities", s.handleGraphEntities)
	v1.GET("/graph/entities/:entity_id/chunks", s.handleEntityChunks)
	v1.GET("/graph/documents/:doc_id/entities", s.handleDocumentEntities)

	return r
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"latency_ms":  time.Since(start).Milliseconds(),
			"method":      c.Request.Method,
		}).Info("request")
	}
}

func (s *Server) handleWhoami(c *gin.Context) {
	vis := visibility(c)
	resp := gin.H{"tenant_id": vis.TenantID}
	if vis.WorkspaceID != "" {
		resp["workspace_id"] = vis.WorkspaceID
	}
	if vis.PrincipalID != "" {
		resp["principal_id"] = vis.PrincipalID
	}
	ok(c, http.StatusOK, resp)
}

// sanitizeBasename drops path traversal and keeps only the basename,
// per spec.md §6's filesystem-layout rule.
func sanitizeBasename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == ".." || base == "/" || base == "" {
		return "upload"
	}
	return base
}

func (s *Server) handleIngestDocument(c *gin.Context) {
	rawScope := c.PostForm("scope")
	key, err := resolveScope(c, rawScope)
	if err != nil {
		failErr(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "missing file")
		return
	}
	if fileHeader.Size == 0 {
		fail(c, http.StatusBadRequest, "empty file")
		return
	}

	docID := uuid.NewString()
	destDir := filepath.Join(s.Config.DataDir, "uploads", key.TenantID, docID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		failErr(c, ragerr.Wrap(ragerr.Internal, "create upload dir", err))
		return
	}
	destPath := filepath.Join(destDir, sanitizeBasename(fileHeader.Filename))

	if err := c.SaveUploadedFile(fileHeader, destPath); err != nil {
		failErr(c, ragerr.Wrap(ragerr.Internal, "save upload", err))
		return
	}

	headerBytes, _ := readHeader(destPath)
	if !extract.IsSupported(fileHeader.Filename, headerBytes) {
		fail(c, http.StatusBadRequest, "unsupported file type")
		return
	}

	hash, err := hashFile(destPath)
	if err != nil {
		failErr(c, ragerr.Wrap(ragerr.Internal, "hash upload", err))
		return
	}

	doc := &model.Document{
		DocID:       docID,
		Key:         key,
		Filename:    fileHeader.Filename,
		ContentType: extract.DetectContentType(headerBytes),
		StoragePath: destPath,
		ContentHash: hash,
		Status:      model.StatusQueued,
		StageValue:  model.StageQueued,
		Progress:    0,
	}
	if err := s.Meta.InsertDocument(c.Request.Context(), doc); err != nil {
		failErr(c, err)
		return
	}

	if err := s.Queue.Push(c.Request.Context(), model.Job{DocID: docID}); err != nil {
		failErr(c, err)
		return
	}

	ev := model.ProgressEvent{
		DocID: docID, Key: key, Filename: doc.Filename,
		Stage: model.PQueued, Progress: 0, Timestamp: time.Now().UTC(),
	}
	_ = s.Queue.SetProgress(c.Request.Context(), docID, ev, s.Config.ProgressSnapshotTTL)
	_ = s.Queue.Publish(c.Request.Context(), ev)

	ok(c, http.StatusOK, gin.H{"doc_id": docID, "status": "queued"})
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Server) handleGetDocument(c *gin.Context) {
	docID := c.Param("doc_id")
	doc, err := s.Meta.GetDocument(c.Request.Context(), docID)
	if err != nil {
		failErr(c, err)
		return
	}
	if !visibility(c).Contains(doc.Key) {
		fail(c, http.StatusNotFound, "document not found")
		return
	}
	ok(c, http.StatusOK, doc)
}

func (s *Server) handleListDocuments(c *gin.Context) {
	filters := meta.ListFilters{
		Sort:   c.DefaultQuery("sort", "created_at"),
		Order:  c.DefaultQuery("order", "desc"),
		Limit:  queryInt(c, "limit", 100),
		Offset: queryInt(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		st := model.Status(raw)
		filters.Status = &st
	}

	docs, total, err := s.Meta.ListDocuments(c.Request.Context(), visibility(c), filters)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"documents": docs, "total": total})
}

func (s *Server) handleDocumentCounts(c *gin.Context) {
	counts, err := s.Meta.CountsByStatus(c.Request.Context(), visibility(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, counts)
}

// activeStatuses are the Document states spec.md §4.9 considers
// "active" for GET /v1/ingestions/active.
var activeStatuses = []model.Status{model.StatusQueued, model.StatusProcessing}

func (s *Server) handleActiveIngestions(c *gin.Context) {
	vis := visibility(c)
	var docs []*model.Document
	for _, st := range activeStatuses {
		status := st
		rows, _, err := s.Meta.ListDocuments(c.Request.Context(), vis, meta.ListFilters{Status: &status, Limit: 500})
		if err != nil {
			failErr(c, err)
			return
		}
		docs = append(docs, rows...)
	}
	events, err := s.Broadcast.ActiveSnapshot(c.Request.Context(), docs, vis)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"active": events})
}

func (s *Server) handleIngestionsStream(c *gin.Context) {
	vis := visibility(c)
	feed := s.Broadcast.Subscribe(c.Request.Context(), vis)
	defer feed.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	fmt.Fprintf(c.Writer, "data: {\"type\":\"connected\"}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(progress.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, okRead := <-feed.Events:
			if !okRead {
				return
			}
			writeSSE(c.Writer, ev)
		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeSSE(w gin.ResponseWriter, ev model.ProgressEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	w.Flush()
}

func (s *Server) handleRetrieve(c *gin.Context) {
	var req struct {
		Query string   `json:"query"`
		Limit int      `json:"limit"`
		Alpha *float64 `json:"alpha"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
		fail(c, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Limit > 50 {
		req.Limit = 50
	}
	alpha := s.Retrieval.DefaultAlpha()
	if req.Alpha != nil {
		if *req.Alpha < 0 || *req.Alpha > 1 {
			fail(c, http.StatusBadRequest, "alpha must be between 0 and 1")
			return
		}
		alpha = *req.Alpha
	}

	result, err := s.Retrieval.Retrieve(c.Request.Context(), req.Query, req.Limit, alpha, visibility(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, result)
}

func (s *Server) handleGraphEntities(c *gin.Context) {
	limit := clamp(queryInt(c, "limit", 50), 1, 500)
	results, err := s.Graph.TopEntities(c.Request.Context(), c.Query("q"), c.Query("entity_type"), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"entities": results})
}

func (s *Server) handleEntityChunks(c *gin.Context) {
	limit := clamp(queryInt(c, "limit", 25), 1, 200)
	chunks, err := s.Graph.ChunksForEntity(c.Request.Context(), c.Param("entity_id"), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	vis := visibility(c)
	visible := make([]interface{}, 0, len(chunks))
	for _, ch := range chunks {
		if vis.Contains(ch.Key) {
			visible = append(visible, ch)
		}
	}
	ok(c, http.StatusOK, gin.H{"chunks": visible})
}

func (s *Server) handleDocumentEntities(c *gin.Context) {
	docID := c.Param("doc_id")
	doc, err := s.Meta.GetDocument(c.Request.Context(), docID)
	if err != nil {
		failErr(c, err)
		return
	}
	if !visibility(c).Contains(doc.Key) {
		fail(c, http.StatusNotFound, "document not found")
		return
	}
	limit := clamp(queryInt(c, "limit", 50), 1, 500)
	results, err := s.Graph.EntitiesForDocument(c.Request.Context(), docID, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"entities": results})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
