// Package ingestworker runs the document ingestion state machine from
// spec.md §4.7: queued -> processing -> reading -> chunking ->
// embedding -> entities -> neo4j -> indexed, with a single failed
// terminal state reachable from any step. Concurrency is bounded by an
// ants.Pool, the same worker-pool library and Submit/Tune idiom
// poiesic-memorit's ingestion.Pipeline uses for its embedding and
// concept-extraction pools, generalized here to the whole per-document
// pipeline and made runtime-adjustable per spec.md §5's "concurrency in
// [1,32], adjustable at runtime."
package ingestworker

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/ragline/ragline/internal/chunker"
	"github.com/ragline/ragline/internal/entity"
	"github.com/ragline/ragline/internal/extract"
	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/remote"
	"github.com/ragline/ragline/internal/store/graph"
	"github.com/ragline/ragline/internal/store/meta"
	"github.com/ragline/ragline/internal/store/queue"
	"github.com/ragline/ragline/internal/store/vector"
	"github.com/sirupsen/logrus"
)

// Config bounds the pipeline's chunking window and collection naming;
// everything remote-call-shaped is injected via the client interfaces
// below so fakes can stand in for tests.
type Config struct {
	WindowTokens      int
	OverlapTokens     int
	VectorCollection  string
	VectorDimension   int
	HybridAlpha       float64
	ProgressSnapshot  time.Duration
	DequeueTimeout    time.Duration
}

// Worker dequeues ingestion jobs and drives them through the pipeline.
type Worker struct {
	meta     meta.Store
	vector   vector.Store
	graph    graph.Store
	queue    queue.Queue
	embedder remote.Embedder
	chat     remote.Chat
	counter  *chunker.TokenCounter
	cfg      Config
	pool     *ants.Pool
	logger   *logrus.Logger
}

// New builds a Worker with an ants.Pool sized to concurrency.
func New(
	metaStore meta.Store,
	vectorStore vector.Store,
	graphStore graph.Store,
	q queue.Queue,
	embedder remote.Embedder,
	chat remote.Chat,
	counter *chunker.TokenCounter,
	cfg Config,
	concurrency int,
	logger *logrus.Logger,
) (*Worker, error) {
	if logger == nil {
		logger = logrus.New()
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("ingestworker: new pool: %w", err)
	}
	return &Worker{
		meta: metaStore, vector: vectorStore, graph: graphStore, queue: q,
		embedder: embedder, chat: chat, counter: counter, cfg: cfg,
		pool: pool, logger: logger,
	}, nil
}

// SetConcurrency adjusts the worker pool size at runtime for in-process
// callers; `ragctl worker set-concurrency` does not reach it.
func (w *Worker) SetConcurrency(n int) error {
	if n < 1 || n > 32 {
		return fmt.Errorf("ingestworker: concurrency must be in [1,32], got %d", n)
	}
	w.pool.Tune(n)
	return nil
}

// Concurrency reports the pool's current configured size.
func (w *Worker) Concurrency() int { return w.pool.Cap() }

// Release tears down the pool. Call after Run's context is cancelled.
func (w *Worker) Release() { w.pool.Release() }

// Run polls the queue until ctx is cancelled, submitting each dequeued
// job to the pool so up to Concurrency documents process at once.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.BlockingPop(ctx, w.cfg.DequeueTimeout)
		if err != nil {
			w.logger.WithError(err).Warn("ingestworker: dequeue failed")
			continue
		}
		if job == nil {
			continue // timed out, no job
		}

		jobCopy := *job
		if err := w.pool.Submit(func() { w.process(context.Background(), jobCopy) }); err != nil {
			w.logger.WithError(err).WithField("doc_id", jobCopy.DocID).Error("ingestworker: submit failed")
		}
	}
}

func (w *Worker) process(ctx context.Context, job model.Job) {
	log := w.logger.WithField("doc_id", job.DocID)

	doc, err := w.meta.GetDocument(ctx, job.DocID)
	if err != nil {
		log.WithError(err).Warn("ingestworker: document vanished before processing")
		return
	}
	if doc.Terminal() {
		log.Warn("ingestworker: dropping redelivered job for terminal document")
		return
	}

	if err := w.runPipeline(ctx, doc); err != nil {
		log.WithError(err).Error("ingestworker: pipeline failed")
		w.fail(ctx, doc, err)
	}
}

func (w *Worker) runPipeline(ctx context.Context, doc *model.Document) error {
	if err := w.advance(ctx, doc, model.StageProcessing, ""); err != nil {
		return err
	}

	extracted, err := extract.Extract(doc.StoragePath, doc.Filename)
	if err != nil {
		return err
	}
	if err := w.advance(ctx, doc, model.StageReading, ""); err != nil {
		return err
	}

	chunks, err := w.chunkDocument(ctx, extracted)
	if err != nil {
		return err
	}
	if err := w.advance(ctx, doc, model.StageChunking, ""); err != nil {
		return err
	}

	stamped := stampChunks(doc, chunks)
	if err := w.embedAndStore(ctx, doc, stamped); err != nil {
		return err
	}
	if err := w.advance(ctx, doc, model.StageEmbedding, ""); err != nil {
		return err
	}

	entityCount, err := w.extractEntities(ctx, doc, stamped)
	if err != nil {
		return err
	}
	if err := w.advance(ctx, doc, model.StageEntities, ""); err != nil {
		return err
	}

	// LinkChunkEntities already ran per-chunk inside extractEntities;
	// this stage transition reports a distinct progress step for the
	// graph-write phase of the pipeline, per spec.md §4.7.
	if err := w.advance(ctx, doc, model.StageNeo4j, ""); err != nil {
		return err
	}

	return w.finalize(ctx, doc, len(stamped), entityCount)
}

func (w *Worker) chunkDocument(ctx context.Context, doc extract.Document) ([]chunker.Chunk, error) {
	windows := chunker.SlidingWindows(doc.Text, w.cfg.WindowTokens, w.cfg.OverlapTokens)
	var all []chunker.Chunk
	for _, win := range windows {
		cs, err := chunker.Split(ctx, w.chat, w.counter, doc, win)
		if err != nil {
			return nil, err
		}
		all = append(all, cs...)
	}
	return chunker.Dedup(all), nil
}

func stampChunks(doc *model.Document, chunks []chunker.Chunk) []model.Chunk {
	out := make([]model.Chunk, 0, len(chunks))
	for i, c := range chunks {
		out = append(out, model.Chunk{
			ChunkID:      fmt.Sprintf("%s-%04d", doc.DocID, i),
			DocID:        doc.DocID,
			Key:          doc.Key,
			StartChar:    c.StartChar,
			EndChar:      c.EndChar,
			Pages:        c.Pages,
			Title:        c.Title,
			Section:      c.Section,
			Summary:      c.Summary,
			WhyThisChunk: c.WhyThisChunk,
			Text:         c.Text,
		})
	}
	return out
}

func (w *Worker) embedAndStore(ctx context.Context, doc *model.Document, chunks []model.Chunk) error {
	if err := w.vector.EnsureCollection(ctx, w.cfg.VectorCollection, w.cfg.VectorDimension); err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := w.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return ragerr.New(ragerr.MalformedUpstream, "ingestworker: embedder returned mismatched vector count")
	}

	for i, c := range chunks {
		if err := w.vector.Insert(ctx, c, vectors[i]); err != nil {
			return err
		}
	}
	_ = doc
	return nil
}

// extractEntities is best-effort per chunk, per spec.md §4.7: a chunk
// whose entity extraction or graph write fails is logged and skipped,
// never fails the document.
func (w *Worker) extractEntities(ctx context.Context, doc *model.Document, chunks []model.Chunk) (int, error) {
	log := w.logger.WithField("doc_id", doc.DocID)
	seen := map[string]bool{}
	for _, c := range chunks {
		ents, err := entity.Extract(ctx, w.chat, c.Text)
		if err != nil {
			log.WithError(err).WithField("chunk_id", c.ChunkID).Warn("ingestworker: entity extraction failed for chunk, skipping")
			continue
		}
		for _, e := range ents {
			seen[e.EntityID] = true
		}
		if w.graph.Enabled() {
			if err := w.graph.LinkChunkEntities(ctx, c, ents); err != nil {
				log.WithError(err).WithField("chunk_id", c.ChunkID).Warn("ingestworker: graph link failed for chunk, skipping")
			}
		}
	}
	return len(seen), nil
}

// advance persists the new stage/progress and broadcasts it.
func (w *Worker) advance(ctx context.Context, doc *model.Document, stage model.Stage, message string) error {
	progress := model.StageProgress(stage)
	if progress < 0 {
		progress = doc.Progress
	}
	doc.StageValue = stage
	doc.Progress = progress
	doc.Status = model.StatusProcessing

	status := model.StatusProcessing
	if err := w.meta.UpdateDocument(ctx, doc.DocID, meta.UpdateFields{
		Status: &status, Stage: &stage, Progress: &progress,
	}); err != nil {
		return err
	}
	w.emit(ctx, doc, stage, message)
	return nil
}

func (w *Worker) finalize(ctx context.Context, doc *model.Document, chunkCount, entityCount int) error {
	status := model.StatusIndexed
	stage := model.StageIndexed
	progress := model.StageProgress(stage)
	doc.Status, doc.StageValue, doc.Progress = status, stage, progress
	doc.ChunkCount, doc.EntityCount = chunkCount, entityCount

	if err := w.meta.UpdateDocument(ctx, doc.DocID, meta.UpdateFields{
		Status: &status, Stage: &stage, Progress: &progress,
		ChunkCount: &chunkCount, EntityCount: &entityCount,
	}); err != nil {
		return err
	}
	w.emit(ctx, doc, stage, "")
	return nil
}

func (w *Worker) fail(ctx context.Context, doc *model.Document, cause error) {
	status := model.StatusFailed
	stage := model.StageFailed
	msg := cause.Error()
	doc.Status, doc.StageValue, doc.ErrorMessage = status, stage, msg

	if err := w.meta.UpdateDocument(ctx, doc.DocID, meta.UpdateFields{
		Status: &status, Stage: &stage, ErrorMessage: &msg,
	}); err != nil {
		w.logger.WithError(err).WithField("doc_id", doc.DocID).Error("ingestworker: failed to persist failure")
	}
	w.emit(ctx, doc, stage, msg)
}

func (w *Worker) emit(ctx context.Context, doc *model.Document, stage model.Stage, message string) {
	ev := model.ProgressEvent{
		DocID:     doc.DocID,
		Key:       doc.Key,
		Filename:  doc.Filename,
		Stage:     model.ProgressStageOf(stage),
		Progress:  doc.Progress,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := w.queue.SetProgress(ctx, doc.DocID, ev, w.cfg.ProgressSnapshot); err != nil {
		w.logger.WithError(err).Warn("ingestworker: set progress snapshot failed")
	}
	if err := w.queue.Publish(ctx, ev); err != nil {
		w.logger.WithError(err).Warn("ingestworker: publish progress failed")
	}
}
