// Package model defines the wire and storage shapes of the system: typed
// variants in place of the dynamically-shaped JSON the source system
// passed around for documents, chunks, entities and progress events.
package model

import (
	"time"

	"github.com/ragline/ragline/internal/scope"
)

// Status is the coarse, persisted lifecycle state of a Document.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusIndexed    Status = "indexed"
	StatusFailed     Status = "failed"
)

// Stage is the persisted pipeline stage of a Document. It has the same
// nine values as ProgressStage.
type Stage string

const (
	StageQueued     Stage = "queued"
	StageProcessing Stage = "processing"
	StageReading    Stage = "reading"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageEntities   Stage = "entities"
	StageNeo4j      Stage = "neo4j"
	StageIndexed    Stage = "indexed"
	StageFailed     Stage = "failed"
)

// Document is the metadata shell for an ingested file. Content lives in
// its Chunks; the row itself is mutated by the worker as it progresses
// through the state machine in spec.md §4.7.
type Document struct {
	DocID        string    `json:"doc_id"`
	scope.Key    `json:"scope"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	StoragePath  string    `json:"storage_path"`
	ContentHash  string    `json:"content_hash"`
	Status       Status    `json:"status"`
	StageValue   Stage     `json:"stage"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ChunkCount   int       `json:"chunk_count"`
	EntityCount  int       `json:"entity_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Terminal reports whether the document has reached a terminal status.
func (d *Document) Terminal() bool {
	return d.Status == StatusIndexed || d.Status == StatusFailed
}

// Chunk is an immutable, embedded text atom produced by the chunker.
type Chunk struct {
	ChunkID      string `json:"chunk_id"`
	DocID        string `json:"doc_id"`
	scope.Key    `json:"scope"`
	StartChar    int      `json:"start_char"`
	EndChar      int      `json:"end_char"`
	Pages        []int    `json:"pages"`
	Title        string   `json:"title,omitempty"`
	Section      string   `json:"section,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	WhyThisChunk string   `json:"why_this_chunk,omitempty"`
	Text         string   `json:"text"`
}

// Entity is a named-entity node; the ID is a stable hash of the
// normalized name and type so repeated extraction MERGEs onto the same
// node (spec.md §4.6).
type Entity struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// ProgressStage is the stage vocabulary emitted on ProgressEvent. Its
// values are the same as Stage's.
type ProgressStage string

const (
	PQueued     ProgressStage = "queued"
	PProcessing ProgressStage = "processing"
	PReading    ProgressStage = "reading"
	PChunking   ProgressStage = "chunking"
	PEmbedding  ProgressStage = "embedding"
	PEntities   ProgressStage = "entities"
	PNeo4j      ProgressStage = "neo4j"
	PIndexed    ProgressStage = "indexed"
	PFailed     ProgressStage = "failed"
)

// ProgressEvent is a snapshot of a document's ingestion state, published
// to a broadcast channel and to a short-TTL per-doc key (spec.md §3, §4.9).
type ProgressEvent struct {
	DocID     string        `json:"doc_id"`
	scope.Key `json:"scope"`
	Filename  string        `json:"filename,omitempty"`
	Stage     ProgressStage `json:"stage"`
	Progress  int           `json:"progress"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Job is the queue payload; everything else about a document is looked
// up from the MetaStore when the job is dequeued.
type Job struct {
	DocID string `json:"doc_id"`
}
