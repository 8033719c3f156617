package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeEntityName trims, collapses internal whitespace, and
// case-folds a raw entity name for ID derivation (spec.md §4.6). The
// display Name on the Entity struct keeps the trimmed-but-not-case-folded
// form.
func NormalizeEntityName(raw string) string {
	fields := strings.Fields(raw)
	return strings.ToLower(strings.Join(fields, " "))
}

// TrimmedEntityName trims and collapses whitespace without case-folding,
// for display purposes.
func TrimmedEntityName(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// StableEntityID computes entity_id = stable_hash(normalized_name ||
// "\0" || type).
func StableEntityID(normalizedName, entityType string) string {
	h := sha256.New()
	h.Write([]byte(normalizedName))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(entityType))))
	return hex.EncodeToString(h.Sum(nil))
}

// StageProgress maps a persisted Stage to its canonical progress
// percentage per the state machine in spec.md §4.7.
func StageProgress(s Stage) int {
	switch s {
	case StageQueued:
		return 0
	case StageProcessing:
		return 5
	case StageReading:
		return 10
	case StageChunking:
		return 35
	case StageEmbedding:
		return 55
	case StageEntities:
		return 85
	case StageNeo4j:
		return 95
	case StageIndexed:
		return 100
	case StageFailed:
		return -1 // caller keeps the last known progress
	}
	return 0
}

// ProgressStageOf maps a persisted Stage to the wire ProgressStage value.
// The two share the same vocabulary, so the string is carried over as is.
func ProgressStageOf(s Stage) ProgressStage {
	return ProgressStage(s)
}
