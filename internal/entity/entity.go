// Package entity extracts named entities from a chunk of text via the
// chat LLM and assigns them stable, normalization-based IDs, per
// spec.md §4.6.
package entity

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/remote"
)

const systemPrompt = `Extract named entities mentioned in the text: people, organizations, locations, products, and other proper nouns worth linking across documents.
Respond with a single JSON object: {"entities": [{"name": string, "type": string}, ...]}.
Use short entity type labels such as "person", "organization", "location", "product", "event", "other". Omit generic nouns and pronouns. Deduplicate obvious repeats within your answer.`

type extractedSet struct {
	Entities []extracted `json:"entities"`
}

type extracted struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Extract calls the chat LLM on chunkText and returns normalized,
// stably-identified entities. Entries with an empty name or type after
// trimming are dropped rather than failing the whole call.
func Extract(ctx context.Context, chat remote.Chat, chunkText string) ([]model.Entity, error) {
	raw, err := chat.CompleteJSON(ctx, systemPrompt, chunkText)
	if err != nil {
		return nil, err
	}

	var parsed extractedSet
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, ragerr.Wrap(ragerr.MalformedUpstream, "entity: parse llm entity response", err)
	}

	seen := map[string]bool{}
	entities := make([]model.Entity, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		name := model.TrimmedEntityName(e.Name)
		entType := strings.ToLower(strings.TrimSpace(e.Type))
		if name == "" || entType == "" {
			continue
		}

		normalized := model.NormalizeEntityName(name)
		id := model.StableEntityID(normalized, entType)
		if seen[id] {
			continue
		}
		seen[id] = true

		entities = append(entities, model.Entity{
			EntityID: id,
			Name:     name,
			Type:     entType,
		})
	}
	return entities, nil
}
