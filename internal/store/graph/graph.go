// Package graph is the GraphStore adapter (spec.md §4.3) over Neo4j,
// using github.com/neo4j/neo4j-go-driver/v5 as declared in
// vasic-digital-SuperAgent's go.mod. When disabled, or unreachable at
// startup, the client is disabled and every call returns an empty result
// without an error. A query that fails after a successful startup returns
// a DependencyTransient error.
package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/scope"
	"github.com/sirupsen/logrus"
)

// Expanded is a chunk reached via shared entities with a seed chunk.
type Expanded struct {
	Chunk              model.Chunk
	SharedEntityCount  int
	EntityNames        []string
}

// EntitySummary is a row from top_entities / entities_for_document.
type EntitySummary struct {
	Entity   model.Entity
	Mentions int
}

// Store is the GraphStore interface from spec.md §4.3.
type Store interface {
	Enabled() bool
	LinkChunkEntities(ctx context.Context, chunk model.Chunk, entities []model.Entity) error
	ExpandBySharedEntities(ctx context.Context, seedChunkIDs []string, vis scope.Visibility, limit int) ([]Expanded, error)
	TopEntities(ctx context.Context, q, entityType string, limit int) ([]EntitySummary, error)
	ChunksForEntity(ctx context.Context, entityID string, limit int) ([]model.Chunk, error)
	EntitiesForDocument(ctx context.Context, docID string, limit int) ([]EntitySummary, error)
	Close(ctx context.Context) error
}

// Client implements Store. When enabled is false it never dials Neo4j
// and every method is a cheap no-op.
type Client struct {
	driver  neo4j.DriverWithContext
	enabled bool
	logger  *logrus.Logger
}

// New connects to uri (bolt://...) when enabled is true. When enabled is
// false, a Client is still returned so callers don't need a separate
// nil-check path; every method just returns empty results.
func New(ctx context.Context, uri, user, password string, enabled bool, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Client{enabled: enabled, logger: logger}
	if !enabled {
		return c, nil
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyFatal, "graph: connect", err)
	}
	verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		logger.WithError(err).Warn("graph: neo4j unreachable at startup, degrading to disabled")
		c.enabled = false
		return c, nil
	}
	c.driver = driver
	return c, nil
}

func (c *Client) Enabled() bool { return c.enabled }

func (c *Client) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

func (c *Client) session(ctx context.Context) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
}

// LinkChunkEntities MERGEs the chunk node, each entity node, and the
// MENTIONS relation, so repeated calls with identical input are
// idempotent (spec.md §4.3, §8 round-trip property).
func (c *Client) LinkChunkEntities(ctx context.Context, chunk model.Chunk, entities []model.Entity) error {
	if !c.enabled {
		return nil
	}
	session := c.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (c:Chunk {chunkId: $chunkId})
			SET c.docId = $docId, c.tenantId = $tenantId, c.scope = $scope,
			    c.workspaceId = $workspaceId, c.principalId = $principalId,
			    c.title = $title, c.section = $section, c.text = $text
		`, map[string]any{
			"chunkId": chunk.ChunkID, "docId": chunk.DocID, "tenantId": chunk.TenantID,
			"scope": string(chunk.Scope), "workspaceId": chunk.WorkspaceID, "principalId": chunk.PrincipalID,
			"title": chunk.Title, "section": chunk.Section, "text": chunk.Text,
		})
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			_, err := tx.Run(ctx, `
				MERGE (e:Entity {entityId: $entityId})
				SET e.name = $name, e.type = $type
				WITH e
				MATCH (c:Chunk {chunkId: $chunkId})
				MERGE (c)-[:MENTIONS]->(e)
			`, map[string]any{
				"entityId": e.EntityID, "name": e.Name, "type": e.Type, "chunkId": chunk.ChunkID,
			})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return ragerr.Wrap(ragerr.DependencyTransient, "graph: link chunk entities", err)
	}
	return nil
}

func (c *Client) ExpandBySharedEntities(ctx context.Context, seedChunkIDs []string, vis scope.Visibility, limit int) ([]Expanded, error) {
	if !c.enabled || len(seedChunkIDs) == 0 {
		return nil, nil
	}
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			MATCH (seed:Chunk)-[:MENTIONS]->(e:Entity)<-[:MENTIONS]-(c:Chunk)
			WHERE seed.chunkId IN $seedIds AND NOT c.chunkId IN $seedIds
			WITH c, count(DISTINCT e) AS sharedCount, collect(DISTINCT e.name) AS entityNames
			RETURN c.chunkId AS chunkId, c.docId AS docId, c.tenantId AS tenantId, c.scope AS scope,
			       c.workspaceId AS workspaceId, c.principalId AS principalId,
			       c.title AS title, c.section AS section, c.text AS text,
			       sharedCount, entityNames
			ORDER BY sharedCount DESC
			LIMIT $limit
		`, map[string]any{
			"seedIds": seedChunkIDs,
			"limit":   limit,
		})
		if err != nil {
			return nil, err
		}
		var out []Expanded
		for rows.Next(ctx) {
			rec := rows.Record()
			chunkID, _ := rec.Get("chunkId")
			docID, _ := rec.Get("docId")
			tenantID, _ := rec.Get("tenantId")
			scopeVal, _ := rec.Get("scope")
			wsID, _ := rec.Get("workspaceId")
			pID, _ := rec.Get("principalId")
			title, _ := rec.Get("title")
			section, _ := rec.Get("section")
			text, _ := rec.Get("text")
			shared, _ := rec.Get("sharedCount")
			names, _ := rec.Get("entityNames")

			ch2 := model.Chunk{
				ChunkID: toStr(chunkID), DocID: toStr(docID),
				Key: scope.Key{
					TenantID: toStr(tenantID), Scope: scope.Level(toStr(scopeVal)),
					WorkspaceID: toStr(wsID), PrincipalID: toStr(pID),
				},
				Title: toStr(title), Section: toStr(section), Text: toStr(text),
			}
			if !vis.Contains(ch2.Key) {
				continue
			}
			exp := Expanded{Chunk: ch2, SharedEntityCount: toInt(shared)}
			if list, ok := names.([]any); ok {
				for _, n := range list {
					exp.EntityNames = append(exp.EntityNames, toStr(n))
				}
			}
			out = append(out, exp)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyTransient, "graph: expand by shared entities", err)
	}
	return result.([]Expanded), nil
}

func (c *Client) TopEntities(ctx context.Context, q, entityType string, limit int) ([]EntitySummary, error) {
	if !c.enabled {
		return nil, nil
	}
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			MATCH (e:Entity)<-[:MENTIONS]-(c:Chunk)
			WHERE ($q = '' OR toLower(e.name) CONTAINS toLower($q))
			  AND ($type = '' OR e.type = $type)
			WITH e, count(c) AS mentions
			RETURN e.entityId AS entityId, e.name AS name, e.type AS type, mentions
			ORDER BY mentions DESC
			LIMIT $limit
		`, map[string]any{"q": q, "type": entityType, "limit": limit})
		if err != nil {
			return nil, err
		}
		var out []EntitySummary
		for rows.Next(ctx) {
			rec := rows.Record()
			id, _ := rec.Get("entityId")
			name, _ := rec.Get("name")
			typ, _ := rec.Get("type")
			mentions, _ := rec.Get("mentions")
			out = append(out, EntitySummary{
				Entity:   model.Entity{EntityID: toStr(id), Name: toStr(name), Type: toStr(typ)},
				Mentions: toInt(mentions),
			})
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyTransient, "graph: top entities", err)
	}
	return result.([]EntitySummary), nil
}

func (c *Client) ChunksForEntity(ctx context.Context, entityID string, limit int) ([]model.Chunk, error) {
	if !c.enabled {
		return nil, nil
	}
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			MATCH (e:Entity {entityId: $entityId})<-[:MENTIONS]-(c:Chunk)
			RETURN c.chunkId AS chunkId, c.docId AS docId, c.tenantId AS tenantId, c.scope AS scope,
			       c.workspaceId AS workspaceId, c.principalId AS principalId,
			       c.title AS title, c.section AS section, c.text AS text
			LIMIT $limit
		`, map[string]any{"entityId": entityID, "limit": limit})
		if err != nil {
			return nil, err
		}
		var out []model.Chunk
		for rows.Next(ctx) {
			rec := rows.Record()
			chunkID, _ := rec.Get("chunkId")
			docID, _ := rec.Get("docId")
			tenantID, _ := rec.Get("tenantId")
			scopeVal, _ := rec.Get("scope")
			wsID, _ := rec.Get("workspaceId")
			pID, _ := rec.Get("principalId")
			title, _ := rec.Get("title")
			section, _ := rec.Get("section")
			text, _ := rec.Get("text")
			out = append(out, model.Chunk{
				ChunkID: toStr(chunkID), DocID: toStr(docID),
				Key: scope.Key{
					TenantID: toStr(tenantID), Scope: scope.Level(toStr(scopeVal)),
					WorkspaceID: toStr(wsID), PrincipalID: toStr(pID),
				},
				Title: toStr(title), Section: toStr(section), Text: toStr(text),
			})
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyTransient, "graph: chunks for entity", err)
	}
	return result.([]model.Chunk), nil
}

func (c *Client) EntitiesForDocument(ctx context.Context, docID string, limit int) ([]EntitySummary, error) {
	if !c.enabled {
		return nil, nil
	}
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			MATCH (c:Chunk {docId: $docId})-[:MENTIONS]->(e:Entity)
			WITH e, count(c) AS mentions
			RETURN e.entityId AS entityId, e.name AS name, e.type AS type, mentions
			ORDER BY mentions DESC
			LIMIT $limit
		`, map[string]any{"docId": docID, "limit": limit})
		if err != nil {
			return nil, err
		}
		var out []EntitySummary
		for rows.Next(ctx) {
			rec := rows.Record()
			id, _ := rec.Get("entityId")
			name, _ := rec.Get("name")
			typ, _ := rec.Get("type")
			mentions, _ := rec.Get("mentions")
			out = append(out, EntitySummary{
				Entity:   model.Entity{EntityID: toStr(id), Name: toStr(name), Type: toStr(typ)},
				Mentions: toInt(mentions),
			})
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyTransient, "graph: entities for document", err)
	}
	return result.([]EntitySummary), nil
}

func toStr(v any) string {
	s, _ := v.(string)
	return s
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}
