// Package vector is the VectorStore adapter (spec.md §4.2): a minimal
// Weaviate REST/GraphQL client over net/http. No example in the
// retrieval pack imports a real Weaviate Go client, so this follows the
// hand-rolled HTTP-client shape (config+doRequest+healthCheck) used for
// the Qdrant adapter in vasic-digital-SuperAgent's
// internal/vectordb/qdrant/client.go, the pack's one concrete example of
// a vector-DB client written directly against an HTTP API.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/scope"
	"github.com/sirupsen/logrus"
)

// Result is one hit from a hybrid_search call.
type Result struct {
	WeaviateUUID string
	Score        float32
	Chunk        model.Chunk
}

// Store is the VectorStore interface from spec.md §4.2.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dimension int) error
	Insert(ctx context.Context, chunk model.Chunk, vector []float32) error
	HybridSearch(ctx context.Context, query string, vector []float32, alpha float64, limit int, vis scope.Visibility) ([]Result, error)
	DeleteByDoc(ctx context.Context, docID string) error
}

// Client implements Store against a Weaviate deployment.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	logger     *logrus.Logger
}

// New builds a Client pointed at baseURL (e.g. http://localhost:8081),
// targeting the Weaviate class named by collection (WEAVIATE_COLLECTION
// in spec.md §6). Every call that reads or writes objects uses this
// name, matching the class EnsureCollection creates.
func New(baseURL, collection string, timeout time.Duration, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL:    baseURL,
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, ragerr.Wrap(ragerr.Internal, "vector: marshal request", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Internal, "vector: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyTransient, "vector: request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyTransient, "vector: read response", err)
	}
	if resp.StatusCode >= 500 {
		return nil, ragerr.New(ragerr.DependencyTransient, fmt.Sprintf("vector: status %d: %s", resp.StatusCode, string(respBody)))
	}
	if resp.StatusCode >= 400 {
		return nil, ragerr.New(ragerr.DependencyFatal, fmt.Sprintf("vector: status %d: %s", resp.StatusCode, string(respBody)))
	}
	return respBody, nil
}

// EnsureCollection is idempotent: it creates the collection in
// externally-supplied-vector mode (Weaviate's "none" vectorizer) if it
// does not already exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension int) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/v1/schema/"+name, nil)
	if err == nil {
		return nil
	}
	if ragerr.KindOf(err) != ragerr.DependencyFatal {
		return err
	}

	payload := map[string]interface{}{
		"class":      name,
		"vectorizer": "none",
		"properties": []map[string]interface{}{
			{"name": "chunkId", "dataType": []string{"text"}},
			{"name": "docId", "dataType": []string{"text"}},
			{"name": "tenantId", "dataType": []string{"text"}},
			{"name": "scope", "dataType": []string{"text"}},
			{"name": "workspaceId", "dataType": []string{"text"}},
			{"name": "principalId", "dataType": []string{"text"}},
			{"name": "title", "dataType": []string{"text"}},
			{"name": "section", "dataType": []string{"text"}},
			{"name": "summary", "dataType": []string{"text"}},
			{"name": "text", "dataType": []string{"text"}},
			{"name": "startChar", "dataType": []string{"int"}},
			{"name": "endChar", "dataType": []string{"int"}},
			{"name": "pages", "dataType": []string{"int[]"}},
		},
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/v1/schema", payload); err != nil {
		return ragerr.Wrap(ragerr.DependencyFatal, "vector: ensure collection", err)
	}
	c.logger.WithField("collection", name).Info("vector collection created")
	return nil
}

type weaviateObject struct {
	Class      string                 `json:"class"`
	ID         string                 `json:"id,omitempty"`
	Vector     []float32              `json:"vector,omitempty"`
	Properties map[string]interface{} `json:"properties"`
}

func (c *Client) Insert(ctx context.Context, chunk model.Chunk, vector []float32) error {
	obj := weaviateObject{
		Class:  c.collection,
		Vector: vector,
		Properties: map[string]interface{}{
			"chunkId":     chunk.ChunkID,
			"docId":       chunk.DocID,
			"tenantId":    chunk.TenantID,
			"scope":       string(chunk.Scope),
			"workspaceId": chunk.WorkspaceID,
			"principalId": chunk.PrincipalID,
			"title":       chunk.Title,
			"section":     chunk.Section,
			"summary":     chunk.Summary,
			"text":        chunk.Text,
			"startChar":   chunk.StartChar,
			"endChar":     chunk.EndChar,
			"pages":       chunk.Pages,
		},
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/v1/objects", obj); err != nil {
		return ragerr.Wrap(ragerr.DependencyTransient, "vector: insert chunk", err)
	}
	return nil
}

// graphQLRequest is the body of a POST /v1/graphql call.
type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLResponse struct {
	Data struct {
		Get map[string][]map[string]interface{} `json:"Get"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// HybridSearch runs Weaviate's GraphQL hybrid operator, mixing BM25 and
// vector similarity by alpha (0=sparse only, 1=dense only), filtered by
// visibility (spec.md §4.2).
func (c *Client) HybridSearch(ctx context.Context, query string, vector []float32, alpha float64, limit int, vis scope.Visibility) ([]Result, error) {
	gql := buildHybridQuery(c.collection, query, vector, alpha, limit, vis)
	body, err := c.doRequest(ctx, http.MethodPost, "/v1/graphql", graphQLRequest{Query: gql})
	if err != nil {
		return nil, err
	}

	var parsed graphQLResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, ragerr.Wrap(ragerr.MalformedUpstream, "vector: parse graphql response", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, ragerr.New(ragerr.DependencyFatal, "vector: graphql error: "+parsed.Errors[0].Message)
	}

	rows := parsed.Data.Get[c.collection]
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, rowToResult(row))
	}
	return results, nil
}

func rowToResult(row map[string]interface{}) Result {
	get := func(k string) string {
		v, _ := row[k].(string)
		return v
	}
	r := Result{
		Chunk: model.Chunk{
			ChunkID: get("chunkId"),
			DocID:   get("docId"),
			Key: scope.Key{
				TenantID:    get("tenantId"),
				Scope:       scope.Level(get("scope")),
				WorkspaceID: get("workspaceId"),
				PrincipalID: get("principalId"),
			},
			Title:   get("title"),
			Section: get("section"),
			Summary: get("summary"),
			Text:    get("text"),
		},
	}
	if additional, ok := row["_additional"].(map[string]interface{}); ok {
		if id, ok := additional["id"].(string); ok {
			r.WeaviateUUID = id
		}
		if score, ok := additional["score"].(string); ok {
			var f float64
			fmt.Sscanf(score, "%f", &f)
			r.Score = float32(f)
		}
	}
	if sc, ok := row["startChar"].(float64); ok {
		r.Chunk.StartChar = int(sc)
	}
	if ec, ok := row["endChar"].(float64); ok {
		r.Chunk.EndChar = int(ec)
	}
	if pages, ok := row["pages"].([]interface{}); ok {
		for _, p := range pages {
			if f, ok := p.(float64); ok {
				r.Chunk.Pages = append(r.Chunk.Pages, int(f))
			}
		}
	}
	return r
}

func buildHybridQuery(collection, query string, vector []float32, alpha float64, limit int, vis scope.Visibility) string {
	vecStr := floatsToGraphQL(vector)
	whereStr := visibilityWhere(vis)
	return fmt.Sprintf(`{
		Get {
			%s(
				hybrid: {query: %q, vector: %s, alpha: %f}
				where: %s
				limit: %d
			) {
				chunkId docId tenantId scope workspaceId principalId
				title section summary text startChar endChar pages
				_additional { id score }
			}
		}
	}`, collection, query, vecStr, alpha, whereStr, limit)
}

func floatsToGraphQL(v []float32) string {
	buf := bytes.Buffer{}
	buf.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%f", f)
	}
	buf.WriteByte(']')
	return buf.String()
}

// visibilityWhere builds a GraphQL "where" filter OR-ing together the
// ScopeKeys in vis.Keys(), pushing scope enforcement down into the
// store rather than filtering client-side (spec.md §4.2, §9).
func visibilityWhere(vis scope.Visibility) string {
	if vis.TenantID == "" {
		return `{operator: Equal, path: ["tenantId"], valueText: "__none__"}`
	}
	var operands []string
	for _, k := range vis.Keys() {
		switch k.Scope {
		case scope.Tenant:
			operands = append(operands, fmt.Sprintf(`{operator: And, operands: [
				{path: ["tenantId"], operator: Equal, valueText: %q},
				{path: ["scope"], operator: Equal, valueText: "tenant"}
			]}`, k.TenantID))
		case scope.Workspace:
			operands = append(operands, fmt.Sprintf(`{operator: And, operands: [
				{path: ["tenantId"], operator: Equal, valueText: %q},
				{path: ["scope"], operator: Equal, valueText: "workspace"},
				{path: ["workspaceId"], operator: Equal, valueText: %q}
			]}`, k.TenantID, k.WorkspaceID))
		case scope.User:
			operands = append(operands, fmt.Sprintf(`{operator: And, operands: [
				{path: ["tenantId"], operator: Equal, valueText: %q},
				{path: ["scope"], operator: Equal, valueText: "user"},
				{path: ["workspaceId"], operator: Equal, valueText: %q},
				{path: ["principalId"], operator: Equal, valueText: %q}
			]}`, k.TenantID, k.WorkspaceID, k.PrincipalID))
		}
	}
	if len(operands) == 0 {
		return `{operator: Equal, path: ["tenantId"], valueText: "__none__"}`
	}
	joined := ""
	for i, o := range operands {
		if i > 0 {
			joined += ","
		}
		joined += o
	}
	return fmt.Sprintf(`{operator: Or, operands: [%s]}`, joined)
}

func (c *Client) DeleteByDoc(ctx context.Context, docID string) error {
	payload := map[string]interface{}{
		"match": map[string]interface{}{
			"class": c.collection,
			"where": map[string]interface{}{
				"path":      []string{"docId"},
				"operator":  "Equal",
				"valueText": docID,
			},
		},
	}
	if _, err := c.doRequest(ctx, http.MethodDelete, "/v1/batch/objects", payload); err != nil {
		return ragerr.Wrap(ragerr.DependencyTransient, "vector: delete by doc", err)
	}
	return nil
}
