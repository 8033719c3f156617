package entity

import (
	"context"
	"testing"

	"github.com/ragline/ragline/internal/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	response string
	err      error
}

func (f *fakeChat) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.response, f.err
}

func (f *fakeChat) ModelID() string { return "fake-model" }

func TestExtractNormalizesAndDedups(t *testing.T) {
	chat := &fakeChat{response: `{"entities": [
		{"name": "  Acme   Corp ", "type": "Organization"},
		{"name": "ACME CORP", "type": "organization"},
		{"name": "Jane Doe", "type": "person"}
	]}`}

	entities, err := Extract(context.Background(), chat, "some chunk text")
	require.NoError(t, err)
	require.Len(t, entities, 2)

	names := map[string]string{}
	for _, e := range entities {
		names[e.Name] = e.Type
	}
	assert.Equal(t, "organization", names["Acme Corp"])
	assert.Equal(t, "person", names["Jane Doe"])
}

func TestExtractDropsEmptyNameOrType(t *testing.T) {
	chat := &fakeChat{response: `{"entities": [
		{"name": "", "type": "person"},
		{"name": "Valid", "type": ""},
		{"name": "Kept", "type": "product"}
	]}`}

	entities, err := Extract(context.Background(), chat, "text")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Kept", entities[0].Name)
}

func TestExtractMalformedResponse(t *testing.T) {
	chat := &fakeChat{response: "not json"}
	_, err := Extract(context.Background(), chat, "text")
	require.Error(t, err)
	assert.Equal(t, ragerr.MalformedUpstream, ragerr.KindOf(err))
}

func TestExtractPropagatesChatError(t *testing.T) {
	chat := &fakeChat{err: ragerr.New(ragerr.DependencyTransient, "llm down")}
	_, err := Extract(context.Background(), chat, "text")
	require.Error(t, err)
	assert.Equal(t, ragerr.DependencyTransient, ragerr.KindOf(err))
}
