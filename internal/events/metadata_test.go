package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataUnmarshal(t *testing.T) {
	var md Metadata
	payload := `{"browser":"Firefox","version":128,"beta":false,"extra":null,"geo":{"country":"DE"}}`
	require.NoError(t, json.Unmarshal([]byte(payload), &md))

	assert.Equal(t, "Firefox", md["browser"])
	assert.Equal(t, float64(128), md["version"])
	assert.Equal(t, map[string]any{"country": "DE"}, md["geo"])
}

func TestMetadataRejectsArrays(t *testing.T) {
	var md Metadata
	err := json.Unmarshal([]byte(`{"tags":["a","b"]}`), &md)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tags")
}

func TestMetadataRejectsNestedArrays(t *testing.T) {
	var md Metadata
	err := json.Unmarshal([]byte(`{"geo":{"coords":[1,2]}}`), &md)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geo.coords")
}

func TestMetadataRejectsNonObject(t *testing.T) {
	var md Metadata
	assert.Error(t, json.Unmarshal([]byte(`["not","an","object"]`), &md))
}
