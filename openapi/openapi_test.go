package openapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSpecParses(t *testing.T) {
	var doc struct {
		OpenAPI string                    `yaml:"openapi"`
		Paths   map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(Spec, &doc))
	assert.Equal(t, "3.0.3", doc.OpenAPI)
	for _, p := range []string{
		"/v1/optimize",
		"/v1/runs",
		"/v1/runs/{id}",
		"/v1/runs/{id}/events/stream",
		"/v1/runs/{id}/ws",
		"/v1/optimizer/config",
		"/v1/geocode",
		"/v1/linear/solve",
		"/healthz",
	} {
		assert.Contains(t, doc.Paths, p)
	}

	// the JSON rendition served by /openapi.json must survive a round trip
	var generic any
	require.NoError(t, yaml.Unmarshal(Spec, &generic))
	_, err := json.Marshal(generic)
	require.NoError(t, err)
}
