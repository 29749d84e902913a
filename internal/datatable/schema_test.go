package datatable

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ktgames/mining/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schemaDoc struct {
	Required   []string `json:"required"`
	Properties map[string]struct {
		Items struct {
			Required   []string `json:"required"`
			Properties map[string]struct {
				Items struct {
					Properties map[string]struct {
						Enum    []string `json:"enum"`
						Minimum *float64 `json:"minimum"`
						Maximum *float64 `json:"maximum"`
					} `json:"properties"`
				} `json:"items"`
			} `json:"properties"`
		} `json:"items"`
	} `json:"properties"`
}

func TestSchema_DescribesTableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema", "tables.schema.json")
	require.NoError(t, WriteSchema(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc schemaDoc
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, []string{"spots"}, doc.Required)
	assert.Contains(t, doc.Properties, "mineralMeshes")
	assert.Contains(t, doc.Properties, "meshGroups")

	spot := doc.Properties["spots"].Items
	assert.ElementsMatch(t, []string{"name", "percentages"}, spot.Required)

	weight := spot.Properties["percentages"].Items.Properties
	require.NotNil(t, weight["probability"].Minimum)
	assert.Equal(t, 0.0, *weight["probability"].Minimum)
	assert.Equal(t, 1.0, *weight["probability"].Maximum)

	var names []string
	for _, mt := range core.MineralTypes() {
		names = append(names, mt.String())
	}
	assert.ElementsMatch(t, names, weight["type"].Enum, "schema enum must follow the mineral types")
}
