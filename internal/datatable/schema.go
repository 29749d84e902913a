package datatable

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
)

// Schema describes the table file read by OpenFile.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(&fileTables{})
	s.Title = "Mineral spot tables"
	s.Description = "Spots with their mineral type weights, the mesh per mineral type and the destructible representation per mesh."
	return s
}

// WriteSchema writes Schema as indented JSON to path, replacing any
// existing file only once the new one is complete.
func WriteSchema(path string) error {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
