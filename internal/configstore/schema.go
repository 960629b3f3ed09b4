// ABOUTME: Embedded JSON schema applied to persisted snapshots on load
// ABOUTME: A partial template: unknown fields pass, type mismatches fail

package configstore

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed snapshot.schema.json
var snapshotSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func snapshotSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("snapshot.schema.json", bytes.NewReader(snapshotSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("loading snapshot schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("snapshot.schema.json")
	})
	return schema, schemaErr
}

// ValidateSnapshotJSON checks raw snapshot JSON against the embedded
// schema. The schema names no required top-level fields, so partial
// snapshots pass; wrongly typed known fields fail.
func ValidateSnapshotJSON(data []byte) error {
	s, err := snapshotSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing snapshot: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("snapshot schema: %w", err)
	}
	return nil
}
