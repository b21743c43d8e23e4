package recipe

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	sigsyaml "sigs.k8s.io/yaml"
)

//go:embed recipe.schema.json
var recipeSchema []byte

const schemaName = "recipe.schema.json"

// compiledSchema is built once at startup; the schema is embedded,
// so a compile failure is a programming error.
//
//nolint:gochecknoglobals // Compiled once from an embedded resource.
var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(schemaName, bytes.NewReader(recipeSchema)); err != nil {
		panic(err)
	}

	sch, err := comp.Compile(schemaName)
	if err != nil {
		panic(err)
	}

	return sch
}

// validateSchema runs the embedded JSON Schema against a YAML recipe document.
func validateSchema(yamlContents []byte) error {
	jsonContents, err := sigsyaml.YAMLToJSON(yamlContents)
	if err != nil {
		return fmt.Errorf("convert recipe to JSON: %w", err)
	}

	// Unmarshal into any so the validator can walk the document.
	var doc any
	if err := json.Unmarshal(jsonContents, &doc); err != nil {
		return fmt.Errorf("decode recipe JSON: %w", err)
	}

	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}
