package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the JSON Schema of the configuration document, derived
// from the Config struct's yaml tags. Editors point at this for completion
// and validation of config.yaml.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{FieldNameTag: "yaml"}
		schemaJSON, schemaErr = json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	})
	return schemaJSON, schemaErr
}
