package manifest

import _ "embed"

//go:embed schema.json
var schemaJSON string

// SchemaJSON returns the embedded JSON schema that a config program's
// output is validated against.
func SchemaJSON() string {
	return schemaJSON
}
