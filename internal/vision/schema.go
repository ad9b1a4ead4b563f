package vision

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema the model's JSON must satisfy before we trust it. Quantities and
// prices may arrive as numbers or numeric strings; parsing coerces them.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "supplier_name": {"type": "string"},
    "buyer_name": {"type": "string"},
    "date": {"type": "string"},
    "total_amount": {"type": ["number", "string"]},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "quantity": {"type": ["number", "string"]},
          "unit": {"type": "string"},
          "price": {"type": ["number", "string"]}
        },
        "required": ["name"],
        "additionalProperties": true
      }
    }
  },
  "required": ["items"],
  "additionalProperties": true
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func validateDocument(raw []byte) error {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("invoice.schema.json", documentSchema)
	})
	if schemaErr != nil {
		return schemaErr
	}
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()
	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return err
	}
	return compiledSchema.Validate(value)
}
