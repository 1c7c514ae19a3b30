package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/action.schema.json
var actionSchemaJSON string

var actionSchema = jsonschema.MustCompileString("action.schema.json", actionSchemaJSON)

// ValidateAction checks the content of an action message against the
// action schema and decodes it.
func ValidateAction(raw []byte) (ActionContent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ActionContent{}, fmt.Errorf("action: %w", err)
	}
	if err := actionSchema.Validate(v); err != nil {
		return ActionContent{}, fmt.Errorf("action: %w", err)
	}
	var a ActionContent
	if err := json.Unmarshal(raw, &a); err != nil {
		return ActionContent{}, fmt.Errorf("action: %w", err)
	}
	return a, nil
}
