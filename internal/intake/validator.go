// Package intake validates loosely structured request payloads (order items,
// attachment lists) at the API boundary and turns them into typed values.
package intake

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/webforge/backend/internal/models"
)

// OrderItem is one requested build within a submission.
type OrderItem struct {
	WorkType    string              `json:"work_type"`
	AITier      string              `json:"ai_tier"`
	Brief       string              `json:"brief"`
	Attachments []models.Attachment `json:"attachments"`
}

type Validator struct {
	orderItem *jsonschema.Schema
	evidence  *jsonschema.Schema
}

// NewValidator compiles the built-in schemas.
func NewValidator() (*Validator, error) {
	item, err := jsonschema.CompileString("https://webforge.dev/schemas/order-item.json", orderItemSchema)
	if err != nil {
		return nil, fmt.Errorf("compile order item schema: %w", err)
	}
	evidence, err := jsonschema.CompileString("https://webforge.dev/schemas/evidence.json", evidenceSchema)
	if err != nil {
		return nil, fmt.Errorf("compile evidence schema: %w", err)
	}
	return &Validator{orderItem: item, evidence: evidence}, nil
}

// MustValidator is NewValidator for the built-in schemas, which are known to compile.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// OrderItem validates raw against the order item schema and decodes it.
func (v *Validator) OrderItem(raw json.RawMessage) (*OrderItem, error) {
	if err := validate(v.orderItem, raw); err != nil {
		return nil, err
	}
	var item OrderItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, models.Invalid("order item: %v", err)
	}
	if item.AITier == "" {
		item.AITier = models.AITierNone
	}
	if item.Attachments == nil {
		item.Attachments = []models.Attachment{}
	}
	return &item, nil
}

// Evidence validates an attachment list supplied with an appeal. A missing list is empty.
func (v *Validator) Evidence(raw json.RawMessage) ([]models.Attachment, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []models.Attachment{}, nil
	}
	if err := validate(v.evidence, raw); err != nil {
		return nil, err
	}
	var out []models.Attachment
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, models.Invalid("evidence: %v", err)
	}
	return out, nil
}

func validate(schema *jsonschema.Schema, raw json.RawMessage) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.Invalid("invalid JSON: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return nil
}
