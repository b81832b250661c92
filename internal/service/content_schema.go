package service

import (
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/models"
)

const contentBodySchemaJSON = `{
  "type": "object",
  "properties": {
    "introduction": {"type": "string"},
    "sections": {
      "type": "object",
      "propertyNames": {"pattern": "^[A-Za-z][A-Za-z0-9]*$"},
      "additionalProperties": {"type": "array", "items": {"type": "string", "minLength": 1}}
    }
  }
}`

// Health condition entries must explain the condition before listing sections.
const conditionBodySchemaJSON = `{
  "type": "object",
  "required": ["introduction"],
  "properties": {
    "introduction": {"type": "string", "minLength": 1},
    "sections": {
      "type": "object",
      "propertyNames": {"pattern": "^[A-Za-z][A-Za-z0-9]*$"},
      "additionalProperties": {"type": "array", "items": {"type": "string", "minLength": 1}}
    }
  }
}`

var (
	bodySchema      = jsonschema.MustCompileString("https://healthwatch.local/schemas/content-body.json", contentBodySchemaJSON)
	conditionSchema = jsonschema.MustCompileString("https://healthwatch.local/schemas/condition-body.json", conditionBodySchemaJSON)
)

// validateContentBody checks the category specific body of a collection.
func validateContentBody(collection string, body dto.ContentBodyInput) error {
	schema := bodySchema
	if collection == models.CollectionHealthConditions {
		schema = conditionSchema
	}
	return schema.Validate(contentBodyValue(body))
}

func contentBodyValue(body dto.ContentBodyInput) map[string]interface{} {
	sections := make(map[string]interface{}, len(body.Sections))
	for field, values := range body.Sections {
		items := make([]interface{}, 0, len(values))
		for _, value := range values {
			items = append(items, value)
		}
		sections[field] = items
	}
	return map[string]interface{}{
		"introduction": body.Introduction,
		"sections":     sections,
	}
}
