package intake

const attachmentDefs = `
	"attachment": {
		"oneOf": [
			{
				"type": "object",
				"required": ["kind", "path", "content"],
				"additionalProperties": false,
				"properties": {
					"kind": {"const": "inline"},
					"path": {
						"type": "string", "minLength": 1, "maxLength": 512, "pattern": "^[^/\\\\]",
						"not": {"pattern": "(^|[/\\\\])\\.\\.([/\\\\]|$)"}
					},
					"content": {"type": "string", "maxLength": 1048576}
				}
			},
			{
				"type": "object",
				"required": ["kind", "url"],
				"additionalProperties": false,
				"properties": {
					"kind": {"const": "url"},
					"url": {"type": "string", "maxLength": 2048, "pattern": "^https?://[^\\s]+$"}
				}
			}
		]
	},
	"attachments": {
		"type": "array",
		"maxItems": 20,
		"items": {"$ref": "#/$defs/attachment"}
	}`

const orderItemSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["work_type"],
	"additionalProperties": false,
	"properties": {
		"work_type": {"enum": ["single_page", "multi_page"]},
		"ai_tier": {"enum": ["", "none", "standard", "advanced"]},
		"brief": {"type": "string", "maxLength": 20000},
		"attachments": {"$ref": "#/$defs/attachments"}
	},
	"$defs": {` + attachmentDefs + `}
}`

const evidenceSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"$ref": "#/$defs/attachments",
	"$defs": {` + attachmentDefs + `}
}`
