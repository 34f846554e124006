package index

// projectPageSchema describes a JSON simple API project page (API 1.x).
// Unknown keys are allowed so newer minor versions still validate.
const projectPageSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["meta", "name", "files"],
  "properties": {
    "meta": {
      "type": "object",
      "required": ["api-version"],
      "properties": {
        "api-version": {"type": "string", "pattern": "^1\\.[0-9]+$"}
      }
    },
    "name": {"type": "string", "minLength": 1},
    "versions": {"type": "array", "items": {"type": "string"}},
    "files": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["filename", "url", "hashes"],
        "properties": {
          "filename": {"type": "string", "minLength": 1},
          "url": {"type": "string", "minLength": 1},
          "hashes": {
            "type": "object",
            "additionalProperties": {"type": "string", "pattern": "^[0-9a-fA-F]+$"}
          },
          "requires-python": {"type": ["string", "null"]},
          "yanked": {"type": ["boolean", "string"]},
          "size": {"type": "integer", "minimum": 0},
          "upload-time": {"type": "string"},
          "core-metadata": {"$ref": "#/$defs/metadataFlag"},
          "dist-info-metadata": {"$ref": "#/$defs/metadataFlag"}
        }
      }
    }
  },
  "$defs": {
    "metadataFlag": {
      "oneOf": [
        {"type": "boolean"},
        {"type": "object", "additionalProperties": {"type": "string"}}
      ]
    }
  }
}`

const projectPageSchemaURL = "https://pyresolve.invalid/schemas/simple-project-v1.json"
