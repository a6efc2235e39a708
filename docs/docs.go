package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "PO Review API",
    "description": "Escalating vendor follow-up for open purchase orders",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "AdminKey": {"type": "apiKey", "in": "header", "name": "X-Admin-Key"}
  },
  "paths": {
    "/health": {
      "get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}, "503": {"description": "Database unavailable"}}}
    },
    "/api/run-review": {
      "post": {
        "tags": ["review"], "summary": "Run a review", "security": [{"AdminKey": []}],
        "parameters": [
          {"name": "wpq", "in": "query", "type": "string"},
          {"name": "cleanup", "in": "query", "type": "boolean"},
          {"name": "text_limit", "in": "query", "type": "integer"}
        ],
        "responses": {"200": {"description": "Run summary"}, "400": {"description": "Invalid request"}, "500": {"description": "Review failed"}}
      }
    },
    "/api/status": {
      "get": {
        "tags": ["review"], "summary": "PO status",
        "parameters": [{"name": "wpq", "in": "query", "type": "string", "required": true}],
        "responses": {"200": {"description": "Status"}, "404": {"description": "PO not found"}}
      }
    },
    "/api/cleanup": {
      "post": {
        "tags": ["review"], "summary": "Clear guard entries", "security": [{"AdminKey": []}],
        "parameters": [
          {"name": "wpq", "in": "query", "type": "string"},
          {"name": "older_than", "in": "query", "type": "string"}
        ],
        "responses": {"200": {"description": "Cleared count"}}
      }
    },
    "/api/po/{wpq}/vendor-response": {
      "post": {
        "tags": ["review"], "summary": "Log a vendor reply", "security": [{"AdminKey": []}],
        "parameters": [
          {"name": "wpq", "in": "path", "type": "string", "required": true},
          {"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"text": {"type": "string"}, "english_text": {"type": "string"}}}}
        ],
        "responses": {"200": {"description": "Dispatch outcome"}, "404": {"description": "PO not found"}}
      }
    },
    "/api/run-whatsapp": {
      "get": {
        "tags": ["notifications"], "summary": "Send pending WhatsApp notifications", "security": [{"AdminKey": []}],
        "parameters": [{"name": "env", "in": "query", "type": "string", "enum": ["test", "prod"], "default": "test"}],
        "responses": {"200": {"description": "Batch summary"}, "400": {"description": "Invalid env"}}
      }
    },
    "/api/runs/latest": {
      "get": {
        "tags": ["runs"], "summary": "Latest run",
        "parameters": [{"name": "kind", "in": "query", "type": "string", "enum": ["review", "whatsapp"], "default": "review"}],
        "responses": {"200": {"description": "Run"}, "404": {"description": "No runs found"}}
      }
    }
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
