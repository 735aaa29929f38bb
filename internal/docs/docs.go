// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/github-webhook": {
            "post": {
                "description": "Receives a signed webhook delivery and dispatches it to the handler for its event type",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhook"],
                "summary": "Receive a webhook delivery",
                "parameters": [
                    {"type": "string", "description": "Event type", "name": "X-GitHub-Event", "in": "header", "required": true},
                    {"type": "string", "description": "Delivery id", "name": "X-GitHub-Delivery", "in": "header"},
                    {"type": "string", "description": "HMAC-SHA256 of the body", "name": "X-Hub-Signature-256", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "ignored, queued or processed", "schema": {"type": "object"}},
                    "400": {"description": "missing header or malformed payload", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "401": {"description": "invalid signature", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "500": {"description": "internal server error", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/health/components": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Collaborator health",
                "responses": {
                    "200": {"description": "all components healthy", "schema": {"type": "object"}},
                    "503": {"description": "a component is degraded", "schema": {"type": "object"}}
                }
            }
        },
        "/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Dispatch statistics",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/deliveries": {
            "get": {
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Recent journaled deliveries",
                "parameters": [
                    {"type": "integer", "description": "Maximum entries to return", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "journal disabled", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "server.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "review-relay API",
	Description:      "Webhook receiver that routes repository events to automated analysis handlers.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
