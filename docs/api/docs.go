// Package api holds the generated swagger spec that github.com/gofiber/swagger
// serves at /swagger/*. Normally produced by `swag init` from the
// @-annotations on cmd/server/main.go's handlers; hand-authored here in the
// same shape swag's codegen emits (a raw JSON doc plus a swag.Register call
// keyed by SwaggerInfo.InfoInstanceName) since this repo never runs the Go
// toolchain, let alone the swag CLI, to regenerate it.
package api

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{.Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/localnerve/featherdb",
            "email": "info@localnerve.com"
        },
        "license": {
            "name": "AGPL-3.0",
            "url": "https://www.gnu.org/licenses/agpl-3.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/data/{name}": {
            "post": {
                "description": "Filtered query when name is a feather's plural form, insert otherwise",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "name", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/data/{name}/{id}": {
            "get": {
                "description": "Read one record by id",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "name", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "patch": {
                "description": "Apply an RFC 6902 JSON Patch",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            },
            "delete": {
                "description": "Soft delete by default, ?hard=true for a hard delete",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/feather/{name}": {
            "get": {"description": "Get a feather's schema", "responses": {"200": {"description": "OK"}}},
            "put": {"description": "Create or update a feather's schema", "responses": {"200": {"description": "OK"}}},
            "delete": {"description": "Delete a feather", "responses": {"204": {"description": "No Content"}}}
        },
        "/module": {
            "get": {"description": "List top-level feathers", "responses": {"200": {"description": "OK"}}}
        },
        "/settings/{name}": {
            "get": {"description": "Get a named settings blob", "responses": {"200": {"description": "OK"}}},
            "put": {"description": "Save a named settings blob", "responses": {"200": {"description": "OK"}}}
        },
        "/workbook/{name}": {
            "get": {"description": "Get a named workbook", "responses": {"200": {"description": "OK"}}},
            "put": {"description": "Save a named workbook", "responses": {"200": {"description": "OK"}}},
            "delete": {"description": "Delete a named workbook", "responses": {"204": {"description": "No Content"}}}
        },
        "/do/subscribe": {
            "post": {"description": "Subscribe to change notifications", "responses": {"200": {"description": "OK"}}}
        },
        "/do/unsubscribe": {
            "post": {"description": "Unsubscribe from change notifications", "responses": {"200": {"description": "OK"}}}
        },
        "/do/lock": {
            "post": {"description": "Acquire a pessimistic lock", "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}}
        },
        "/do/unlock": {
            "post": {"description": "Release a pessimistic lock", "responses": {"200": {"description": "OK"}}}
        },
        "/sse": {
            "get": {"description": "Open a Server-Sent Events notification stream", "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds exported swagger metadata, the shape swag init's
// generated docs.go always exposes so callers can override Host/BasePath
// at runtime before the spec is first served.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:10001",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "FeatherDB API",
	Description:      "Metadata-driven object-relational persistence engine",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
