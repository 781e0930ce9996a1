package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Council Planner API",
        "description": "Groups class letters into class council tables so no teacher sits twice in a row.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "ServiceToken": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "tags": [
        {"name": "Councils", "description": "Council table planning"},
        {"name": "Exports", "description": "Rendered plan downloads"}
    ],
    "paths": {
        "/councils/plans": {
            "get": {
                "tags": ["Councils"],
                "summary": "List recent plans",
                "security": [{"ServiceToken": []}],
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Councils"],
                "summary": "Plan council tables from an uploaded roster",
                "security": [{"ServiceToken": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true},
                    {"name": "delimiter", "in": "formData", "type": "string"},
                    {"name": "teacherColumn", "in": "formData", "type": "string"},
                    {"name": "maxGroupSize", "in": "formData", "type": "integer"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid roster", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No usable columns", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/councils/plans/records": {
            "post": {
                "tags": ["Councils"],
                "summary": "Plan council tables from JSON records",
                "security": [{"ServiceToken": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PlanRecordsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid records", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/councils/plans/{id}": {
            "get": {
                "tags": ["Councils"],
                "summary": "Get a plan",
                "security": [{"ServiceToken": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/councils/plans/{id}/archive": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download the plan as a ZIP of CSV files",
                "security": [{"ServiceToken": []}],
                "produces": ["application/zip"],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "ZIP archive", "schema": {"type": "file"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/councils/plans/{id}/document": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download the plan as a PDF document",
                "security": [{"ServiceToken": []}],
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "PDF document", "schema": {"type": "file"}},
                    "404": {"description": "Not found or PDF disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/councils/plans/{id}/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue an asynchronous export",
                "security": [{"ServiceToken": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Plan not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/councils/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export job status",
                "security": [{"ServiceToken": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a finished export via signed token",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Rendered file", "schema": {"type": "file"}},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "PlanRecordsRequest": {
            "type": "object",
            "properties": {
                "source": {"type": "string"},
                "columns": {"type": "array", "items": {"type": "string"}},
                "records": {"type": "array", "items": {"type": "object"}},
                "teacherColumn": {"type": "string"},
                "maxGroupSize": {"type": "integer"}
            },
            "required": ["records"]
        },
        "ExportRequest": {
            "type": "object",
            "properties": {
                "format": {"type": "string", "enum": ["zip", "pdf"]}
            },
            "required": ["format"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
