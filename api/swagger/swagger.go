package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Gradebook API",
        "description": "Configurable grading, score entry and annual promotion summaries",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Grading Config", "description": "Institution grading rules"},
        {"name": "Scores", "description": "Raw component score entry"},
        {"name": "Summaries", "description": "Derived annual summaries and exports"}
    ],
    "paths": {
        "/grading-config": {
            "get": {
                "tags": ["Grading Config"],
                "summary": "Get the active grading configuration",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Grading Config"],
                "summary": "Replace the grading configuration",
                "description": "Rejected with FORMULA_ERROR when the custom formula does not parse or references unknown variables. Nothing is stored on rejection.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateGradingConfigRequest"}}
                ],
                "responses": {
                    "200": {"description": "Stored", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Version conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid configuration", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grading-config/history": {
            "get": {
                "tags": ["Grading Config"],
                "summary": "List stored configuration versions",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grading-config/formula/check": {
            "post": {
                "tags": ["Grading Config"],
                "summary": "Check a custom formula against the active configuration",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FormulaCheckRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/scores": {
            "get": {
                "tags": ["Scores"],
                "summary": "Get the stored raw scores of a student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/scores/{periodId}": {
            "put": {
                "tags": ["Scores"],
                "summary": "Write one raw component score",
                "description": "Values above the effective maximum are clamped and reported. Values that are not numbers are rejected and the prior value is kept.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "periodId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/WriteScoreRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown period", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/periods/{periodId}/fields": {
            "get": {
                "tags": ["Scores"],
                "summary": "Get the score form of one period",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "periodId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/summary": {
            "get": {
                "tags": ["Summaries"],
                "summary": "Compute the annual summary of a student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "finalExam", "in": "query", "type": "string"},
                    {"name": "recovery", "in": "query", "type": "string"},
                    {"name": "councilBonus", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Formula or configuration error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/summaries": {
            "get": {
                "tags": ["Summaries"],
                "summary": "List annual summaries of the institution",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/summaries/export": {
            "get": {
                "tags": ["Summaries"],
                "summary": "Export the summary table",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        }
    },
    "definitions": {
        "UpdateGradingConfigRequest": {
            "type": "object",
            "required": ["calculation_type", "periods"],
            "properties": {
                "calculation_type": {"type": "string", "enum": ["simple_average", "weighted_average", "total_sum", "custom_formula"]},
                "custom_formula": {"type": "string"},
                "rounding_mode": {"type": "string", "enum": ["half_up", "half_down", "half_even", "floor", "ceil"]},
                "rounding_decimals": {"type": "integer"},
                "periods": {"type": "array", "items": {"type": "object"}},
                "approval": {"type": "object"},
                "final_exam": {"type": "object"},
                "recovery": {"type": "object"},
                "expected_version": {"type": "integer"}
            }
        },
        "FormulaCheckRequest": {
            "type": "object",
            "required": ["formula"],
            "properties": {
                "formula": {"type": "string"}
            }
        },
        "WriteScoreRequest": {
            "type": "object",
            "required": ["variable_code"],
            "properties": {
                "variable_code": {"type": "string"},
                "value": {"type": "string"},
                "note": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
