package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Attend Sync API",
        "description": "Populi attendance synchronization and review gateway",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Reviewer sign-in"},
        {"name": "Sync", "description": "Attendance sync triggers and identity linking"},
        {"name": "Records", "description": "Imported attendance records and the review workflow"},
        {"name": "Activity", "description": "Recent sync engine activity"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate reviewer",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/api/v1/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current reviewer",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/api/v1/triggers/login": {
            "post": {
                "tags": ["Sync"],
                "summary": "Sign-in trigger",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PageViewRequest"}}
                ],
                "responses": {
                    "200": {"description": "Sync result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No linked Populi identity"}
                }
            }
        },
        "/api/v1/triggers/page-view": {
            "post": {
                "tags": ["Sync"],
                "summary": "Attendance page-view trigger",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PageViewRequest"}}
                ],
                "responses": {
                    "200": {"description": "Sync result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No linked Populi identity"},
                    "412": {"description": "Service not configured"}
                }
            }
        },
        "/api/v1/triggers/sso": {
            "post": {
                "tags": ["Sync"],
                "summary": "SSO sign-in trigger",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SSOLoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Link and sync result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Assertion carries no person id"}
                }
            }
        },
        "/api/v1/triggers/manual-sync": {
            "post": {
                "tags": ["Sync"],
                "summary": "Operator-triggered sync",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ManualSyncRequest"}}
                ],
                "responses": {
                    "200": {"description": "Sync result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/api/v1/triggers/bulk-link": {
            "post": {
                "tags": ["Sync"],
                "summary": "Queue bulk identity linking",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkLinkRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Queue full"}
                }
            }
        },
        "/api/v1/triggers/directory-refresh": {
            "post": {
                "tags": ["Sync"],
                "summary": "Rebuild the student directory cache",
                "responses": {
                    "200": {"description": "Cached student count", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/api/v1/records": {
            "get": {
                "tags": ["Records"],
                "summary": "List attendance records",
                "parameters": [
                    {"name": "person_id", "in": "query", "type": "string"},
                    {"name": "review_status", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "term", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"},
                    {"name": "sort_by", "in": "query", "type": "string"},
                    {"name": "sort_order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/records/export": {
            "get": {
                "tags": ["Records"],
                "summary": "Export attendance records",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "produces": ["text/csv", "application/pdf"],
                "responses": {
                    "200": {"description": "Review sheet"}
                }
            }
        },
        "/api/v1/records/{id}": {
            "get": {
                "tags": ["Records"],
                "summary": "Fetch one attendance record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"},
                    "500": {"description": "Internal error"}
                }
            }
        },
        "/api/v1/records/{id}/note": {
            "post": {
                "tags": ["Records"],
                "summary": "Submit an excuse note",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitNoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "Record moved into review", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Record belongs to another student"},
                    "409": {"description": "Record already reviewed"}
                }
            }
        },
        "/api/v1/records/{id}/review": {
            "post": {
                "tags": ["Records"],
                "summary": "Decide on an excuse",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Decision applied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Decision already terminal"}
                }
            }
        },
        "/api/v1/activity": {
            "get": {
                "tags": ["Activity"],
                "summary": "Recent sync activity",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "PageViewRequest": {
            "type": "object",
            "required": ["user_id"],
            "properties": {
                "user_id": {"type": "string"},
                "email": {"type": "string"}
            }
        },
        "SSOLoginRequest": {
            "type": "object",
            "required": ["user_id", "assertion"],
            "properties": {
                "user_id": {"type": "string"},
                "assertion": {"type": "string"},
                "email": {"type": "string"}
            }
        },
        "ManualSyncRequest": {
            "type": "object",
            "required": ["user_id"],
            "properties": {
                "user_id": {"type": "string"},
                "email": {"type": "string"},
                "reset_cursor": {"type": "boolean"}
            }
        },
        "BulkLinkRequest": {
            "type": "object",
            "required": ["items"],
            "properties": {
                "items": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "user_id": {"type": "string"},
                            "claims": {"type": "object"}
                        }
                    }
                }
            }
        },
        "SubmitNoteRequest": {
            "type": "object",
            "required": ["user_id", "note"],
            "properties": {
                "user_id": {"type": "string"},
                "note": {"type": "string"}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "required": ["decision"],
            "properties": {
                "decision": {"type": "string", "enum": ["approved", "rejected"]},
                "reason": {"type": "string"}
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
                "pagination": {"$ref": "#/definitions/Pagination"}
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
