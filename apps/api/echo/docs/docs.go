// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Open a session",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/LoginResponse"}},
                    "400": {"description": "authentication failed"},
                    "403": {"description": "account deactivated"}
                }
            }
        },
        "/auth/logout": {"post": {"tags": ["auth"], "summary": "Close the session", "security": [{"Bearer": []}], "responses": {"204": {"description": "No Content"}}}},
        "/auth/token-refresh": {"post": {"tags": ["auth"], "summary": "Extend the session and sign a new token", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/LoginResponse"}}}}},
        "/auth/profile": {
            "get": {"tags": ["auth"], "summary": "Current user", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["auth"], "summary": "Update names and email", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/auth/change-password": {"post": {"tags": ["auth"], "summary": "Change password", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/auth/password-reset": {"post": {"tags": ["auth"], "summary": "Email a password reset link", "responses": {"200": {"description": "OK"}}}},
        "/auth/password-reset-confirm": {"post": {"tags": ["auth"], "summary": "Set a new password from a reset link", "responses": {"200": {"description": "OK"}}}},
        "/users": {
            "get": {"tags": ["users"], "summary": "List users", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["users"], "summary": "Create a user", "security": [{"Bearer": []}], "responses": {"201": {"description": "Created"}}},
            "delete": {"tags": ["users"], "summary": "Delete users by id", "security": [{"Bearer": []}], "responses": {"204": {"description": "No Content"}}}
        },
        "/users/roles": {"get": {"tags": ["users"], "summary": "List roles", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/users/{id}": {
            "get": {"tags": ["users"], "summary": "Retrieve a user", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["users"], "summary": "Update a user", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["users"], "summary": "Delete a user", "security": [{"Bearer": []}], "responses": {"204": {"description": "No Content"}}}
        },
        "/classes": {
            "get": {"tags": ["classroom"], "summary": "List classes", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["classroom"], "summary": "Create a class", "security": [{"Bearer": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/students": {
            "get": {"tags": ["classroom"], "summary": "List students", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["classroom"], "summary": "Create a student", "security": [{"Bearer": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/courses": {
            "get": {"tags": ["classroom"], "summary": "List courses", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["classroom"], "summary": "Create a course", "security": [{"Bearer": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/assignments": {
            "get": {"tags": ["coursework"], "summary": "List assignments", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["coursework"], "summary": "Create an assignment, optionally with a document", "consumes": ["multipart/form-data", "application/json"], "security": [{"Bearer": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/assignments/{id}/document": {"get": {"tags": ["coursework"], "summary": "Download the assignment document", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}}},
        "/grades": {
            "get": {"tags": ["coursework"], "summary": "List grades", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["coursework"], "summary": "Record a grade", "security": [{"Bearer": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/announcements": {
            "get": {"tags": ["announcements"], "summary": "List announcements", "security": [{"Bearer": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["announcements"], "summary": "Create, schedule or send an announcement", "security": [{"Bearer": []}], "responses": {"201": {"description": "Created"}}}
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "next": {"type": "string"}
            }
        },
        "LoginResponse": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "redirect": {"type": "string"},
                "user": {
                    "type": "object",
                    "properties": {
                        "user_id": {"type": "string"},
                        "first_name": {"type": "string"},
                        "last_name": {"type": "string"},
                        "email": {"type": "string"},
                        "role": {"type": "string", "enum": ["PARENT", "TEACHER", "ADMIN", "DEVELOPER"]}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "Pueri Angeli API",
	Description:      "School management: users, classes, coursework and announcements behind role-guarded dashboards.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
