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
        "/train/join": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["train"],
                "summary": "Join the oldest open train",
                "parameters": [{"in": "body", "name": "input", "required": true, "schema": {"$ref": "#/definitions/competitorRequest"}}],
                "responses": {"200": {"description": "Placement, train snapshot and fight outcome if the car filled"}, "409": {"description": "Already placed, eliminated or ineligible pairing"}}
            }
        },
        "/train/place": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["train"],
                "summary": "Claim a specific slot",
                "responses": {"200": {"description": "OK"}, "409": {"description": "Slot occupied, train ended or ineligible pairing"}}
            }
        },
        "/train/leave": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["train"],
                "summary": "Vacate the competitor's slot",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/trains/{trainID}": {
            "get": {
                "tags": ["train"],
                "summary": "Train snapshot",
                "parameters": [{"type": "string", "name": "trainID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/trains/{trainID}/cars/{carIndex}/fight": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["train"],
                "summary": "Resolve a full car on demand",
                "responses": {"200": {"description": "OK"}, "409": {"description": "Car not full, already fighting, train ended or ineligible pairing"}}
            }
        },
        "/competitors": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["competitors"],
                "summary": "Register the caller's competitor",
                "responses": {"201": {"description": "Created"}, "409": {"description": "Owner already has a competitor"}}
            }
        },
        "/competitors/{competitorID}/status": {
            "get": {
                "tags": ["train"],
                "summary": "Where a competitor is placed",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown or unplaced competitor"}}
            }
        },
        "/competitors/{competitorID}/attributes": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "tags": ["competitors"],
                "summary": "Change combat attributes, each clamped to [0,100]",
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}
            }
        },
        "/leaderboard": {
            "get": {
                "tags": ["leaderboard"],
                "summary": "Top non-eliminated competitors",
                "parameters": [
                    {"type": "string", "default": "wins", "name": "sort", "in": "query"},
                    {"type": "integer", "default": 10, "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        }
    },
    "definitions": {
        "competitorRequest": {
            "type": "object",
            "properties": {"competitor_id": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Fight Train API",
	Description:      "Elimination train tournaments: join, fight, survive.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
