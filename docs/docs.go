// Package docs holds the admin API document served under /swagger.
// Regenerate with: swag init -g cmd/evowhats/main.go -o docs
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
        "/api/v1/crm/lines": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "CRM"
                ],
                "summary": "list CRM open lines",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Portal URL",
                        "name": "portal",
                        "in": "query",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            },
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "CRM"
                ],
                "summary": "create a CRM open line",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Portal URL",
                        "name": "portal",
                        "in": "query",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/crm/lines/{line}/bind": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "CRM"
                ],
                "summary": "bind a CRM open line to a gateway instance",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/crm/connector/status": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "CRM"
                ],
                "summary": "get connector status for a line",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "query",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/crm/connector/register": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "CRM"
                ],
                "summary": "register the connector on the portal",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/crm/connector/publish": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "CRM"
                ],
                "summary": "publish connector data for a line",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/crm/connector/activate": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "CRM"
                ],
                "summary": "activate or deactivate the connector on a line",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/crm/connector/contact-center": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "CRM"
                ],
                "summary": "add the connector to the contact center",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/crm/connector/setup": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "CRM"
                ],
                "summary": "register, publish and activate the connector",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/gateway/instances": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Gateway"
                ],
                "summary": "list gateway instances",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/gateway/lines/{line}/session": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Gateway"
                ],
                "summary": "ensure the gateway session of a line",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/gateway/lines/{line}/bind": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Gateway"
                ],
                "summary": "bind an open line on the gateway side",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/gateway/test-send": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Gateway"
                ],
                "summary": "send a test message through the gateway",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/gateway/diag": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Gateway"
                ],
                "summary": "gateway diagnostics and transport latency",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/system/jobs/{name}/run": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "System"
                ],
                "summary": "run a background job now",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Job name",
                        "name": "name",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/oauth/exchange": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OAuth"
                ],
                "summary": "exchange an authorization code for portal tokens",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/oauth/refresh": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OAuth"
                ],
                "summary": "force a token refresh for a portal",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/oauth/status": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OAuth"
                ],
                "summary": "get the credential status of a portal",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Portal URL",
                        "name": "portal",
                        "in": "query",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/openlines": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OpenLines"
                ],
                "summary": "list open line bindings of the tenant",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/openlines/{line}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OpenLines"
                ],
                "summary": "get an open line binding with its pairing state",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            },
            "delete": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OpenLines"
                ],
                "summary": "deactivate the binding of an open line",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/api/v1/openlines/{line}/ensure": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OpenLines"
                ],
                "summary": "create or reactivate the binding of an open line",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/openlines/{line}/start": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OpenLines"
                ],
                "summary": "start the gateway session and wait for a pairing code",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/openlines/{line}/stop": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OpenLines"
                ],
                "summary": "stop the pairing loop of an open line",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/openlines/{line}/bind": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OpenLines"
                ],
                "summary": "bind an open line to a gateway instance",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/openlines/{line}/status": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OpenLines"
                ],
                "summary": "read and apply the gateway status of an open line",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/openlines/{line}/qr": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "OpenLines"
                ],
                "summary": "get the current pairing QR of an open line",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Open line ID",
                        "name": "line",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/system/status": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "System"
                ],
                "summary": "process and transport status",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/webhooks/gateway": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Webhooks"
                ],
                "summary": "receive a gateway event",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Shared webhook secret",
                        "name": "X-Webhook-Token",
                        "in": "header",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/adminapi.Response"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "adminapi.Response": {
            "type": "object",
            "properties": {
                "data": {}
            }
        },
        "adminapi.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "details": {}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "EvoWhats admin API",
	Description:      "Open line to WhatsApp gateway coordination.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
