package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the content API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>contentd API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// OpenAPI document for the edit and query endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "contentd", "version": "v0.1.0" },
  "components": {
    "schemas": {
      "Payload": {
        "type": "object",
        "properties": {
          "status": {"type":"string","enum":["published","held","draft","timed"]},
          "publishedAt": {"type":"string"},
          "depublishedAt": {"type":"string"},
          "_edit_locale": {"type":"string"},
          "fields": {"type":"object"},
          "sets": {"type":"object"},
          "collections": {"type":"object"},
          "taxonomy": {"type":"object"},
          "relationship": {"type":"object"}
        }
      }
    }
  },
  "paths": {
    "/api/content/new/{contentType}": {
      "post": {
        "summary": "Create a content item from a payload",
        "parameters": [{"name":"contentType","in":"path","required":true,"schema":{"type":"string"}}],
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Payload"} }, "application/x-www-form-urlencoded": {} } },
        "responses": { "201": { "description": "created" }, "404": { "description": "unknown content type" }, "422": { "description": "rejected submission" } }
      }
    },
    "/api/content/{id}": {
      "get": { "summary": "Get a content item", "responses": { "200": { "description": "content" }, "403": { "description": "outside scope" }, "404": { "description": "not found" } } },
      "post": {
        "summary": "Reconcile a payload into the item and save it",
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Payload"} }, "application/x-www-form-urlencoded": {} } },
        "responses": { "200": { "description": "saved" }, "409": { "description": "item is locked by another save" }, "422": { "description": "rejected submission" } }
      },
      "delete": { "summary": "Delete a content item", "responses": { "204": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/content/{id}/preview": {
      "post": { "summary": "Reconcile without saving", "responses": { "200": { "description": "reconciled item" } } }
    },
    "/api/content/{id}/status": {
      "post": { "summary": "Change the status", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"status":{"type":"string"}}} } } }, "responses": { "200": { "description": "content" } } }
    },
    "/api/content/{id}/duplicate": {
      "get": { "summary": "Unsaved copy of an item", "responses": { "200": { "description": "copy" } } },
      "post": { "summary": "Save a copy reconciled with a payload", "responses": { "201": { "description": "created" } } }
    },
    "/api/query/{selector}": {
      "get": {
        "summary": "Run a selector with directives (order, limit, page, status, returnsingle, field filters)",
        "parameters": [
          {"name":"selector","in":"path","required":true,"schema":{"type":"string"}},
          {"name":"page","in":"query","schema":{"type":"integer","minimum":1}}
        ],
        "responses": { "200": { "description": "page or single record" }, "400": { "description": "bad directive" }, "404": { "description": "no record" } }
      }
    },
    "/api/dashboard": {
      "get": {
        "summary": "Recently modified items of dashboard types; restricted principals see their scoped dashboard type",
        "parameters": [ {"name":"page","in":"query","schema":{"type":"integer","minimum":1}} ],
        "responses": { "200": { "description": "page" }, "400": { "description": "bad page" }, "403": { "description": "missing edit scope" } }
      }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
