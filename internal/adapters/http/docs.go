package http

import (
	"encoding/json"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/streetblock/api"
)

// The reference page loads the JSON rendering so Swagger UI does not need
// its YAML parser. Requests are not sent from the page: block resolution
// hits public Overpass instances and is rate limited.
const referenceHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>StreetBlock API reference</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
  <style>body{margin:0;font-family:sans-serif}header{padding:12px 20px;background:#2d3e50;color:#fff}header a{color:#9cd}</style>
</head>
<body>
  <header>
    StreetBlock resolves the OSM ways between two street intersections.
    Raw document: <a href="/docs/openapi.yaml">YAML</a> | <a href="/docs/openapi.json">JSON</a>
  </header>
  <div id="reference"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/docs/openapi.json',
      dom_id: '#reference',
      docExpansion: 'list',
      defaultModelsExpandDepth: 0,
      supportedSubmitMethods: [],
    });
  </script>
</body>
</html>`

var (
	openAPIJSONOnce sync.Once
	openAPIJSON     []byte
	openAPIJSONErr  error
)

// renderOpenAPIJSON parses the embedded document once and caches its JSON form.
func renderOpenAPIJSON() ([]byte, error) {
	openAPIJSONOnce.Do(func() {
		loader := &openapi3.Loader{IsExternalRefsAllowed: false}
		doc, err := loader.LoadFromData(api.OpenAPI)
		if err != nil {
			openAPIJSONErr = err
			return
		}
		openAPIJSON, openAPIJSONErr = json.Marshal(doc)
	})
	return openAPIJSON, openAPIJSONErr
}

// SetupDocs registers the API reference at /docs and the embedded OpenAPI
// document at /docs/openapi.yaml and /docs/openapi.json.
func SetupDocs(app *fiber.App) {
	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/html; charset=utf-8")
		return c.SendString(referenceHTML)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "application/yaml")
		return c.Send(api.OpenAPI)
	})

	app.Get("/docs/openapi.json", func(c *fiber.Ctx) error {
		data, err := renderOpenAPIJSON()
		if err != nil {
			return newError(c, fiber.StatusInternalServerError, "internal_error", "openapi document: "+err.Error(), nil)
		}
		c.Set("Content-Type", "application/json")
		return c.Send(data)
	})
}
