package handlers

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
)

//go:embed openapi.json
var openAPISpec []byte

const openAPIPath = "/v1/openapi.json"

var docsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}} Docs</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>
      body { margin: 0; padding: 0; }
      redoc { display: block; height: 100vh; }
    </style>
  </head>
  <body>
    <redoc spec-url="{{.SpecURL}}"></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`))

var (
	docsOnce sync.Once
	docsPage []byte
	docsErr  error
)

// renderDocs builds the docs page once, titled after the embedded document.
func renderDocs() ([]byte, error) {
	docsOnce.Do(func() {
		var doc struct {
			Info struct {
				Title string `json:"title"`
			} `json:"info"`
		}
		if docsErr = json.Unmarshal(openAPISpec, &doc); docsErr != nil {
			return
		}
		if doc.Info.Title == "" {
			doc.Info.Title = "API"
		}
		var buf bytes.Buffer
		docsErr = docsTemplate.Execute(&buf, struct{ Title, SpecURL string }{doc.Info.Title, openAPIPath})
		docsPage = buf.Bytes()
	})
	return docsPage, docsErr
}

// OpenAPIJSON handles GET /v1/openapi.json.
func (a *App) OpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

// OpenAPIDocs handles GET /v1/docs with a Redoc page over OpenAPIJSON.
func (a *App) OpenAPIDocs(w http.ResponseWriter, r *http.Request) {
	page, err := renderDocs()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}
