package handler

import (
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

const pagesHTML = `
{{define "layout_head"}}<!DOCTYPE html>
<html>
  <head>
    <title>{{.}}</title>
    <style>
      body { font-family: sans-serif; display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; background: #f5f5f5; }
      .container { text-align: center; background: white; padding: 40px; border-radius: 8px; box-shadow: 0 2px 8px rgba(0,0,0,0.1); }
      h1 { color: #d32f2f; margin: 0 0 10px 0; }
      p { color: #666; margin: 0 0 20px 0; }
      code { background: #f0f0f0; padding: 2px 6px; border-radius: 4px; }
      a { color: #1976d2; text-decoration: none; }
    </style>
  </head>
  <body>
    <div class="container">
{{end}}

{{define "layout_foot"}}    </div>
  </body>
</html>
{{end}}

{{define "not_found"}}{{template "layout_head" "QR Code Not Found"}}
      <h1>404 - QR Code Not Found</h1>
      <p>The QR code <code>{{.Code}}</code> does not exist or has been deleted.</p>
{{template "layout_foot"}}{{end}}

{{define "error"}}{{template "layout_head" "Error"}}
      <h1>{{.Status}} - Server Error</h1>
      <p>An error occurred while processing your request.</p>
{{template "layout_foot"}}{{end}}

{{define "unauthorized"}}{{template "layout_head" "Access Denied"}}
      <h1>403 - Access Denied</h1>
      <p>Your account is not allowed to manage QR codes.</p>
      <p><a href="/auth/signout">Sign out</a></p>
{{template "layout_foot"}}{{end}}

{{define "signed_out"}}{{template "layout_head" "Signed Out"}}
      <h1>Signed Out</h1>
      <p><a href="/auth/signin">Sign in again</a></p>
{{template "layout_foot"}}{{end}}
`

type notFoundPage struct {
	Code string
}

type errorPage struct {
	Status int
}

// Renderer serves the built-in HTML pages through echo's Render.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() *Renderer {
	return &Renderer{templates: template.Must(template.New("pages").Parse(pagesHTML))}
}

func (r *Renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}
