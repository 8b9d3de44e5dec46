// Package views renderiza las páginas HTML que ve el usuario al volver de un proveedor.
package views

import (
	"html/template"
	"net/http"
)

var errorTmpl = template.Must(template.New("error").Parse(`<!doctype html>
<html lang="es">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} · DevPulse</title>
<style>
body{font-family:system-ui,sans-serif;background:#0f172a;color:#e2e8f0;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0}
main{max-width:28rem;padding:2rem;border-radius:.75rem;background:#1e293b}
h1{font-size:1.25rem;margin-top:0}
a{color:#38bdf8}
code{color:#94a3b8}
</style>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Code}}<p><code>{{.Code}}</code></p>{{end}}
{{if .HomeURL}}<p><a href="{{.HomeURL}}">Volver a DevPulse</a></p>{{end}}
</main>
</body>
</html>
`))

// ErrorPage son los datos de la página de error.
type ErrorPage struct {
	Title   string
	Message string
	Code    string
	HomeURL string
}

// WriteErrorPage renderiza la página con status.
func WriteErrorPage(w http.ResponseWriter, status int, p ErrorPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = errorTmpl.Execute(w, p)
}
