// Package handler contains the HTTP request handlers.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements the http.Handler interface:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Or more commonly an http.HandlerFunc, a function with the right signature.
// Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (form fields, URL params, cookies)
// 2. Call the service layer
// 3. Write the HTTP response: a rendered page, a redirect, or JSON
//
// Handlers hold no business rules. They are the glue between HTTP and the
// services.
package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/coin-tracker/internal/auth"
	"github.com/sakif/coin-tracker/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageNames lists every page template. Each one is parsed together with
// base.html into its own set, because every page defines "content" and one
// shared set would let the last page win.
var pageNames = []string{"signin", "signup", "items", "item_form"}

// PageData is what every template receives.
type PageData struct {
	Title    string
	Username string
	Flash    *Flash
	Items    []model.Item
	Item     *model.Item
	// FormAction is where item_form posts: /items for add, /items/{id} for edit.
	FormAction string
}

// Renderer renders the HTML pages and owns the flash cookie. Templates are
// parsed once at startup.
type Renderer struct {
	pages         map[string]*template.Template
	logger        *slog.Logger
	secureCookies bool
}

var templateFuncs = template.FuncMap{
	// amount prints a nullable number for display.
	"amount": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	},
	// amountValue prints a nullable number for an <input value="">.
	"amountValue": func(v *float64) string {
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	},
}

// NewRenderer parses the embedded templates. secureCookies sets the flash
// cookie's Secure flag and should match the session cookie's.
//
// TEMPLATE COMPOSITION:
// base.html defines the page skeleton with a {{template "content" .}}
// placeholder, and each page file fills it with {{define "content"}}. This
// is Go's version of layouts.
func NewRenderer(logger *slog.Logger, secureCookies bool) (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS,
			"templates/base.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{pages: pages, logger: logger, secureCookies: secureCookies}, nil
}

// render executes a page. It fills in the pending flash message and the
// signed-in username, so handlers only set the page-specific fields.
//
// The page is rendered into a buffer first: a template error halfway
// through must become a clean 500, not half a page.
func (rd *Renderer) render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	tmpl, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("unknown template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data.Flash = popFlash(w, r, rd.secureCookies)
	if data.Username == "" {
		data.Username, _ = auth.UsernameFromContext(r.Context())
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		rd.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
