package legal

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// Handler serves the legal documents over HTTP.
type Handler struct {
	lib    *Library
	logger *logging.Logger
}

func NewHandler(lib *Library, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{lib: lib, logger: logger}
}

// Routes mounts GET / and GET /{doc}.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{doc}", h.Show)
	return r
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"documents": h.lib.List()})
}

// Show renders the document as an HTML page. ?format=markdown returns the
// source and ?format=fragment the bare HTML for embedding in a modal.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	doc, err := h.lib.Get(chi.URLParam(r, "doc"))
	if errors.Is(err, ErrUnknownDocument) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	switch r.URL.Query().Get("format") {
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(doc.Markdown))
	case "fragment":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(doc.HTML))
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := page.Execute(w, struct {
			Title string
			Body  template.HTML
		}{doc.Title, template.HTML(doc.HTML)}); err != nil {
			h.logger.Error("legal: render page failed", "error", err, "doc", doc.Slug)
		}
	}
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="de">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>{{.Title}}</title></head>
<body><main>{{.Body}}</main></body>
</html>
`))
