// Package legal serves the studio's terms and privacy policy.
package legal

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

//go:embed docs/*.md
var docsFS embed.FS

// ErrUnknownDocument is returned for a slug that names no document.
var ErrUnknownDocument = errors.New("legal: unknown document")

// Document is one legal text in both source and rendered form.
type Document struct {
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Markdown string `json:"-"`
	HTML     string `json:"-"`
}

// Slugs in display order.
const (
	SlugAGB         = "agb"
	SlugDatenschutz = "datenschutz"
)

var titles = map[string]string{
	SlugAGB:         "Allgemeine Geschäftsbedingungen",
	SlugDatenschutz: "Datenschutzerklärung",
}

// Raw HTML in the sources is escaped since WithUnsafe is not set.
var md = goldmark.New(
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
)

// Library holds the rendered documents.
type Library struct {
	docs  map[string]Document
	order []string
}

// Load renders every embedded document.
func Load() (*Library, error) {
	lib := &Library{docs: make(map[string]Document)}
	for _, slug := range []string{SlugAGB, SlugDatenschutz} {
		src, err := docsFS.ReadFile("docs/" + slug + ".md")
		if err != nil {
			return nil, fmt.Errorf("legal: read %s: %w", slug, err)
		}
		var buf bytes.Buffer
		if err := md.Convert(src, &buf); err != nil {
			return nil, fmt.Errorf("legal: render %s: %w", slug, err)
		}
		lib.docs[slug] = Document{Slug: slug, Title: titles[slug], Markdown: string(src), HTML: buf.String()}
		lib.order = append(lib.order, slug)
	}
	return lib, nil
}

// Get looks a document up by slug. Slugs are case-insensitive and accept
// the aliases "terms" and "privacy".
func (l *Library) Get(slug string) (Document, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	switch slug {
	case "terms":
		slug = SlugAGB
	case "privacy", "datenschutzerklaerung", "datenschutzerklärung":
		slug = SlugDatenschutz
	}
	doc, ok := l.docs[slug]
	if !ok {
		return Document{}, ErrUnknownDocument
	}
	return doc, nil
}

// List returns the documents in display order.
func (l *Library) List() []Document {
	out := make([]Document, 0, len(l.order))
	for _, slug := range l.order {
		out = append(out, l.docs[slug])
	}
	return out
}
