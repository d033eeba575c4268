// Package render turns model replies written in markdown into HTML and adds
// a "suggest alternatives" control to every row of a meal plan table.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"diet-chat/models"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Document is rendered markup plus the interactive regions inside it
type Document struct {
	HTML    string
	Actions []models.Action
}

// Renderer converts markdown to HTML. It is safe for concurrent use.
type Renderer struct {
	md    goldmark.Markdown
	plain goldmark.Markdown
}

// New returns a renderer whose Render adds suggestion controls
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, &suggestions{}),
		),
		plain: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
}

// Render converts markdown to HTML with a suggestion control in each row of
// every meal plan table. The whole text is converted on every call, so
// calling it again with a longer prefix of the same reply never duplicates
// controls.
func (r *Renderer) Render(markdown string) Document {
	return convert(r.md, markdown)
}

// RenderPlain converts markdown to HTML without adding controls
func (r *Renderer) RenderPlain(markdown string) Document {
	return convert(r.plain, markdown)
}

func convert(md goldmark.Markdown, markdown string) (doc Document) {
	if strings.TrimSpace(markdown) == "" {
		return Document{}
	}

	// goldmark recovers from malformed input itself; this catches anything
	// that slips through so a half-streamed reply still shows up.
	defer func() {
		if r := recover(); r != nil {
			doc = Document{HTML: "<pre>" + html.EscapeString(markdown) + "</pre>"}
		}
	}()

	source := []byte(markdown)
	root := md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, source, root); err != nil {
		return Document{HTML: "<pre>" + html.EscapeString(markdown) + "</pre>"}
	}
	return Document{HTML: buf.String(), Actions: collectActions(root)}
}

func collectActions(root ast.Node) []models.Action {
	var actions []models.Action
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if a, ok := n.(*SuggestAction); ok {
			actions = append(actions, models.Action{Meal: a.Meal, Table: a.Table, Row: a.Row})
		}
		return ast.WalkContinue, nil
	})
	return actions
}

// ErrorNotice renders a failure shown in place of a reply
func ErrorNotice(format string, args ...any) string {
	return `<div class="message-error">` + html.EscapeString(fmt.Sprintf(format, args...)) + `</div>`
}
