package render

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Header cells that mark a table as a meal plan
const (
	MealHeader       = "Meal"
	SuggestionHeader = "Food Suggestions"
)

// ButtonLabel is the visible text of a suggestion control
const ButtonLabel = "Suggest alternatives"

// KindSuggestAction is the node kind of SuggestAction
var KindSuggestAction = ast.NewNodeKind("SuggestAction")

// SuggestAction is an inline node placed at the end of a Food Suggestions
// cell. Separated is set when the cell already had content.
type SuggestAction struct {
	ast.BaseInline
	Meal      string
	Table     int
	Row       int
	Separated bool
}

func (n *SuggestAction) Kind() ast.NodeKind { return KindSuggestAction }

func (n *SuggestAction) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Meal":      n.Meal,
		"Table":     strconv.Itoa(n.Table),
		"Row":       strconv.Itoa(n.Row),
		"Separated": strconv.FormatBool(n.Separated),
	}, nil)
}

type suggestions struct{}

func (e *suggestions) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(
		util.Prioritized(&tableTransformer{}, 999),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&actionRenderer{}, 500),
	))
}

type tableTransformer struct{}

func (t *tableTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()

	var tables []*extast.Table
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if tbl, ok := n.(*extast.Table); ok {
				tables = append(tables, tbl)
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})

	for i, tbl := range tables {
		annotate(tbl, i, source)
	}
}

func annotate(tbl *extast.Table, index int, source []byte) {
	mealCol, foodCol := -1, -1
	row := 0
	for child := tbl.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *extast.TableHeader:
			for col, cell := 0, n.FirstChild(); cell != nil; col, cell = col+1, cell.NextSibling() {
				switch cellText(cell, source) {
				case MealHeader:
					mealCol = col
				case SuggestionHeader:
					foodCol = col
				}
			}
			if mealCol < 0 || foodCol < 0 {
				return
			}
		case *extast.TableRow:
			if mealCol < 0 || foodCol < 0 {
				return
			}
			meal := nthChild(n, mealCol)
			food := nthChild(n, foodCol)
			if meal != nil && food != nil {
				food.AppendChild(food, &SuggestAction{
					Meal:      cellText(meal, source),
					Table:     index,
					Row:       row,
					Separated: cellText(food, source) != "",
				})
			}
			row++
		}
	}
}

func nthChild(n ast.Node, i int) ast.Node {
	c := n.FirstChild()
	for ; c != nil && i > 0; i-- {
		c = c.NextSibling()
	}
	return c
}

// cellText returns the plain text of a table cell
func cellText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(resolveText(t.Segment.Value(source)))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *SuggestAction:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// resolveText decodes backslash escapes and character references the way
// the HTML renderer does, so labels match the text shown in the cell.
func resolveText(v []byte) []byte {
	v = util.UnescapePunctuations(v)
	v = util.ResolveNumericReferences(v)
	return util.ResolveEntityNames(v)
}

type actionRenderer struct{}

func (r *actionRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindSuggestAction, r.renderAction)
}

func (r *actionRenderer) renderAction(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*SuggestAction)
	if n.Separated {
		_, _ = w.WriteString("<br>")
	}
	_, _ = w.WriteString(`<button type="button" class="suggest-btn" data-meal="`)
	_, _ = w.Write(util.EscapeHTML([]byte(n.Meal)))
	_, _ = w.WriteString(`">`)
	_, _ = w.WriteString(ButtonLabel)
	_, _ = w.WriteString("</button>")
	return ast.WalkContinue, nil
}
