// ABOUTME: Renders Adaptive Card JSON payloads into sanitized HTML fragments
// ABOUTME: Supports the common element types; everything else falls back to raw JSON

package cards

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// element is the loosely-typed shape shared by all card body elements.
type element struct {
	Type                string    `json:"type"`
	Text                string    `json:"text"`
	Weight              string    `json:"weight"`
	Size                string    `json:"size"`
	HorizontalAlignment string    `json:"horizontalAlignment"`
	IsSubtle            bool      `json:"isSubtle"`
	URL                 string    `json:"url"`
	AltText             string    `json:"altText"`
	Items               []element `json:"items"`
	Columns             []column  `json:"columns"`
	Actions             []action  `json:"actions"`
	Facts               []fact    `json:"facts"`
}

type column struct {
	Items []element `json:"items"`
}

type action struct {
	Title string `json:"title"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type card struct {
	Type string    `json:"type"`
	Body []element `json:"body"`
}

var textSizes = map[string]string{
	"Small":      "0.9em",
	"Default":    "1em",
	"Medium":     "1.2em",
	"Large":      "1.5em",
	"ExtraLarge": "2em",
}

var imageWidths = map[string]int{
	"Small":  80,
	"Medium": 120,
	"Large":  200,
}

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("button")
	p.AllowAttrs("style").OnElements("div", "span", "img", "button")
	p.AllowStyles("font-size", "text-align", "opacity", "padding", "margin",
		"display", "max-width", "width", "border", "border-radius",
		"background", "cursor", "height").Globally()
	return p
}

// RenderHTML converts one Adaptive Card payload to a sanitized HTML fragment.
// Payloads that are JSON strings are treated as pre-rendered HTML and
// sanitized directly; anything that is not an AdaptiveCard object is shown as
// indented JSON.
func RenderHTML(raw json.RawMessage) template.HTML {
	var htmlStr string
	if err := json.Unmarshal(raw, &htmlStr); err == nil {
		return template.HTML(policy.Sanitize(htmlStr))
	}

	var c card
	if err := json.Unmarshal(raw, &c); err != nil || c.Type != "AdaptiveCard" {
		return jsonFallback(raw)
	}

	var b strings.Builder
	b.WriteString(`<div class="adaptive-card">`)
	for _, el := range c.Body {
		renderElement(&b, el, 0)
	}
	b.WriteString(`</div>`)
	return template.HTML(policy.Sanitize(b.String()))
}

// maxDepth caps recursion for pathologically nested cards.
const maxDepth = 16

func renderElement(b *strings.Builder, el element, depth int) {
	if depth > maxDepth {
		return
	}

	switch el.Type {
	case "TextBlock":
		renderTextBlock(b, el)
	case "Image":
		renderImage(b, el)
	case "Container":
		b.WriteString(`<div style="padding: 10px; margin: 5px 0;">`)
		for _, item := range el.Items {
			renderElement(b, item, depth+1)
		}
		b.WriteString(`</div>`)
	case "ColumnSet":
		if len(el.Columns) == 0 {
			return
		}
		b.WriteString(`<div style="display: flex;">`)
		for _, col := range el.Columns {
			fmt.Fprintf(b, `<div style="width: %d%%;">`, 100/len(el.Columns))
			for _, item := range col.Items {
				renderElement(b, item, depth+1)
			}
			b.WriteString(`</div>`)
		}
		b.WriteString(`</div>`)
	case "ProgressBar":
		b.WriteString(`<div style="background: #e0e0e0; height: 4px; border-radius: 2px; margin: 10px 0;">` +
			`<div style="background: #1976d2; height: 4px; width: 60%; border-radius: 2px;"></div></div>`)
	case "FactSet":
		renderFactSet(b, el)
	case "ActionSet":
		renderActionSet(b, el)
	}
}

func renderTextBlock(b *strings.Builder, el element) {
	if el.Text == "" {
		return
	}

	size, ok := textSizes[el.Size]
	if !ok {
		size = "1em"
	}

	style := "font-size: " + size + ";"
	switch strings.ToLower(el.HorizontalAlignment) {
	case "center":
		style += " text-align: center;"
	case "right":
		style += " text-align: right;"
	}
	if el.IsSubtle {
		style += " opacity: 0.7;"
	}

	text := html.EscapeString(el.Text)
	if strings.EqualFold(el.Weight, "bolder") {
		fmt.Fprintf(b, `<div style="%s"><strong>%s</strong></div>`, style, text)
		return
	}
	fmt.Fprintf(b, `<div style="%s">%s</div>`, style, text)
}

func renderImage(b *strings.Builder, el element) {
	if el.URL == "" {
		return
	}

	alt := html.EscapeString(el.AltText)
	src := html.EscapeString(el.URL)
	if width, ok := imageWidths[el.Size]; ok {
		fmt.Fprintf(b, `<img src="%s" alt="%s" style="width: %dpx;">`, src, alt, width)
		return
	}
	fmt.Fprintf(b, `<img src="%s" alt="%s" style="max-width: 100%%;">`, src, alt)
}

func renderFactSet(b *strings.Builder, el element) {
	if len(el.Facts) == 0 {
		return
	}

	b.WriteString(`<div style="margin: 5px 0;">`)
	for _, f := range el.Facts {
		fmt.Fprintf(b, `<div><strong>%s</strong> <span>%s</span></div>`,
			html.EscapeString(f.Title), html.EscapeString(f.Value))
	}
	b.WriteString(`</div>`)
}

func renderActionSet(b *strings.Builder, el element) {
	if len(el.Actions) == 0 {
		return
	}

	style := "margin: 10px 0;"
	switch strings.ToLower(el.HorizontalAlignment) {
	case "center":
		style += " text-align: center;"
	case "right":
		style += " text-align: right;"
	}

	fmt.Fprintf(b, `<div style="%s">`, style)
	for _, a := range el.Actions {
		if a.Title == "" {
			continue
		}
		fmt.Fprintf(b, `<button style="margin: 0 5px; padding: 8px 16px; border: 1px solid #ccc; `+
			`border-radius: 4px; background: #f5f5f5; cursor: pointer;">%s</button>`,
			html.EscapeString(a.Title))
	}
	b.WriteString(`</div>`)
}

func jsonFallback(raw json.RawMessage) template.HTML {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	return template.HTML("<pre><code>" + html.EscapeString(pretty.String()) + "</code></pre>")
}
