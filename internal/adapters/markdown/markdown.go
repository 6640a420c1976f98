// Package markdown renders notice content. Authors write Markdown; readers get
// sanitized HTML or plain text.
package markdown

import (
	"bytes"
	"html/template"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
			// raw HTML is passed through and then cleaned by the policy below
			html.WithUnsafe(),
		),
	)

	policy    = newPolicy()
	stripTags = bluemonday.StripTagsPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("table", "thead", "tbody", "tr", "th", "td")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// ToHTML converts Markdown to sanitized HTML. A conversion failure falls back
// to the escaped source.
// POST: the result contains no script, style or event-handler markup
func ToHTML(source string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		slog.Warn("markdown_render_failed", "error", err)
		return template.HTMLEscapeString(source)
	}
	return policy.Sanitize(buf.String())
}

// Render is ToHTML typed for html/template.
func Render(source string) template.HTML {
	return template.HTML(ToHTML(source)) // #nosec G203 -- sanitized by policy
}

// Plain renders Markdown and strips every tag, collapsing whitespace.
func Plain(source string) string {
	text := stripTags.Sanitize(ToHTML(source))
	return strings.Join(strings.Fields(text), " ")
}
