// ABOUTME: Markdown text extraction built on the goldmark AST.
// ABOUTME: Excerpt and FirstHeading skip code blocks, images, and markup.

package content

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// RenderHTML converts markdown to HTML.
func RenderHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Excerpt extracts a plain-text summary of at most maxRunes runes,
// cut on a word boundary. Headings, code blocks, raw HTML, and images
// contribute nothing.
func Excerpt(source string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	src := []byte(source)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading, *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.Image:
			if entering {
				return ast.WalkSkipChildren, nil
			}
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte(' ')
				}
			}
		case *ast.Paragraph:
			if !entering {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})

	words := strings.Fields(b.String())
	if len(words) == 0 {
		return ""
	}

	var out strings.Builder
	count := 0
	for i, w := range words {
		wlen := utf8.RuneCountInString(w)
		sep := 0
		if i > 0 {
			sep = 1
		}
		if count+sep+wlen > maxRunes {
			if i == 0 {
				// A single overlong word gets cut mid-word.
				out.WriteString(string([]rune(w)[:maxRunes]))
			}
			out.WriteString("…")
			return out.String()
		}
		if i > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(w)
		count += sep + wlen
	}
	return out.String()
}

// FirstHeading returns the text of the first heading in the document,
// or "" when there is none.
func FirstHeading(source string) string {
	src := []byte(source)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var title strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		ast.Walk(h, func(inner ast.Node, entering bool) (ast.WalkStatus, error) {
			if t, ok := inner.(*ast.Text); ok && entering {
				title.Write(t.Segment.Value(src))
			}
			return ast.WalkContinue, nil
		})
		return ast.WalkStop, nil
	})
	return strings.TrimSpace(title.String())
}

// Slugify derives a d-tag identifier from a title: lowercase, with runs
// of non-alphanumeric characters collapsed to single dashes.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}
