package script

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgnsrekt/voicestudio/internal/utils"
)

// ParseMarkdown narrates a markdown document. Headings, paragraphs and
// list items each become one dialogue; code and HTML blocks and any YAML
// frontmatter are skipped.
func ParseMarkdown(source []byte, title string) (*Script, error) {
	source = utils.RemoveFrontmatter(source)
	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var blocks []string
	collectBlocks(doc, reader.Source(), &blocks)
	return narrated(title, blocks)
}

func collectBlocks(node ast.Node, source []byte, out *[]string) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.(type) {
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.ThematicBreak:
			continue

		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			var buf strings.Builder
			inlineText(c, source, &buf)
			if t := strings.Join(strings.Fields(buf.String()), " "); t != "" {
				*out = append(*out, t)
			}

		default:
			// lists, list items and blockquotes hold further blocks
			collectBlocks(c, source, out)
		}
	}
}

func inlineText(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Text:
			buf.Write(n.Segment.Value(source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(n.Value)
		case *ast.AutoLink:
			buf.Write(n.Label(source))
		case *ast.RawHTML, *ast.Image:
			continue
		default:
			inlineText(c, source, buf)
		}
	}
}
