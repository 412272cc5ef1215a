package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jackzampolin/skim/internal/store"
)

// UntitledChapter is used for EPUB documents without an h1 or h2.
const UntitledChapter = "Untitled Chapter"

const containerPath = "META-INF/container.xml"

// EPUBConverter reads an EPUB container: one chapter per XHTML document in
// spine order, titled by its first h1 or h2.
type EPUBConverter struct {
	md *converter.Converter
}

// NewEPUBConverter creates an EPUB converter with markdown output.
func NewEPUBConverter() *EPUBConverter {
	return &EPUBConverter{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Titles   []string `xml:"metadata>title"`
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

// Convert implements Converter.
func (c *EPUBConverter) Convert(ctx context.Context, p string) (*Document, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var container epubContainer
	if err := decodeXML(files, containerPath, &container); err != nil {
		return nil, err
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return nil, fmt.Errorf("epub container lists no package document")
	}
	opfPath := container.Rootfiles[0].FullPath

	var pkg opfPackage
	if err := decodeXML(files, opfPath, &pkg); err != nil {
		return nil, err
	}

	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		if strings.Contains(item.MediaType, "html") {
			hrefs[item.ID] = item.Href
		}
	}

	doc := &Document{}
	if len(pkg.Titles) > 0 {
		doc.Title = strings.TrimSpace(pkg.Titles[0])
	}

	var texts, markdowns []string
	baseDir := path.Dir(opfPath)
	for _, ref := range pkg.Spine {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		href, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		if unescaped, err := url.PathUnescape(href); err == nil {
			href = unescaped
		}
		name := path.Join(baseDir, href)

		raw, err := readZipFile(files, name)
		if err != nil {
			return nil, err
		}
		root, err := html.Parse(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}

		content := strings.TrimSpace(collectText(root))
		if content == "" {
			continue
		}
		title := findHeading(root)
		if title == "" {
			title = UntitledChapter
		}

		doc.Chapters = append(doc.Chapters, store.ChapterInput{Title: title, Content: content})
		texts = append(texts, content)
		if md, err := c.md.ConvertString(string(raw)); err == nil {
			markdowns = append(markdowns, strings.TrimSpace(md))
		}
	}

	if len(doc.Chapters) == 0 {
		return nil, fmt.Errorf("epub has no readable documents")
	}
	doc.Text = strings.Join(texts, "\n\n")
	doc.Markdown = strings.Join(markdowns, "\n\n")
	return doc, nil
}

func readZipFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("epub is missing %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func decodeXML(files map[string]*zip.File, name string, v any) error {
	data, err := readZipFile(files, name)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// findHeading returns the text of the first h1 or h2 in document order.
func findHeading(n *html.Node) string {
	if n.Type == html.ElementNode && (n.DataAtom == atom.H1 || n.DataAtom == atom.H2) {
		if text := strings.TrimSpace(collectText(n)); text != "" {
			return strings.Join(strings.Fields(text), " ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findHeading(c); t != "" {
			return t
		}
	}
	return ""
}

// collectText extracts visible text, ending block elements with a newline.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Head:
				return
			case atom.Br:
				sb.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			sb.WriteByte('\n')
		}
	}
	walk(n)
	return sb.String()
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Blockquote,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Li, atom.Tr, atom.Pre, atom.Hr:
		return true
	}
	return false
}
