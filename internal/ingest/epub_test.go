package ingest

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>The Test Book</dc:title>
  </metadata>
  <manifest>
    <item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="blank" href="text/blank.xhtml" media-type="application/xhtml+xml"/>
    <item id="notes" href="text/notes%20page.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="blank"/>
    <itemref idref="ch2"/>
    <itemref idref="notes"/>
  </spine>
</package>`

func writeTestEPUB(t *testing.T, files map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create epub: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}
	return p
}

func testEPUBFiles() map[string]string {
	return map[string]string{
		"mimetype":                    "application/epub+zip",
		"META-INF/container.xml":      testContainer,
		"OEBPS/content.opf":           testOPF,
		"OEBPS/style.css":             "body{}",
		"OEBPS/text/ch1.xhtml":        `<html><head><title>x</title></head><body><h1>The Beginning</h1><p>It was a <b>dark</b> night.</p></body></html>`,
		"OEBPS/text/ch2.xhtml":        `<html><body><div><h2>The  Middle</h2><p>Things happened.</p><script>ignored()</script></div></body></html>`,
		"OEBPS/text/blank.xhtml":      `<html><body>   </body></html>`,
		"OEBPS/text/notes page.xhtml": `<html><body><p>Some notes.</p></body></html>`,
	}
}

func TestEPUBConverter(t *testing.T) {
	p := writeTestEPUB(t, testEPUBFiles())

	doc, err := NewEPUBConverter().Convert(context.Background(), p)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if doc.Title != "The Test Book" {
		t.Errorf("Title = %q, want The Test Book", doc.Title)
	}
	if len(doc.Chapters) != 3 {
		t.Fatalf("got %d chapters, want 3 (blank skipped): %+v", len(doc.Chapters), doc.Chapters)
	}

	wantTitles := []string{"The Beginning", "The Middle", UntitledChapter}
	for i, want := range wantTitles {
		if doc.Chapters[i].Title != want {
			t.Errorf("chapters[%d].Title = %q, want %q", i, doc.Chapters[i].Title, want)
		}
	}
	if !strings.Contains(doc.Chapters[0].Content, "It was a dark night.") {
		t.Errorf("chapters[0].Content = %q", doc.Chapters[0].Content)
	}
	if strings.Contains(doc.Chapters[1].Content, "ignored()") {
		t.Errorf("script text leaked into content: %q", doc.Chapters[1].Content)
	}
	if strings.Contains(doc.Chapters[0].Content, "<title>") || strings.Contains(doc.Chapters[0].Content, "x\n") {
		t.Errorf("head leaked into content: %q", doc.Chapters[0].Content)
	}
	if !strings.Contains(doc.Markdown, "# The Beginning") {
		t.Errorf("Markdown missing heading: %q", doc.Markdown)
	}
	if !strings.Contains(doc.Markdown, "**dark**") {
		t.Errorf("Markdown missing emphasis: %q", doc.Markdown)
	}
	if !strings.Contains(doc.Text, "Things happened.") {
		t.Errorf("Text = %q", doc.Text)
	}
}

func TestEPUBConverter_Errors(t *testing.T) {
	t.Run("not a zip", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "bad.epub")
		if err := os.WriteFile(p, []byte("not a zip"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewEPUBConverter().Convert(context.Background(), p); err == nil {
			t.Error("expected error for non-zip file")
		}
	})

	t.Run("missing container", func(t *testing.T) {
		p := writeTestEPUB(t, map[string]string{"mimetype": "application/epub+zip"})
		if _, err := NewEPUBConverter().Convert(context.Background(), p); err == nil {
			t.Error("expected error for missing container.xml")
		}
	})

	t.Run("only empty documents", func(t *testing.T) {
		files := testEPUBFiles()
		files["OEBPS/text/ch1.xhtml"] = "<html><body></body></html>"
		files["OEBPS/text/ch2.xhtml"] = "<html><body></body></html>"
		files["OEBPS/text/notes page.xhtml"] = "<html><body></body></html>"
		p := writeTestEPUB(t, files)
		if _, err := NewEPUBConverter().Convert(context.Background(), p); err == nil {
			t.Error("expected error for epub without text")
		}
	})
}
