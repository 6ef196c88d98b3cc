package pdf

import (
	"archive/zip"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func readZipPart(t *testing.T, reader *zip.ReadCloser, name string) string {
	t.Helper()
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		body, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(body)
	}
	t.Fatalf("part %s not found in archive", name)
	return ""
}

func TestWriteDocxFile(t *testing.T) {
	output := filepath.Join(t.TempDir(), "out.docx")

	var done, total int
	lines := []string{"first line", "second <&> line", ""}
	err := writeDocxFile(output, lines, func(d, tot int) {
		done, total = d, tot
	})
	if err != nil {
		t.Fatalf("writeDocxFile failed: %v", err)
	}
	if done != 3 || total != 3 {
		t.Fatalf("expected final progress 3/3, got %d/%d", done, total)
	}

	reader, err := zip.OpenReader(output)
	if err != nil {
		t.Fatalf("open docx: %v", err)
	}
	defer reader.Close()

	if len(reader.File) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(reader.File))
	}

	contentTypes := readZipPart(t, reader, "[Content_Types].xml")
	if !strings.Contains(contentTypes, "wordprocessingml.document.main+xml") {
		t.Fatal("content types must declare the main document part")
	}

	rels := readZipPart(t, reader, "_rels/.rels")
	if !strings.Contains(rels, `Target="word/document.xml"`) {
		t.Fatal("package relationships must point to word/document.xml")
	}

	doc := readZipPart(t, reader, "word/document.xml")
	if !strings.Contains(doc, `<w:t xml:space="preserve">first line</w:t>`) {
		t.Fatalf("missing first paragraph in %q", doc)
	}
	// XML特殊文字はエスケープされる
	if !strings.Contains(doc, "second &lt;&amp;&gt; line") {
		t.Fatalf("special characters must be escaped, got %q", doc)
	}
	if got := strings.Count(doc, "<w:p>"); got != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", got)
	}
}
