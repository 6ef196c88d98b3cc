package pdf

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
)

const (
	docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

	docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`
)

// writeDocxFile は1行を1段落とするWordprocessingML文書を outputPath に書き出します。
// progress には処理済み行数と総行数が渡されます。
func writeDocxFile(outputPath string, lines []string, progress func(done, total int)) error {
	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("docxファイルの作成に失敗しました: %w", err)
	}
	defer outFile.Close()

	zipWriter := zip.NewWriter(outFile)
	defer zipWriter.Close()

	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRels},
	}
	for _, part := range parts {
		w, err := zipWriter.Create(part.name)
		if err != nil {
			return fmt.Errorf("docxパートの作成に失敗しました: %w", err)
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return fmt.Errorf("docxパートの書き込みに失敗しました: %w", err)
		}
	}

	doc, err := zipWriter.Create("word/document.xml")
	if err != nil {
		return fmt.Errorf("document.xmlの作成に失敗しました: %w", err)
	}
	if _, err := doc.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)); err != nil {
		return fmt.Errorf("document.xmlの書き込みに失敗しました: %w", err)
	}

	total := len(lines)
	for i, line := range lines {
		escaped, err := escapeXMLText(line)
		if err != nil {
			return fmt.Errorf("行のエスケープに失敗しました: %w", err)
		}
		paragraph := fmt.Sprintf(`<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, escaped)
		if _, err := doc.Write([]byte(paragraph)); err != nil {
			return fmt.Errorf("段落の書き込みに失敗しました: %w", err)
		}
		if progress != nil && ((i+1)%100 == 0 || i+1 == total) {
			progress(i+1, total)
		}
	}

	if _, err := doc.Write([]byte(`</w:body></w:document>`)); err != nil {
		return fmt.Errorf("document.xmlの書き込みに失敗しました: %w", err)
	}
	return nil
}

func escapeXMLText(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
