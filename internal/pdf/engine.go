// Package pdf はPDF操作のハンドラーとドキュメントエンジンを提供します。
package pdf

import (
	"fmt"
	"strconv"

	ledongthuc "github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// Engine はドキュメントエンジンとの境界インターフェースです。
// ページ番号は1始まりです。テストではフェイク実装に差し替えます。
type Engine interface {
	PageCount(path string) (int, error)
	ExtractPageText(path string, page int) (string, error)
	// MergeDocuments は pathA の全ページ、続いて pathB の全ページを
	// 元の順序のまま outputPath に書き出します。文書メタデータ
	// （タイトル・著者・件名・キーワード・作成者）は pathA のものを引き継ぎます。
	MergeDocuments(pathA, pathB, outputPath string) error
	// RemovePage は指定ページを除いた新しいPDFを outputPath に書き出します。
	// 入力ファイルは変更しません。
	RemovePage(path string, page int, outputPath string) error
}

// pdfcpuEngine は pdfcpu と ledongthuc/pdf によるデフォルト実装です。
type pdfcpuEngine struct{}

// NewEngine はデフォルトのドキュメントエンジンを返します。
func NewEngine() Engine {
	return &pdfcpuEngine{}
}

func (e *pdfcpuEngine) PageCount(path string) (int, error) {
	count, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return count, nil
}

func (e *pdfcpuEngine) ExtractPageText(path string, page int) (string, error) {
	f, r, err := ledongthuc.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	if page < 1 || page > r.NumPage() {
		return "", fmt.Errorf("page %d out of range (1-%d)", page, r.NumPage())
	}
	p := r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from page %d: %w", page, err)
	}
	return text, nil
}

func (e *pdfcpuEngine) MergeDocuments(pathA, pathB, outputPath string) error {
	// pdfcpu の結合は先頭ファイルの文書情報を維持する
	if err := pdfapi.MergeCreateFile([]string{pathA, pathB}, outputPath, false, nil); err != nil {
		return fmt.Errorf("failed to merge documents: %w", err)
	}
	return nil
}

func (e *pdfcpuEngine) RemovePage(path string, page int, outputPath string) error {
	if err := pdfapi.RemovePagesFile(path, outputPath, []string{strconv.Itoa(page)}, nil); err != nil {
		return fmt.Errorf("failed to remove page %d: %w", page, err)
	}
	return nil
}
