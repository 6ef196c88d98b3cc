package pdf

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yourusername/pdf-pipeline/internal/jobs"
)

// 結合時の2つ目の入力を一時アップロードとして保存するときの接頭辞。
// 結合完了後、この接頭辞を持つ入力は削除します。
const mergeTempPrefix = "merge-tmp-"

// Service は操作種別ごとのハンドラーを提供し、jobs.Processor を実装します。
// 各ハンドラーは進捗を粗いチェックポイント（読込 おおよそ20% / 変換 40〜60% /
// 書込 20%）で報告します。出力は常に同じパスへの上書きで、再実行しても
// 部分出力の再開は行いません。
type Service struct {
	engine Engine
	logger *log.Logger
}

// NewService は Service を初期化します。
func NewService(engine Engine, logger *log.Logger) *Service {
	return &Service{
		engine: engine,
		logger: logger,
	}
}

// ExtractText はPDF全ページのテキストを連結してテキストファイルに書き出します。
func (s *Service) ExtractText(ctx context.Context, job *jobs.Record, report jobs.ProgressFunc) error {
	s.logf("opening pdf: %s", job.SourceFilePath)
	reportProgress(report, 20)

	text, err := s.extractAllPages(ctx, job.SourceFilePath, func(page, count int) {
		reportProgress(report, 20+(60*page)/count)
	})
	if err != nil {
		return err
	}

	reportProgress(report, 90)
	if err := ensureOutputDir(job.OutputFilePath); err != nil {
		return err
	}
	if err := os.WriteFile(job.OutputFilePath, []byte(text), 0o640); err != nil {
		return newError(jobs.CodeHandlerFault, "テキストファイルの書き込みに失敗しました。", err)
	}
	s.logf("extracted text written: %s", job.OutputFilePath)
	return nil
}

// ConvertFormat は抽出したテキストを targetFormat に応じて変換します。
// txt はそのまま書き出し、docx は行を段落にした文書を組み立てます。
// 未対応のフォーマットは途中成果物を作らずに失敗します。
func (s *Service) ConvertFormat(ctx context.Context, job *jobs.Record, report jobs.ProgressFunc) error {
	format := strings.ToLower(job.TargetFormat)
	switch format {
	case "txt", "docx":
	default:
		return newError(jobs.CodeUnsupportedFormat, fmt.Sprintf("未対応のフォーマットです: %s", job.TargetFormat), nil)
	}

	s.logf("opening pdf: %s", job.SourceFilePath)
	reportProgress(report, 20)

	text, err := s.extractAllPages(ctx, job.SourceFilePath, func(page, count int) {
		reportProgress(report, 20+(40*page)/count)
	})
	if err != nil {
		return err
	}

	reportProgress(report, 70)
	if err := ensureOutputDir(job.OutputFilePath); err != nil {
		return err
	}

	switch format {
	case "txt":
		if err := os.WriteFile(job.OutputFilePath, []byte(text), 0o640); err != nil {
			return newError(jobs.CodeHandlerFault, "テキストファイルの書き込みに失敗しました。", err)
		}
	case "docx":
		reportProgress(report, 80)
		lines := strings.Split(text, "\n")
		err := writeDocxFile(job.OutputFilePath, lines, func(done, total int) {
			reportProgress(report, 80+(15*done)/total)
		})
		if err != nil {
			return newError(jobs.CodeHandlerFault, "docxファイルの生成に失敗しました。", err)
		}
	}
	s.logf("converted to %s: %s", format, job.OutputFilePath)
	return nil
}

// MergePdf は sourceFilePath の全ページ、続いて auxiliaryData のパスが指す
// 2つ目のPDFの全ページを、元の順序のまま1つのPDFに結合します。
func (s *Service) MergePdf(ctx context.Context, job *jobs.Record, report jobs.ProgressFunc) error {
	firstPath := job.SourceFilePath
	secondPath := job.AuxiliaryData
	s.logf("merging %s and %s", firstPath, secondPath)

	if !fileExists(firstPath) {
		return newError(jobs.CodeMissingInput, fmt.Sprintf("1つ目のPDFが見つかりません: %s", firstPath), nil)
	}
	if !fileExists(secondPath) {
		return newError(jobs.CodeMissingInput, fmt.Sprintf("2つ目のPDFが見つかりません: %s", secondPath), nil)
	}
	reportProgress(report, 25)

	if err := ensureOutputDir(job.OutputFilePath); err != nil {
		return err
	}
	reportProgress(report, 35)

	countA, err := s.engine.PageCount(firstPath)
	if err != nil {
		return newError(jobs.CodeHandlerFault, "1つ目のPDFを読み込めませんでした。", err)
	}
	reportProgress(report, 45)

	countB, err := s.engine.PageCount(secondPath)
	if err != nil {
		return newError(jobs.CodeHandlerFault, "2つ目のPDFを読み込めませんでした。", err)
	}
	reportProgress(report, 60)

	reportProgress(report, 70)
	if err := s.engine.MergeDocuments(firstPath, secondPath, job.OutputFilePath); err != nil {
		return newError(jobs.CodeHandlerFault, "PDFの結合に失敗しました。", err)
	}
	reportProgress(report, 90)

	if strings.HasPrefix(filepath.Base(secondPath), mergeTempPrefix) {
		if err := os.Remove(secondPath); err != nil {
			s.logf("failed to remove temp upload %s: %v", secondPath, err)
		}
	}
	reportProgress(report, 95)

	s.logf("merged %d+%d pages into %s", countA, countB, job.OutputFilePath)
	return nil
}

// DeletePage は auxiliaryData で指定された1始まりのページを除いた
// 新しいPDFを書き出します。元のファイルは変更しません。
func (s *Service) DeletePage(ctx context.Context, job *jobs.Record, report jobs.ProgressFunc) error {
	page, err := strconv.Atoi(strings.TrimSpace(job.AuxiliaryData))
	if err != nil {
		return newError(jobs.CodeInvalidPageNumber, fmt.Sprintf("ページ番号が不正です: %s", job.AuxiliaryData), err)
	}

	s.logf("opening pdf: %s", job.SourceFilePath)
	reportProgress(report, 20)

	count, err := s.engine.PageCount(job.SourceFilePath)
	if err != nil {
		return newError(jobs.CodeHandlerFault, "PDFを読み込めませんでした。", err)
	}
	if page < 1 || page > count {
		return newError(jobs.CodeInvalidPageNumber, fmt.Sprintf("ページ番号 %d は範囲外です（全%dページ）。", page, count), nil)
	}
	reportProgress(report, 60)

	if err := ensureOutputDir(job.OutputFilePath); err != nil {
		return err
	}
	if err := s.engine.RemovePage(job.SourceFilePath, page, job.OutputFilePath); err != nil {
		return newError(jobs.CodeHandlerFault, "ページの削除に失敗しました。", err)
	}
	reportProgress(report, 90)

	s.logf("page %d removed, saved as %s", page, job.OutputFilePath)
	return nil
}

// extractAllPages は全ページのテキストをページ順に連結して返します。
// perPage にはページ番号と総ページ数が渡されます。
func (s *Service) extractAllPages(ctx context.Context, path string, perPage func(page, count int)) (string, error) {
	count, err := s.engine.PageCount(path)
	if err != nil {
		return "", newError(jobs.CodeHandlerFault, "PDFを読み込めませんでした。", err)
	}

	var builder strings.Builder
	for page := 1; page <= count; page++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		text, err := s.engine.ExtractPageText(path, page)
		if err != nil {
			return "", newError(jobs.CodeHandlerFault, fmt.Sprintf("ページ %d のテキスト抽出に失敗しました。", page), err)
		}
		builder.WriteString(text)
		builder.WriteString("\n")
		if perPage != nil {
			perPage(page, count)
		}
	}
	return builder.String(), nil
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func ensureOutputDir(outputPath string) error {
	dir := filepath.Dir(outputPath)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return newError(jobs.CodeHandlerFault, "出力ディレクトリの作成に失敗しました。", err)
	}
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
