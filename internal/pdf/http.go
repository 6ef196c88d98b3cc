package pdf

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/pdf-pipeline/internal/jobs"
)

// JobSubmitter はジョブをパイプラインへ投入できるコンポーネントが実装します。
// jobs.Producer が本実装です。
type JobSubmitter interface {
	Submit(ctx context.Context, req *jobs.SubmitRequest) (*jobs.Record, error)
}

// HandlerOptions はアップロード先や上限などのハンドラー設定です。
type HandlerOptions struct {
	UploadDir   string
	OutputDir   string
	MaxFileSize int64
	Engine      Engine
}

// UploadHandler は POST /api/pdf/upload のハンドラーを返します。
// 受け取ったファイルはMIME判定でPDFであることを確認したうえで
// UploadDir にランダムな名前で保存します。
func UploadHandler(opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    jobs.CodeInvalidRequest,
				"message": "PDFファイルを選択してください。",
			})
			return
		}
		if opts.MaxFileSize > 0 && file.Size > opts.MaxFileSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    jobs.CodeInvalidRequest,
				"message": "ファイルサイズが上限を超えています。",
			})
			return
		}

		storedName := uploadName()
		storedPath := filepath.Join(opts.UploadDir, storedName)
		if err := c.SaveUploadedFile(file, storedPath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ファイルの保存に失敗しました。",
			})
			return
		}

		mtype, err := mimetype.DetectFile(storedPath)
		if err != nil || !mtype.Is("application/pdf") {
			_ = os.Remove(storedPath)
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    jobs.CodeInvalidRequest,
				"message": "PDF形式のファイルのみアップロードできます。",
			})
			return
		}

		pages := 1
		if opts.Engine != nil {
			if count, err := opts.Engine.PageCount(storedPath); err == nil {
				pages = count
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"fileName": storedName,
			"size":     file.Size,
			"pages":    pages,
		})
	}
}

// ExtractTextHandler は POST /api/pdf/extract-text のハンドラーを返します。
func ExtractTextHandler(submitter JobSubmitter, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileName, sourcePath, ok := resolveUploadedFile(c, opts)
		if !ok {
			return
		}

		req := &jobs.SubmitRequest{
			FileName:       fileName,
			OperationKind:  jobs.OperationExtractText,
			SourceFilePath: sourcePath,
			OutputFilePath: filepath.Join(opts.OutputDir, "extracted_"+baseName(fileName)+".txt"),
		}
		submitJob(c, submitter, req)
	}
}

// ConvertHandler は POST /api/pdf/convert のハンドラーを返します。
func ConvertHandler(submitter JobSubmitter, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileName, sourcePath, ok := resolveUploadedFile(c, opts)
		if !ok {
			return
		}
		targetFormat := strings.TrimSpace(c.PostForm("targetFormat"))
		if targetFormat == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    jobs.CodeInvalidRequest,
				"message": "targetFormat を指定してください。",
			})
			return
		}

		outputName := fmt.Sprintf("converted_%s.%s", baseName(fileName), strings.ToLower(targetFormat))
		req := &jobs.SubmitRequest{
			FileName:       fileName,
			OperationKind:  jobs.OperationConvertFormat,
			TargetFormat:   targetFormat,
			SourceFilePath: sourcePath,
			OutputFilePath: filepath.Join(opts.OutputDir, outputName),
		}
		submitJob(c, submitter, req)
	}
}

// MergeHandler は POST /api/pdf/merge のハンドラーを返します。
// 2つ目のPDFは multipart で受け取り、一時アップロードとして保存します。
func MergeHandler(submitter JobSubmitter, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileName, sourcePath, ok := resolveUploadedFile(c, opts)
		if !ok {
			return
		}

		second, err := c.FormFile("fileToMerge")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    jobs.CodeInvalidRequest,
				"message": "結合するPDFファイルを選択してください。",
			})
			return
		}
		if opts.MaxFileSize > 0 && second.Size > opts.MaxFileSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    jobs.CodeInvalidRequest,
				"message": "ファイルサイズが上限を超えています。",
			})
			return
		}

		secondPath := filepath.Join(opts.UploadDir, mergeTempPrefix+uploadName())
		if err := c.SaveUploadedFile(second, secondPath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ファイルの保存に失敗しました。",
			})
			return
		}
		mtype, err := mimetype.DetectFile(secondPath)
		if err != nil || !mtype.Is("application/pdf") {
			_ = os.Remove(secondPath)
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    jobs.CodeInvalidRequest,
				"message": "PDF形式のファイルのみ結合できます。",
			})
			return
		}

		outputName := fmt.Sprintf("merged_%s.pdf", uuidHex())
		req := &jobs.SubmitRequest{
			FileName:       fileName,
			OperationKind:  jobs.OperationMergePdf,
			SourceFilePath: sourcePath,
			OutputFilePath: filepath.Join(opts.OutputDir, outputName),
			AuxiliaryData:  secondPath,
		}
		submitJob(c, submitter, req)
	}
}

// DeletePageHandler は POST /api/pdf/delete-page のハンドラーを返します。
func DeletePageHandler(submitter JobSubmitter, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileName, sourcePath, ok := resolveUploadedFile(c, opts)
		if !ok {
			return
		}
		pageNumber, err := strconv.Atoi(strings.TrimSpace(c.PostForm("pageNumber")))
		if err != nil || pageNumber < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    jobs.CodeInvalidRequest,
				"message": "pageNumber は1以上の整数で指定してください。",
			})
			return
		}

		outputName := fmt.Sprintf("deleted_%s.pdf", uuidHex())
		req := &jobs.SubmitRequest{
			FileName:       fileName,
			OperationKind:  jobs.OperationDeletePage,
			SourceFilePath: sourcePath,
			OutputFilePath: filepath.Join(opts.OutputDir, outputName),
			AuxiliaryData:  strconv.Itoa(pageNumber),
		}
		submitJob(c, submitter, req)
	}
}

// resolveUploadedFile はフォームの fileName をアップロード済みファイルの
// パスに解決します。パス区切りを含む指定は受け付けません。
func resolveUploadedFile(c *gin.Context, opts HandlerOptions) (fileName, sourcePath string, ok bool) {
	fileName = strings.TrimSpace(c.PostForm("fileName"))
	if fileName == "" || fileName != filepath.Base(fileName) {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    jobs.CodeInvalidRequest,
			"message": "fileName を指定してください。",
		})
		return "", "", false
	}
	sourcePath = filepath.Join(opts.UploadDir, fileName)
	if !fileExists(sourcePath) {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    jobs.CodeInvalidRequest,
			"message": "指定されたPDFファイルが見つかりません。",
		})
		return "", "", false
	}
	return fileName, sourcePath, true
}

func submitJob(c *gin.Context, submitter JobSubmitter, req *jobs.SubmitRequest) {
	record, err := submitter.Submit(c.Request.Context(), req)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"requestId": record.ID})
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *jobs.Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		if apiErr.Code == jobs.CodePublishError {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func uploadName() string {
	return uuidHex() + ".pdf"
}

func uuidHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func baseName(fileName string) string {
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}
