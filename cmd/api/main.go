// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf-pipeline/internal/config"
	"github.com/yourusername/pdf-pipeline/internal/pdf"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// アップロード/出力ディレクトリを用意
	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		log.Fatalf("Failed to create upload dir: %v", err)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	logger := log.Default()

	// パイプラインの構築（ストア → プロデューサー → ワーカー）
	pipeline, err := setupPipeline(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to set up job pipeline: %v", err)
	}

	// シャットダウンシグナルでワーカーと掃除ゴルーチンを止める
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline.Start(ctx)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, cfg, pipeline)

	// サーバーの起動
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	pipeline.Shutdown()
	log.Println("Shutdown complete")
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pdf-pipeline-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループとステータス照会の配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, pipeline *jobPipeline) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	// ステータス照会（ポーリング用の読み取り専用エンドポイント）
	router.GET("/status", statusListHandler(pipeline.store))
	router.GET("/status/:id", statusHandler(pipeline.store))

	opts := pdf.HandlerOptions{
		UploadDir:   cfg.UploadDir,
		OutputDir:   cfg.OutputDir,
		MaxFileSize: cfg.MaxFileSize,
		Engine:      pipeline.engine,
	}

	api := router.Group("/api")
	{
		pdfRoutes := api.Group("/pdf")
		{
			pdfRoutes.POST("/upload", pdf.UploadHandler(opts))
			pdfRoutes.POST("/extract-text", pdf.ExtractTextHandler(pipeline.producer, opts))
			pdfRoutes.POST("/convert", pdf.ConvertHandler(pipeline.producer, opts))
			pdfRoutes.POST("/merge", pdf.MergeHandler(pipeline.producer, opts))
			pdfRoutes.POST("/delete-page", pdf.DeletePageHandler(pipeline.producer, opts))
		}
	}
}
