package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf-pipeline/internal/config"
	"github.com/yourusername/pdf-pipeline/internal/jobs"
	"github.com/yourusername/pdf-pipeline/internal/pdf"
)

// jobPipeline はジョブパイプラインを構成するコンポーネント一式です。
type jobPipeline struct {
	cfg      *config.Config
	store    *jobs.Store
	producer *jobs.Producer
	worker   *jobs.Worker
	engine   pdf.Engine
	logger   *log.Logger
}

func setupPipeline(cfg *config.Config, logger *log.Logger) (*jobPipeline, error) {
	store := jobs.NewStore()
	engine := pdf.NewEngine()
	service := pdf.NewService(engine, logger)

	producer, err := jobs.NewProducer(cfg.Brokers(), cfg.KafkaTopic, store, logger)
	if err != nil {
		return nil, err
	}

	worker, err := jobs.NewWorker(cfg.Brokers(), cfg.KafkaGroupID, cfg.KafkaTopic, store, service, logger)
	if err != nil {
		producer.Close()
		return nil, err
	}

	return &jobPipeline{
		cfg:      cfg,
		store:    store,
		producer: producer,
		worker:   worker,
		engine:   engine,
		logger:   logger,
	}, nil
}

// Start はワーカーの購読ループと終端レコードの掃除ゴルーチンを起動します。
func (p *jobPipeline) Start(ctx context.Context) {
	go func() {
		if err := p.worker.Run(ctx); err != nil && err != context.Canceled {
			p.logger.Printf("worker stopped with error: %v", err)
		}
	}()

	interval := time.Duration(p.cfg.CleanupIntervalMinutes) * time.Minute
	retention := time.Duration(p.cfg.StatusRetentionMinutes) * time.Minute
	p.store.StartJanitor(ctx, interval, retention, p.logger)
}

// Shutdown はプロデューサーとワーカーを閉じます。
func (p *jobPipeline) Shutdown() {
	if err := p.worker.Close(); err != nil {
		p.logger.Printf("worker close error: %v", err)
	}
	if err := p.producer.Close(); err != nil {
		p.logger.Printf("producer close error: %v", err)
	}
}

// statusHandler は GET /status/:id のハンドラーを返します。
func statusHandler(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    jobs.CodeInvalidRequest,
				"message": "ジョブIDを指定してください。",
			})
			return
		}

		record, ok := store.Get(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// statusListHandler は GET /status のハンドラーを返します。
func statusListHandler(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, store.ListAll())
	}
}
