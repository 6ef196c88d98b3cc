// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// Kafka設定
	KafkaBrokers string // ブローカーアドレス（カンマ区切り）
	KafkaTopic   string // ジョブメッセージ用トピック
	KafkaGroupID string // コンシューマーグループID

	// ファイル設定
	UploadDir   string // アップロード保存先ディレクトリ
	OutputDir   string // 成果物出力先ディレクトリ
	MaxFileSize int64  // 単一ファイルの最大サイズ（バイト）

	// ステータス保持設定
	StatusRetentionMinutes int // 終端レコードを保持する時間（分）
	CleanupIntervalMinutes int // 掃除ゴルーチンの実行間隔（分）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// Kafka設定
		KafkaBrokers: getEnv("KAFKA_BROKERS", "127.0.0.1:9092"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "pdf-processing-topic"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "pdf-processor-group"),

		// ファイル設定
		UploadDir:   getEnv("UPLOAD_DIR", "./data/uploads"),
		OutputDir:   getEnv("OUTPUT_DIR", "./data/output"),
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB

		// ステータス保持設定
		StatusRetentionMinutes: getEnvAsInt("STATUS_RETENTION_MINUTES", 60),
		CleanupIntervalMinutes: getEnvAsInt("CLEANUP_INTERVAL_MINUTES", 10),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required")
	}
	if c.KafkaGroupID == "" {
		return fmt.Errorf("KAFKA_GROUP_ID is required")
	}

	// ローカル開発ではデフォルト値で動かせるが、本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.KafkaBrokers == "" {
			return fmt.Errorf("KAFKA_BROKERS is required in release mode")
		}
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required in release mode")
		}
		if c.OutputDir == "" {
			return fmt.Errorf("OUTPUT_DIR is required in release mode")
		}
	}

	return nil
}

// Brokers はカンマ区切りのブローカー設定を配列にして返します。
func (c *Config) Brokers() []string {
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
