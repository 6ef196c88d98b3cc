package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// 発行直後の進捗値。ブローカーに到達したがワーカー未着手であることを示します。
const progressPublished = 5

// Producer はジョブの投入を担います。レコードを Status Store に登録してから
// Kafka トピックへ発行し、発行結果に応じてレコードを更新します。
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	store    *Store
	logger   *log.Logger
}

// ProducerConfig は Kafka 発行側の sarama 設定を返します。
// 重複投入を避けるため冪等プロデューサーを有効にし、
// 全レプリカの確認応答を待ってから成功とみなします。
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Producer.Idempotent = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Timeout = 30 * time.Second
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Bytes = 16384
	cfg.Producer.Flush.Frequency = 5 * time.Millisecond
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer は Producer を初期化します。
func NewProducer(brokers []string, topic string, store *Store, logger *log.Logger) (*Producer, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	sp, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, err
	}
	return &Producer{
		producer: sp,
		topic:    topic,
		store:    store,
		logger:   logger,
	}, nil
}

// Submit はジョブを検証してIDを割り当て、ブローカーへ発行します。
// 発行前に Status Store へ Waiting のレコードを登録するため、
// 呼び出し直後のポーリングでも必ずレコードが見つかります。
func (p *Producer) Submit(ctx context.Context, req *SubmitRequest) (*Record, error) {
	if err := validateSubmitRequest(req); err != nil {
		return nil, err
	}

	record := Record{
		ID:             uuid.NewString(),
		FileName:       req.FileName,
		OperationKind:  req.OperationKind,
		TargetFormat:   req.TargetFormat,
		SourceFilePath: req.SourceFilePath,
		OutputFilePath: req.OutputFilePath,
		AuxiliaryData:  req.AuxiliaryData,
		Status:         StatusWaiting,
		Progress:       0,
		RequestTime:    time.Now().UTC(),
	}
	p.store.Put(record)

	payload, err := json.Marshal(&record)
	if err != nil {
		p.markPublishFailed(&record)
		return nil, NewError(CodePublishError, "ジョブメッセージの生成に失敗しました。", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.markPublishFailed(&record)
		return nil, NewError(CodePublishError, "ジョブをブローカーへ送信できませんでした。", err)
	}
	if p.logger != nil {
		p.logger.Printf("published job %s to %s [partition=%d offset=%d]", record.ID, p.topic, partition, offset)
	}

	// ワーカーが発行確認より先にメッセージを消費していることがある。
	// その場合は進捗を巻き戻さず、ストアの現在値を返す。
	if current, ok := p.store.Get(record.ID); ok && (current.Status.Terminal() || current.Progress > progressPublished) {
		return &current, nil
	}
	record.Status = StatusProcessing
	record.Progress = progressPublished
	p.store.Put(record)
	return &record, nil
}

// Close は下位のプロデューサーを閉じます。
func (p *Producer) Close() error {
	return p.producer.Close()
}

func (p *Producer) markPublishFailed(record *Record) {
	now := time.Now().UTC()
	record.Status = StatusFailed
	record.Progress = 0
	record.CompletionTime = &now
	p.store.Put(*record)
}

func validateSubmitRequest(req *SubmitRequest) error {
	if req == nil {
		return NewError(CodeInvalidRequest, "リクエストが空です。", nil)
	}
	if req.FileName == "" {
		return NewError(CodeInvalidRequest, "fileName を指定してください。", nil)
	}
	if !req.OperationKind.Valid() {
		return NewError(CodeInvalidRequest, "operationKind が不正です。", nil)
	}
	if req.SourceFilePath == "" {
		return NewError(CodeInvalidRequest, "sourceFilePath を指定してください。", nil)
	}
	switch req.OperationKind {
	case OperationConvertFormat:
		if req.TargetFormat == "" {
			return NewError(CodeInvalidRequest, "targetFormat を指定してください。", nil)
		}
	case OperationMergePdf:
		if req.AuxiliaryData == "" {
			return NewError(CodeInvalidRequest, "結合する2つ目のPDFを指定してください。", nil)
		}
	}
	return nil
}
