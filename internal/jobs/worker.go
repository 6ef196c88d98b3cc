// Package jobs は非同期ジョブの投入・状態管理・実行を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// ProgressFunc はハンドラーが進捗チェックポイントを報告するためのコールバックです。
type ProgressFunc func(percent int)

// Processor は操作種別ごとのハンドラーを提供します。internal/pdf の Service が実装します。
type Processor interface {
	ExtractText(ctx context.Context, job *Record, report ProgressFunc) error
	ConvertFormat(ctx context.Context, job *Record, report ProgressFunc) error
	MergePdf(ctx context.Context, job *Record, report ProgressFunc) error
	DeletePage(ctx context.Context, job *Record, report ProgressFunc) error
}

// Worker はブローカーを購読し、ジョブを1件ずつ直列に処理します。
// オフセットのコミットはジョブが終端状態（成功・失敗どちらでも）に
// 到達した後にのみ行います。失敗したジョブは再配信による再実行をしません。
type Worker struct {
	group     sarama.ConsumerGroup
	topic     string
	store     *Store
	processor Processor
	logger    *log.Logger
}

// ConsumerConfig は Kafka 購読側の sarama 設定を返します。
// オフセットは手動コミットのみとし、自動コミットを無効化します。
func ConsumerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Group.Session.Timeout = 30 * time.Second
	cfg.Consumer.MaxProcessingTime = 10 * time.Minute
	cfg.Consumer.Fetch.Max = 52428800
	cfg.Consumer.IsolationLevel = sarama.ReadCommitted
	return cfg
}

// NewWorker は Worker を初期化します。
func NewWorker(brokers []string, groupID, topic string, store *Store, processor Processor, logger *log.Logger) (*Worker, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if processor == nil {
		return nil, errors.New("processor is nil")
	}
	group, err := sarama.NewConsumerGroup(brokers, groupID, ConsumerConfig())
	if err != nil {
		return nil, err
	}
	return &Worker{
		group:     group,
		topic:     topic,
		store:     store,
		processor: processor,
		logger:    logger,
	}, nil
}

// Run は購読ループを実行します。ctx のキャンセルで処理中のジョブ完了後に抜けます。
// 一時的なブローカーエラーはログに残してループを継続します。
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.group.Consume(ctx, []string{w.topic}, w); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			w.logf("consume error: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Close はコンシューマーグループを閉じます。
func (w *Worker) Close() error {
	return w.group.Close()
}

// Setup は sarama.ConsumerGroupHandler の実装です。
func (w *Worker) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup は sarama.ConsumerGroupHandler の実装です。
func (w *Worker) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim はパーティション内のメッセージを発行順に1件ずつ処理します。
// セッションの context は次のメッセージを受け取るかどうかの判断にのみ使い、
// 実行中のジョブには渡しません。シャットダウンは処理中のジョブを中断しません。
func (w *Worker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			w.handleMessage(context.Background(), msg.Value)
			// 成否に関わらずコミットする。失敗はステータスで伝え、再配信はしない。
			session.MarkMessage(msg, "")
			session.Commit()
		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessage は1件のメッセージをデコードしてハンドラーへディスパッチし、
// 結果を Status Store に反映します。
func (w *Worker) handleMessage(ctx context.Context, payload []byte) {
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		// 復号できないメッセージはスキップのみ。状態更新せず再配信もしない。
		w.logf("skipping malformed job message: %v", err)
		return
	}
	if record.ID == "" {
		w.logf("skipping job message without id")
		return
	}

	w.logf("processing job %s (%s) file=%s", record.ID, record.OperationKind, record.FileName)
	record.Status = StatusProcessing
	record.Progress = 10
	w.store.Put(record)

	report := w.progressReporter(&record)
	err := w.dispatch(ctx, &record, report)
	now := time.Now().UTC()

	current, ok := w.store.Get(record.ID)
	if !ok {
		current = record
	}
	if err != nil {
		current.Status = StatusFailed
		current.Progress = 0
		current.CompletionTime = &now
		w.store.Put(current)
		w.logf("job %s failed: %s", record.ID, describeHandlerError(err))
		return
	}
	if !current.Status.Terminal() {
		current.Status = StatusCompleted
		current.Progress = 100
		current.CompletionTime = &now
		w.store.Put(current)
	}
	w.logf("job %s completed", record.ID)
}

// dispatch は操作種別に応じたハンドラーを同期的に呼び出します。
func (w *Worker) dispatch(ctx context.Context, record *Record, report ProgressFunc) error {
	switch record.OperationKind {
	case OperationExtractText:
		return w.processor.ExtractText(ctx, record, report)
	case OperationConvertFormat:
		return w.processor.ConvertFormat(ctx, record, report)
	case OperationMergePdf:
		return w.processor.MergePdf(ctx, record, report)
	case OperationDeletePage:
		return w.processor.DeletePage(ctx, record, report)
	default:
		return NewError(CodeHandlerFault, fmt.Sprintf("未知の操作種別です: %s", record.OperationKind), nil)
	}
}

// progressReporter は Status Store に束縛された進捗更新コールバックを返します。
// Processing 中の進捗は単調非減少に保ちます。
func (w *Worker) progressReporter(record *Record) ProgressFunc {
	last := record.Progress
	id := record.ID
	return func(percent int) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		if percent < last {
			return
		}
		last = percent
		current, ok := w.store.Get(id)
		if !ok {
			current = *record
		}
		if current.Status.Terminal() {
			return
		}
		current.Status = StatusProcessing
		current.Progress = percent
		w.store.Put(current)
	}
}

func describeHandlerError(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s: %s", apiErr.Code, apiErr.Message)
	}
	return fmt.Sprintf("%s: %v", CodeHandlerFault, err)
}

func (w *Worker) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
