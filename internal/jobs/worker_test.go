package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

// fakeProcessor は操作種別ごとの挙動を差し替えられるテスト用実装です。
type fakeProcessor struct {
	extractText   func(ctx context.Context, job *Record, report ProgressFunc) error
	convertFormat func(ctx context.Context, job *Record, report ProgressFunc) error
	mergePdf      func(ctx context.Context, job *Record, report ProgressFunc) error
	deletePage    func(ctx context.Context, job *Record, report ProgressFunc) error
}

func (f *fakeProcessor) ExtractText(ctx context.Context, job *Record, report ProgressFunc) error {
	if f.extractText != nil {
		return f.extractText(ctx, job, report)
	}
	return nil
}

func (f *fakeProcessor) ConvertFormat(ctx context.Context, job *Record, report ProgressFunc) error {
	if f.convertFormat != nil {
		return f.convertFormat(ctx, job, report)
	}
	return nil
}

func (f *fakeProcessor) MergePdf(ctx context.Context, job *Record, report ProgressFunc) error {
	if f.mergePdf != nil {
		return f.mergePdf(ctx, job, report)
	}
	return nil
}

func (f *fakeProcessor) DeletePage(ctx context.Context, job *Record, report ProgressFunc) error {
	if f.deletePage != nil {
		return f.deletePage(ctx, job, report)
	}
	return nil
}

func newTestWorker(processor Processor) (*Worker, *Store) {
	store := NewStore()
	w := &Worker{
		topic:     "pdf-processing-topic",
		store:     store,
		processor: processor,
		logger:    log.New(io.Discard, "", 0),
	}
	return w, store
}

func jobPayload(t *testing.T, record Record) []byte {
	t.Helper()
	payload, err := json.Marshal(&record)
	if err != nil {
		t.Fatalf("marshal job payload: %v", err)
	}
	return payload
}

func TestWorkerHandleMessageSuccess(t *testing.T) {
	var (
		seen  []int
		store *Store
	)
	w, store := newTestWorker(&fakeProcessor{
		extractText: func(ctx context.Context, job *Record, report ProgressFunc) error {
			report(20)
			report(60)
			report(90)
			current, _ := store.Get(job.ID)
			seen = append(seen, current.Progress)
			return nil
		},
	})

	record := newTestRecord("job-1", StatusWaiting)
	w.handleMessage(context.Background(), jobPayload(t, record))

	got, ok := store.Get("job-1")
	if !ok {
		t.Fatal("expected record in store")
	}
	if got.Status != StatusCompleted || got.Progress != 100 {
		t.Fatalf("expected Completed/100, got %s/%d", got.Status, got.Progress)
	}
	if got.CompletionTime == nil {
		t.Fatal("expected completionTime to be set")
	}
	if len(seen) != 1 || seen[0] != 90 {
		t.Fatalf("expected progress 90 visible inside handler, got %v", seen)
	}
}

func TestWorkerHandleMessageHandlerError(t *testing.T) {
	w, store := newTestWorker(&fakeProcessor{
		deletePage: func(ctx context.Context, job *Record, report ProgressFunc) error {
			report(20)
			return NewError(CodeInvalidPageNumber, "ページ番号が範囲外です。", nil)
		},
	})

	record := newTestRecord("job-1", StatusWaiting)
	record.OperationKind = OperationDeletePage
	record.AuxiliaryData = "9"
	w.handleMessage(context.Background(), jobPayload(t, record))

	got, _ := store.Get("job-1")
	if got.Status != StatusFailed || got.Progress != 0 {
		t.Fatalf("expected Failed/0, got %s/%d", got.Status, got.Progress)
	}
	if got.CompletionTime == nil {
		t.Fatal("expected completionTime to be set on failure")
	}
}

func TestWorkerHandleMessageMalformed(t *testing.T) {
	w, store := newTestWorker(&fakeProcessor{})

	// 復号不能なメッセージと ID 欠落メッセージはどちらも状態を作らない
	w.handleMessage(context.Background(), []byte("{not json"))
	w.handleMessage(context.Background(), []byte(`{"fileName":"a.pdf"}`))

	if got := len(store.ListAll()); got != 0 {
		t.Fatalf("malformed messages must not create records, got %d", got)
	}
}

func TestWorkerHandleMessageUnknownKind(t *testing.T) {
	w, store := newTestWorker(&fakeProcessor{})

	record := newTestRecord("job-1", StatusWaiting)
	record.OperationKind = "RotatePages"
	w.handleMessage(context.Background(), jobPayload(t, record))

	got, _ := store.Get("job-1")
	if got.Status != StatusFailed {
		t.Fatalf("unknown operation kind should fail the job, got %s", got.Status)
	}
}

func TestWorkerProgressReporterMonotonic(t *testing.T) {
	w, store := newTestWorker(&fakeProcessor{})

	record := newTestRecord("job-1", StatusProcessing)
	record.Progress = 10
	store.Put(record)

	report := w.progressReporter(&record)
	report(40)
	report(25) // 逆行は無視される
	got, _ := store.Get("job-1")
	if got.Progress != 40 {
		t.Fatalf("expected progress to stay at 40, got %d", got.Progress)
	}

	report(250) // 上限に丸められる
	got, _ = store.Get("job-1")
	if got.Progress != 100 {
		t.Fatalf("expected progress clamped to 100, got %d", got.Progress)
	}
}

func TestWorkerProgressReporterSkipsTerminal(t *testing.T) {
	w, store := newTestWorker(&fakeProcessor{})

	now := time.Now().UTC()
	record := newTestRecord("job-1", StatusFailed)
	record.CompletionTime = &now
	store.Put(record)

	report := w.progressReporter(&Record{ID: "job-1", Progress: 0})
	report(50)

	got, _ := store.Get("job-1")
	if got.Status != StatusFailed || got.Progress != 0 {
		t.Fatalf("terminal record must not be touched, got %s/%d", got.Status, got.Progress)
	}
}

// fakeSession は sarama.ConsumerGroupSession のテスト用実装です。
type fakeSession struct {
	ctx     context.Context
	marked  int
	commits int
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string           { return "test-member" }
func (s *fakeSession) GenerationID() int32        { return 1 }
func (s *fakeSession) MarkOffset(topic string, partition int32, offset int64, metadata string)  {}
func (s *fakeSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {}
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string)                 { s.marked++ }
func (s *fakeSession) Commit()                                                                  { s.commits++ }
func (s *fakeSession) Context() context.Context                                                 { return s.ctx }

// fakeClaim は sarama.ConsumerGroupClaim のテスト用実装です。
type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "pdf-processing-topic" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestWorkerShutdownFinishesInFlightJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handlerCtxErr error
	w, store := newTestWorker(&fakeProcessor{
		extractText: func(hctx context.Context, job *Record, report ProgressFunc) error {
			// ジョブ実行中にシャットダウンシグナルが届く
			cancel()
			handlerCtxErr = hctx.Err()
			if err := hctx.Err(); err != nil {
				return err
			}
			report(90)
			return nil
		},
	})

	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{
		Topic: "pdf-processing-topic",
		Value: jobPayload(t, newTestRecord("job-1", StatusWaiting)),
	}

	if err := w.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim returned error: %v", err)
	}

	if handlerCtxErr != nil {
		t.Fatalf("in-flight job must not see the shutdown cancellation: %v", handlerCtxErr)
	}
	got, _ := store.Get("job-1")
	if got.Status != StatusCompleted || got.Progress != 100 {
		t.Fatalf("in-flight job must finish before shutdown, got %s/%d", got.Status, got.Progress)
	}
	if session.marked != 1 || session.commits != 1 {
		t.Fatalf("expected one mark and one commit, got %d/%d", session.marked, session.commits)
	}
}

func TestWorkerRedeliveryKeepsFinalState(t *testing.T) {
	calls := 0
	w, store := newTestWorker(&fakeProcessor{
		extractText: func(ctx context.Context, job *Record, report ProgressFunc) error {
			calls++
			return nil
		},
	})

	record := newTestRecord("job-1", StatusWaiting)
	payload := jobPayload(t, record)
	w.handleMessage(context.Background(), payload)
	first, _ := store.Get("job-1")

	// 同一メッセージの再配信はハンドラーを再実行するが、終端状態は保たれる
	w.handleMessage(context.Background(), payload)
	second, _ := store.Get("job-1")

	if calls != 2 {
		t.Fatalf("expected both deliveries to run the handler, got %d calls", calls)
	}
	if second.Status != StatusCompleted || second.Progress != 100 {
		t.Fatalf("expected Completed/100 after redelivery, got %s/%d", second.Status, second.Progress)
	}
	if first.Status != StatusCompleted {
		t.Fatalf("expected Completed after first delivery, got %s", first.Status)
	}
}
