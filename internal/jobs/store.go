package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Store はジョブIDと Record の対応をプロセス内に保持します。
// Producer・Worker・ステータス照会APIが同時にアクセスするため、
// すべての操作を内部ロックで保護します。永続化は行いません。
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewStore は空の Store を作成します。
func NewStore() *Store {
	return &Store{
		records: make(map[string]Record),
	}
}

// Put は record.ID のエントリを丸ごと置き換えます（部分更新はしません）。
// 終端状態のレコードを非終端の状態で上書きすることはできません。
// 終端レコードの削除は EvictOlderThan だけが行います。
func (s *Store) Put(record Record) {
	if record.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[record.ID]; ok {
		if existing.Status.Terminal() && !record.Status.Terminal() {
			return
		}
	}
	s.records[record.ID] = record
}

// Get はジョブIDに対応する Record のコピーを返します。
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	return record, ok
}

// ListAll は全レコードのスナップショットを返します。
func (s *Store) ListAll() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		list = append(list, record)
	}
	return list
}

// EvictOlderThan は完了時刻が now-maxAge より古い終端レコードを削除し、
// 削除件数を返します。Waiting / Processing のレコードは経過時間に関わらず残します。
func (s *Store) EvictOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, record := range s.records {
		if !record.Status.Terminal() {
			continue
		}
		if record.CompletionTime == nil || !record.CompletionTime.Before(cutoff) {
			continue
		}
		delete(s.records, id)
		removed++
	}
	return removed
}

// StartJanitor は定期的に EvictOlderThan を実行するゴルーチンを起動します。
func (s *Store) StartJanitor(ctx context.Context, interval, maxAge time.Duration, logger *log.Logger) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.EvictOlderThan(maxAge); removed > 0 && logger != nil {
					logger.Printf("evicted %d finished job record(s)", removed)
				}
			}
		}
	}()
}
