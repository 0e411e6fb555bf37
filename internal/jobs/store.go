package jobs

import (
	"fmt"
	"sync"
	"time"
)

// Store はジョブ状態をプロセス内のメモリ上に保持するレジストリです。
// 全操作は単一のミューテックスで排他され、1回の更新で設定された
// 複数フィールドは読み取り側から常に同時に観測されます。
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
	ttl     time.Duration
}

// NewStore は Store を作成します。
func NewStore(ttl time.Duration) *Store {
	return &Store{
		records: make(map[string]*Record),
		ttl:     ttl,
	}
}

// Get はジョブ情報のスナップショットを返します。存在しない場合は nil です。
// 呼び出し側に可変参照を渡さないため、常にコピーを返します。
func (s *Store) Get(jobID string) *Record {
	if jobID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[jobID]
	if !ok {
		return nil
	}
	return snapshot(record)
}

// Upsert はジョブ情報を保存します（存在しない場合は作成）。
func (s *Store) Upsert(record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.JobID] = snapshot(record)
	return nil
}

// MarkRunning は実行開始を記録します。
// 総作業量の確定と完了数のリセットは1回の更新として行われ、
// 読み取り側が running 状態と古い総数を同時に観測することはありません。
func (s *Store) MarkRunning(jobID string, totalUnits int) {
	s.updatePartial(jobID, func(record *Record) {
		record.Status = StatusRunning
		record.TotalUnits = totalUnits
		record.DoneUnits = 0
		record.Progress = ProgressInfo{
			Percent: 0,
			Stage:   "load",
		}
	})
}

// UpdateUnits は完了済み作業量を更新し、進捗率を再計算します。
// 完了数の後退は無視されます（進捗は単調増加）。
func (s *Store) UpdateUnits(jobID string, doneUnits int) {
	s.updatePartial(jobID, func(record *Record) {
		if doneUnits < record.DoneUnits {
			return
		}
		if record.TotalUnits > 0 && doneUnits > record.TotalUnits {
			doneUnits = record.TotalUnits
		}
		record.DoneUnits = doneUnits
		record.Progress = ProgressInfo{
			Percent: progressPercent(doneUnits, record.TotalUnits),
			Stage:   "write",
		}
	})
}

// MarkDone はジョブ完了時の情報を保存します。
// 成果物参照の公開と done への遷移は1回の更新で行われます。
func (s *Store) MarkDone(jobID, storedName, downloadName, downloadURL string) {
	s.updatePartial(jobID, func(record *Record) {
		record.Status = StatusSucceeded
		record.DoneUnits = record.TotalUnits
		record.Progress = ProgressInfo{
			Percent: 100,
			Stage:   "completed",
		}
		record.StoredName = storedName
		record.DownloadName = downloadName
		record.DownloadURL = downloadURL
		record.Error = nil
	})
}

// MarkFailed はジョブ失敗時の情報を保存します。
// 進捗は失敗時点の値で凍結されます。
func (s *Store) MarkFailed(jobID string, errInfo *ErrorInfo) {
	s.updatePartial(jobID, func(record *Record) {
		record.Status = StatusFailed
		if errInfo != nil {
			record.Error = errInfo
		}
	})
}

// PurgeExpired は期限切れのジョブを削除し、削除件数を返します。
func (s *Store) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for jobID, record := range s.records {
		if !record.ExpiresAt.IsZero() && record.ExpiresAt.Before(now) {
			delete(s.records, jobID)
			removed++
		}
	}
	return removed
}

// updatePartial はレコードをロック下で部分更新します。
// 存在しないIDへの更新は何もしません（掃除に先を越されたワーカーへの防御）。
// 終端状態のレコードはそれ以上変化しません。
func (s *Store) updatePartial(jobID string, mutate func(*Record)) {
	if jobID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[jobID]
	if !ok {
		return
	}
	if record.Terminal() {
		return
	}
	mutate(record)
	record.UpdatedAt = time.Now().UTC()
}

// snapshot はレコードの独立したコピーを返します。
func snapshot(record *Record) *Record {
	copied := *record
	if record.Error != nil {
		errCopy := *record.Error
		copied.Error = &errCopy
	}
	return &copied
}
