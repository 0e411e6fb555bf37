// Package jobs は非同期ジョブの登録・実行・状態管理機能を提供します。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/sheet-forge/internal/config"
	"github.com/yourusername/sheet-forge/internal/excel"
)

const sweepInterval = time.Minute

// Manager はジョブの投入と状態管理を担います。
// ジョブごとに1つのゴルーチンを起動し、WaitGroup でハンドルを保持します。
type Manager struct {
	cfg       *config.Config
	store     *Store
	service   *excel.Service
	logger    *log.Logger
	wg        sync.WaitGroup
	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, service *excel.Service, store *Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if service == nil {
		return nil, errors.New("service is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		service:   service,
		logger:    logger,
		sweepStop: make(chan struct{}),
	}, nil
}

// Submit はリクエスト形状を同期検証し、ジョブを登録してバックグラウンド実行を開始します。
// 検証に失敗した場合はジョブレコードを作成せずにエラーを返します。
func (m *Manager) Submit(ctx context.Context, req *excel.BuildRequest) (string, error) {
	if err := m.service.ValidateRequest(req); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	record := &Record{
		JobID:  jobID,
		Status: StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   "queued",
		},
	}
	if err := m.store.Upsert(record); err != nil {
		return "", err
	}

	m.wg.Add(1)
	// ワーカーはリクエストより長生きするため、リクエストのctxは引き継がない
	go m.runJob(jobID, req)

	return jobID, nil
}

// GetRecord はジョブ情報のスナップショットを取得します。
func (m *Manager) GetRecord(jobID string) *Record {
	return m.store.Get(jobID)
}

// StartSweeper は期限切れジョブの掃除をバックグラウンドで開始します。
func (m *Manager) StartSweeper() {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.sweepStop:
				return
			case now := <-ticker.C:
				if removed := m.store.PurgeExpired(now.UTC()); removed > 0 {
					m.logger.Printf("swept %d expired job(s)", removed)
				}
			}
		}
	}()
}

// Shutdown は掃除を止め、実行中のワーカーを ctx の期限まで待機します。
// 期限内に完了しないワーカーは放棄されます（書き込み途中の成果物は保存されません）。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.sweepOnce.Do(func() {
		close(m.sweepStop)
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out with jobs still running: %w", ctx.Err())
	}
}

// runJob は1ジョブ分の生成処理を実行し、結果をレジストリへ反映します。
// ワーカー境界ですべての失敗を捕捉し、プロセスへ伝播させません。
func (m *Manager) runJob(jobID string, req *excel.BuildRequest) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("job %s panicked: %v", jobID, r)
			m.store.MarkFailed(jobID, &ErrorInfo{
				Code:    "INTERNAL_ERROR",
				Message: "サーバー内部でエラーが発生しました。",
			})
		}
	}()

	reporter := func(stage string, done, total int) {
		switch stage {
		case "load":
			m.store.MarkRunning(jobID, total)
		case "completed":
			// 終端遷移は MarkDone が成果物参照とあわせて行う
		default:
			m.store.UpdateUnits(jobID, done)
		}
	}

	result, err := m.service.BuildJob(context.Background(), jobID, req, reporter)
	if err != nil {
		m.failJobWithError(jobID, err)
		return
	}

	m.store.MarkDone(jobID, result.StoredName, result.DownloadName, m.buildDownloadURL(result))
}

func (m *Manager) failJobWithError(jobID string, err error) {
	var apiErr *excel.Error
	if errors.As(err, &apiErr) {
		m.logger.Printf("job %s failed: %v", jobID, err)
		m.store.MarkFailed(jobID, &ErrorInfo{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		})
		return
	}
	m.logger.Printf("job %s failed: %v", jobID, err)
	m.store.MarkFailed(jobID, &ErrorInfo{
		Code:    "INTERNAL_ERROR",
		Message: err.Error(),
	})
}

func (m *Manager) buildDownloadURL(result *excel.Result) string {
	base := m.cfg.JobResultBaseURL
	if base == "" {
		return fmt.Sprintf("/api/jobs/%s/download", result.JobID)
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), url.PathEscape(result.StoredName))
}
