package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID        string       `json:"jobId"`
	Status       Status       `json:"status"`
	Progress     ProgressInfo `json:"progress"`
	TotalUnits   int          `json:"totalUnits"`
	DoneUnits    int          `json:"doneUnits"`
	StoredName   string       `json:"storedName,omitempty"`
	DownloadName string       `json:"downloadName,omitempty"`
	DownloadURL  string       `json:"downloadUrl,omitempty"`
	Error        *ErrorInfo   `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

// Terminal は終端状態（done / error）かどうかを返します。
func (r *Record) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// progressPercent は実行中の進捗率を計算します。
// 100 は終端遷移（done）専用のため、実行中は99で頭打ちにします。
func progressPercent(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	percent := 100 * done / total
	if percent > 99 {
		percent = 99
	}
	return percent
}
