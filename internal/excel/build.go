// Package excel はテンプレートワークブックへの行データ書き込み機能を提供します。
package excel

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/yourusername/sheet-forge/internal/config"
	"github.com/yourusername/sheet-forge/internal/storage"
)

const (
	xlsxMIME          = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultCleanupMin = 10
	defaultDownload   = "generated.xlsx"
)

// Service は帳票生成処理を提供します。
type Service struct {
	cfg    *config.Config
	store  *storage.Local
	logger *log.Logger
	now    func() time.Time
}

// NewService は Service を作成します。
func NewService(cfg *config.Config, store *storage.Local, logger *log.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		logger: logger,
		now:    time.Now,
	}, nil
}

// ValidateRequest はリクエスト形状を同期的に検証します。
// ここで弾かれた入力に対してはジョブが作成されません。
func (s *Service) ValidateRequest(req *BuildRequest) error {
	if req == nil {
		return newError("INVALID_INPUT", "リクエスト本文を指定してください。", nil)
	}
	if len(req.Sheets) == 0 {
		return newError("INVALID_INPUT", "sheets を1件以上指定してください。", nil)
	}
	for i, spec := range req.Sheets {
		if strings.TrimSpace(spec.Name) == "" && spec.SheetIndex == nil {
			return newError("INVALID_INPUT", fmt.Sprintf("sheets[%d] に name または sheetIndex を指定してください。", i), nil)
		}
		if spec.SheetIndex != nil && *spec.SheetIndex < 0 {
			return newError("INVALID_INPUT", fmt.Sprintf("sheets[%d].sheetIndex は0以上で指定してください。", i), nil)
		}
		if spec.StartRow < 0 {
			return newError("INVALID_INPUT", fmt.Sprintf("sheets[%d].startRow は0以上で指定してください。", i), nil)
		}
	}
	return nil
}

// BuildJob はテンプレートを開き、全シートへ行データを書き込んで成果物を保存します。
// 進捗は1作業単位（行またはセル）ごとに reporter へ通知されます。
func (s *Service) BuildJob(ctx context.Context, jobID string, req *BuildRequest, progress ProgressReporter) (*Result, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	if err := s.ValidateRequest(req); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.checkTemplate(); err != nil {
		return nil, err
	}

	parsed, err := s.prepareSheets(req)
	if err != nil {
		return nil, err
	}

	total := EstimateUnits(parsed, s.cfg.ProgressUnit)
	if total == 0 {
		return nil, newError("NO_WORK", "書き込む行データがありません。", nil)
	}

	writer, err := OpenTemplate(s.cfg.TemplatePath, s.cfg.CleanCellStyles)
	if err != nil {
		return nil, newError("TEMPLATE_MISSING", "テンプレートを開けませんでした。", err)
	}
	defer writer.Close()

	reportProgress(progress, "load", 0, total)

	done := 0
	sheetResults := make([]SheetResult, 0, len(parsed))
	for _, sheet := range parsed {
		target, err := resolveSheet(writer, sheet.Spec)
		if err != nil {
			return nil, err
		}

		for i, row := range sheet.Rows {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			for j, value := range row {
				if err := writer.WriteCell(target, sheet.StartRow+i, sheet.StartCol+j, value); err != nil {
					return nil, newError("WRITE_FAILED", fmt.Sprintf("シート %s への書き込みに失敗しました。", target), err)
				}
				if s.cfg.ProgressUnit == config.ProgressUnitCell {
					done++
					reportProgress(progress, "write", done, total)
				}
			}
			if s.cfg.ProgressUnit == config.ProgressUnitRow {
				done++
				reportProgress(progress, "write", done, total)
			}
		}

		sheetResults = append(sheetResults, SheetResult{
			Name: target,
			Rows: len(sheet.Rows),
		})
	}

	// 保存名はジョブIDのみから導出し、並行完了するジョブ間の衝突を避ける
	storedName := jobID + ".xlsx"
	outputPath, err := s.store.Resolve(storedName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}
	if err := writer.SaveAs(outputPath); err != nil {
		return nil, newError("WRITE_FAILED", "生成ファイルの保存に失敗しました。", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("出力ファイルの確認に失敗しました: %w", err)
	}

	expireMinutes := s.cfg.JobExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = defaultCleanupMin
	}
	time.AfterFunc(time.Duration(expireMinutes)*time.Minute, func() {
		_ = s.store.Remove(storedName)
	})

	reportProgress(progress, "completed", total, total)

	s.logger.Printf("excel build completed job=%s sheets=%d units=%d size=%d", jobID, len(sheetResults), total, info.Size())

	return &Result{
		JobID:        jobID,
		StoredName:   storedName,
		DownloadName: sanitizeFilename(req.Filename),
		OutputSize:   info.Size(),
		TotalUnits:   total,
		Sheets:       sheetResults,
	}, nil
}

// checkTemplate はテンプレートの存在とXLSX形式を確認します。
func (s *Service) checkTemplate() error {
	path := s.cfg.TemplatePath
	if strings.TrimSpace(path) == "" {
		return newError("TEMPLATE_MISSING", "テンプレートのパスが設定されていません。", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return newError("TEMPLATE_MISSING", "テンプレートファイルが見つかりません。", err)
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return newError("TEMPLATE_MISSING", "テンプレートファイルを読み込めませんでした。", err)
	}
	if !mtype.Is(xlsxMIME) {
		return newError("TEMPLATE_MISSING", "テンプレートがXLSX形式ではありません。", nil)
	}
	return nil
}

// prepareSheets は全シート指定を正規化し、連番付与などの変換を適用します。
// 変換後の行で作業量を見積もるため、進捗の分母と実際の書き込み数は常に一致します。
func (s *Service) prepareSheets(req *BuildRequest) ([]ParsedSheet, error) {
	parsed := make([]ParsedSheet, 0, len(req.Sheets))
	for i, spec := range req.Sheets {
		startRow := spec.StartRow
		if startRow < 1 {
			startRow = s.cfg.DefaultStartRow
		}
		startCol := spec.StartCol.Column()
		if startCol < 1 {
			startCol = 1
		}

		rows := ParseRows(spec.Rows)
		if s.cfg.MaxRowsPerSheet > 0 && len(rows) > s.cfg.MaxRowsPerSheet {
			return nil, newError("LIMIT_EXCEEDED", fmt.Sprintf("sheets[%d] の行数が上限（%d行）を超えています。", i, s.cfg.MaxRowsPerSheet), nil)
		}
		if spec.AutoNumber {
			rows = applyAutoNumber(rows, spec, startRow)
		}

		parsed = append(parsed, ParsedSheet{
			Spec:     spec,
			StartRow: startRow,
			StartCol: startCol,
			Rows:     rows,
		})
	}
	return parsed, nil
}

// resolveSheet は書き込み先シートを解決します。
// 完全一致、前後空白を除いた一致、sheetIndex の順で照合し、
// 解決できない場合はジョブ全体を失敗させます（部分的な成果物を作らないため）。
func resolveSheet(w SheetWriter, spec SheetSpec) (string, error) {
	name := spec.Name
	if strings.TrimSpace(name) != "" {
		if w.SheetExists(name) {
			return name, nil
		}
		trimmed := strings.TrimSpace(name)
		for _, candidate := range w.SheetNames() {
			if strings.TrimSpace(candidate) == trimmed {
				return candidate, nil
			}
		}
		return "", newError("SHEET_NOT_FOUND", fmt.Sprintf("シート %q がテンプレートに存在しません。", name), nil)
	}

	names := w.SheetNames()
	index := -1
	if spec.SheetIndex != nil {
		index = *spec.SheetIndex
	}
	if index >= 0 && index < len(names) {
		return names[index], nil
	}
	return "", newError("SHEET_NOT_FOUND", fmt.Sprintf("sheetIndex %d に対応するシートが存在しません。", index), nil)
}

// applyAutoNumber は先頭列へ連番を付与します。
// 連番は基準行（autoNumberStartRow、未指定時は startRow）を1として数え、
// 元データの先頭列が数値の場合は旧来の重複連番とみなして除去します。
func applyAutoNumber(rows [][]string, spec SheetSpec, startRow int) [][]string {
	anchor := spec.AutoNumberStartRow
	if anchor < 1 {
		anchor = startRow
	}
	offset := startRow - anchor

	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := row
		if len(cells) > 0 && isNumeric(cells[0]) {
			cells = cells[1:]
		}
		numbered := make([]string, 0, len(cells)+1)
		numbered = append(numbered, strconv.Itoa(offset+i+1))
		numbered = append(numbered, cells...)
		out[i] = numbered
	}
	return out
}

func isNumeric(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// sanitizeFilename はダウンロード時に表示するファイル名を整えます。
// 保存名とは独立で、パス区切りなどの危険な文字を除去します。
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultDownload
	}
	name = filepath.Base(name)
	replacer := strings.NewReplacer("/", "_", "\\", "_", "\x00", "_", "\"", "_")
	name = replacer.Replace(name)
	if name == "." || name == ".." {
		return defaultDownload
	}
	if !strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		name += ".xlsx"
	}
	return name
}
