package excel

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/yourusername/sheet-forge/internal/config"
	"github.com/yourusername/sheet-forge/internal/storage"
)

func writeTemplate(t *testing.T, path string, sheets ...string) {
	t.Helper()
	f := excelize.NewFile()
	for _, name := range sheets {
		if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("failed to create sheet %q: %v", name, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("failed to save template: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close template: %v", err)
	}
}

func newTestService(t *testing.T, cfg *config.Config) (*Service, string) {
	t.Helper()
	outDir := t.TempDir()
	cfg.OutputDir = outDir
	store, err := storage.NewLocal(outDir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	svc, err := NewService(cfg, store, log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc, outDir
}

func testConfig(templatePath string) *config.Config {
	return &config.Config{
		TemplatePath:     templatePath,
		JobExpireMinutes: 10,
		DefaultStartRow:  25,
		ProgressUnit:     config.ProgressUnitCell,
		MaxRowsPerSheet:  10000,
	}
}

type progressTrace struct {
	stages []string
	done   []int
	total  int
}

func (p *progressTrace) reporter() ProgressReporter {
	return func(stage string, done, total int) {
		p.stages = append(p.stages, stage)
		p.done = append(p.done, done)
		p.total = total
	}
}

func TestBuildJobWritesCells(t *testing.T) {
	templatePath := filepath.Join(t.TempDir(), "template.xlsx")
	writeTemplate(t, templatePath, "Data")

	svc, outDir := newTestService(t, testConfig(templatePath))

	req := &BuildRequest{
		Filename: "report",
		Sheets: []SheetSpec{
			{
				Name:     "Data",
				StartRow: 2,
				StartCol: columnRef(t, `"B"`),
				Rows:     rowsFromJSON(t, `"A|B\nC"`),
			},
		},
	}

	trace := &progressTrace{}
	result, err := svc.BuildJob(context.Background(), "job-1", req, trace.reporter())
	if err != nil {
		t.Fatalf("BuildJob returned error: %v", err)
	}

	if result.StoredName != "job-1.xlsx" {
		t.Fatalf("unexpected stored name: %s", result.StoredName)
	}
	if result.DownloadName != "report.xlsx" {
		t.Fatalf("unexpected download name: %s", result.DownloadName)
	}
	if result.TotalUnits != 3 {
		t.Fatalf("total units = %d, want 3", result.TotalUnits)
	}

	f, err := excelize.OpenFile(filepath.Join(outDir, result.StoredName))
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	checks := map[string]string{"B2": "A", "C2": "B", "B3": "C"}
	for cell, want := range checks {
		got, err := f.GetCellValue("Data", cell)
		if err != nil {
			t.Fatalf("failed to read %s: %v", cell, err)
		}
		if got != want {
			t.Fatalf("Data!%s = %q, want %q", cell, got, want)
		}
	}

	// 進捗は単調増加で、最後は total に到達する
	if trace.total != 3 {
		t.Fatalf("reported total = %d, want 3", trace.total)
	}
	prev := 0
	for i, d := range trace.done {
		if d < prev {
			t.Fatalf("progress regressed at %d: %v", i, trace.done)
		}
		prev = d
	}
	if trace.done[len(trace.done)-1] != 3 {
		t.Fatalf("final done = %d, want 3", trace.done[len(trace.done)-1])
	}
	if trace.stages[len(trace.stages)-1] != "completed" {
		t.Fatalf("final stage = %q, want completed", trace.stages[len(trace.stages)-1])
	}
}

func TestBuildJobSheetNotFound(t *testing.T) {
	templatePath := filepath.Join(t.TempDir(), "template.xlsx")
	writeTemplate(t, templatePath, "Data")

	svc, outDir := newTestService(t, testConfig(templatePath))

	req := &BuildRequest{
		Sheets: []SheetSpec{
			{Name: "Missing", Rows: rowsFromJSON(t, `"A"`)},
		},
	}

	_, err := svc.BuildJob(context.Background(), "job-2", req, nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "SHEET_NOT_FOUND" {
		t.Fatalf("expected SHEET_NOT_FOUND, got %v", err)
	}

	// 部分的な成果物は残らない
	if _, statErr := os.Stat(filepath.Join(outDir, "job-2.xlsx")); !os.IsNotExist(statErr) {
		t.Fatalf("partial artifact must not be saved, stat err=%v", statErr)
	}
}

func TestBuildJobTrimmedSheetMatch(t *testing.T) {
	templatePath := filepath.Join(t.TempDir(), "template.xlsx")
	writeTemplate(t, templatePath, "Data")

	svc, _ := newTestService(t, testConfig(templatePath))

	req := &BuildRequest{
		Sheets: []SheetSpec{
			{Name: " Data ", StartRow: 1, Rows: rowsFromJSON(t, `"A"`)},
		},
	}

	result, err := svc.BuildJob(context.Background(), "job-3", req, nil)
	if err != nil {
		t.Fatalf("trimmed sheet name should resolve: %v", err)
	}
	if len(result.Sheets) != 1 || result.Sheets[0].Name != "Data" {
		t.Fatalf("unexpected resolved sheet: %#v", result.Sheets)
	}
}

func TestBuildJobSheetIndex(t *testing.T) {
	templatePath := filepath.Join(t.TempDir(), "template.xlsx")
	writeTemplate(t, templatePath, "Data")

	svc, _ := newTestService(t, testConfig(templatePath))

	index := 1
	req := &BuildRequest{
		Sheets: []SheetSpec{
			{SheetIndex: &index, StartRow: 1, Rows: rowsFromJSON(t, `"A"`)},
		},
	}

	result, err := svc.BuildJob(context.Background(), "job-4", req, nil)
	if err != nil {
		t.Fatalf("BuildJob returned error: %v", err)
	}
	if result.Sheets[0].Name != "Data" {
		t.Fatalf("sheetIndex 1 resolved to %q, want Data", result.Sheets[0].Name)
	}
}

func TestBuildJobNoWork(t *testing.T) {
	templatePath := filepath.Join(t.TempDir(), "template.xlsx")
	writeTemplate(t, templatePath, "Data")

	svc, _ := newTestService(t, testConfig(templatePath))

	req := &BuildRequest{
		Sheets: []SheetSpec{
			{Name: "Data", Rows: rowsFromJSON(t, `"\n   \n"`)},
		},
	}

	_, err := svc.BuildJob(context.Background(), "job-5", req, nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "NO_WORK" {
		t.Fatalf("expected NO_WORK, got %v", err)
	}
}

func TestBuildJobTemplateMissing(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "nope.xlsx"))
	svc, _ := newTestService(t, cfg)

	req := &BuildRequest{
		Sheets: []SheetSpec{
			{Name: "Data", Rows: rowsFromJSON(t, `"A"`)},
		},
	}

	_, err := svc.BuildJob(context.Background(), "job-6", req, nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "TEMPLATE_MISSING" {
		t.Fatalf("expected TEMPLATE_MISSING, got %v", err)
	}
}

func TestBuildJobTemplateNotXLSX(t *testing.T) {
	templatePath := filepath.Join(t.TempDir(), "template.xlsx")
	if err := os.WriteFile(templatePath, []byte("this is not a workbook"), 0o640); err != nil {
		t.Fatalf("failed to write fake template: %v", err)
	}

	svc, _ := newTestService(t, testConfig(templatePath))

	req := &BuildRequest{
		Sheets: []SheetSpec{
			{Name: "Data", Rows: rowsFromJSON(t, `"A"`)},
		},
	}

	_, err := svc.BuildJob(context.Background(), "job-7", req, nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "TEMPLATE_MISSING" {
		t.Fatalf("expected TEMPLATE_MISSING for non-xlsx template, got %v", err)
	}
}

func TestBuildJobAutoNumber(t *testing.T) {
	templatePath := filepath.Join(t.TempDir(), "template.xlsx")
	writeTemplate(t, templatePath, "Data")

	svc, outDir := newTestService(t, testConfig(templatePath))

	req := &BuildRequest{
		Sheets: []SheetSpec{
			{
				Name:       "Data",
				StartRow:   5,
				AutoNumber: true,
				// 元データの先頭列は旧来の連番なので除去される
				Rows: rowsFromJSON(t, `"9|Alice\n8|Bob"`),
			},
		},
	}

	result, err := svc.BuildJob(context.Background(), "job-8", req, nil)
	if err != nil {
		t.Fatalf("BuildJob returned error: %v", err)
	}

	f, err := excelize.OpenFile(filepath.Join(outDir, result.StoredName))
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	checks := map[string]string{"A5": "1", "B5": "Alice", "A6": "2", "B6": "Bob"}
	for cell, want := range checks {
		got, err := f.GetCellValue("Data", cell)
		if err != nil {
			t.Fatalf("failed to read %s: %v", cell, err)
		}
		if got != want {
			t.Fatalf("Data!%s = %q, want %q", cell, got, want)
		}
	}
}

func TestBuildJobRowLimit(t *testing.T) {
	templatePath := filepath.Join(t.TempDir(), "template.xlsx")
	writeTemplate(t, templatePath, "Data")

	cfg := testConfig(templatePath)
	cfg.MaxRowsPerSheet = 1
	svc, _ := newTestService(t, cfg)

	req := &BuildRequest{
		Sheets: []SheetSpec{
			{Name: "Data", Rows: rowsFromJSON(t, `"A\nB"`)},
		},
	}

	_, err := svc.BuildJob(context.Background(), "job-9", req, nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "LIMIT_EXCEEDED" {
		t.Fatalf("expected LIMIT_EXCEEDED, got %v", err)
	}
}

func TestValidateRequest(t *testing.T) {
	templatePath := filepath.Join(t.TempDir(), "template.xlsx")
	svc, _ := newTestService(t, testConfig(templatePath))

	var apiErr *Error
	if err := svc.ValidateRequest(&BuildRequest{}); !errors.As(err, &apiErr) || apiErr.Code != "INVALID_INPUT" {
		t.Fatalf("empty sheets must be rejected, got %v", err)
	}
	if err := svc.ValidateRequest(nil); !errors.As(err, &apiErr) || apiErr.Code != "INVALID_INPUT" {
		t.Fatalf("nil request must be rejected, got %v", err)
	}

	err := svc.ValidateRequest(&BuildRequest{Sheets: []SheetSpec{{}}})
	if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_INPUT" {
		t.Fatalf("sheet without target must be rejected, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"":                 "generated.xlsx",
		"report":           "report.xlsx",
		"report.xlsx":      "report.xlsx",
		"../../etc/passwd": "passwd.xlsx",
		"..":               "generated.xlsx",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func columnRef(t *testing.T, raw string) ColumnRef {
	t.Helper()
	var c ColumnRef
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("failed to unmarshal column ref: %v", err)
	}
	return c
}
