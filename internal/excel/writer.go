package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SheetWriter はテンプレートシートへの値書き込みを抽象化します。
type SheetWriter interface {
	SheetExists(name string) bool
	SheetNames() []string
	WriteCell(sheet string, row, col int, value string) error
	SaveAs(path string) error
	Close() error
}

// templateWorkbook は excelize 製ワークブックを SheetWriter として公開します。
type templateWorkbook struct {
	f           *excelize.File
	cleanStyles bool
}

// OpenTemplate はテンプレートワークブックを開きます。
// cleanStyles を有効にすると、値を書き込んだセルから取り消し線と下線を除去します。
func OpenTemplate(path string, cleanStyles bool) (SheetWriter, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	return &templateWorkbook{f: f, cleanStyles: cleanStyles}, nil
}

func (w *templateWorkbook) SheetExists(name string) bool {
	index, err := w.f.GetSheetIndex(name)
	return err == nil && index != -1
}

func (w *templateWorkbook) SheetNames() []string {
	return w.f.GetSheetList()
}

func (w *templateWorkbook) WriteCell(sheet string, row, col int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("invalid cell coordinates (%d, %d): %w", row, col, err)
	}
	if err := w.f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to write cell %s!%s: %w", sheet, cell, err)
	}
	if w.cleanStyles {
		if err := w.cleanCellDecoration(sheet, cell); err != nil {
			return err
		}
	}
	return nil
}

// cleanCellDecoration はテンプレート由来の取り消し線・下線を新しい値から取り除きます。
// 行書き込みの契約ではなくテンプレート衛生の後処理です。
func (w *templateWorkbook) cleanCellDecoration(sheet, cell string) error {
	styleID, err := w.f.GetCellStyle(sheet, cell)
	if err != nil {
		return fmt.Errorf("failed to read cell style %s!%s: %w", sheet, cell, err)
	}
	style, err := w.f.GetStyle(styleID)
	if err != nil {
		return fmt.Errorf("failed to load style %d: %w", styleID, err)
	}
	if style == nil || style.Font == nil {
		return nil
	}
	if !style.Font.Strike && style.Font.Underline == "" {
		return nil
	}

	font := *style.Font
	font.Strike = false
	font.Underline = ""
	style.Font = &font

	newID, err := w.f.NewStyle(style)
	if err != nil {
		return fmt.Errorf("failed to build cleaned style: %w", err)
	}
	if err := w.f.SetCellStyle(sheet, cell, cell, newID); err != nil {
		return fmt.Errorf("failed to apply cleaned style %s!%s: %w", sheet, cell, err)
	}
	return nil
}

func (w *templateWorkbook) SaveAs(path string) error {
	return w.f.SaveAs(path)
}

func (w *templateWorkbook) Close() error {
	return w.f.Close()
}
