package excel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// BuildRequest は帳票生成リクエストの本体です。
type BuildRequest struct {
	Filename string      `json:"filename"`
	Sheets   []SheetSpec `json:"sheets"`
}

// SheetSpec は1シート分の書き込み指定です。
type SheetSpec struct {
	Name       string    `json:"name"`
	SheetIndex *int      `json:"sheetIndex"`
	StartRow   int       `json:"startRow"`
	StartCol   ColumnRef `json:"startCol"`
	Rows       RowsInput `json:"rows"`

	// 先頭列に連番を自動付与するオプション。
	// AutoNumberStartRow は連番の基準行（未指定時は StartRow）。
	AutoNumber         bool `json:"autoNumber"`
	AutoNumberStartRow int  `json:"autoNumberStartRow"`
}

// ParsedSheet は行データを正規化済みの SheetSpec です。
type ParsedSheet struct {
	Spec     SheetSpec
	StartRow int
	StartCol int
	Rows     [][]string
}

// SheetResult は1シート分の書き込み結果メタデータです。
type SheetResult struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// Result は帳票生成の成果を表します。
type Result struct {
	JobID        string        `json:"jobId"`
	StoredName   string        `json:"storedName"`
	DownloadName string        `json:"downloadName"`
	OutputSize   int64         `json:"outputSize"`
	TotalUnits   int           `json:"totalUnits"`
	Sheets       []SheetResult `json:"sheets"`
}

// RowsInput は rows フィールドの二形式（区切りテキスト / ネスト配列）を受け付けます。
type RowsInput struct {
	text   string
	list   []any
	isText bool
}

// UnmarshalJSON は string または配列形式の rows を取り込みます。
func (r *RowsInput) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = RowsInput{}
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*r = RowsInput{text: text, isText: true}
		return nil
	}

	var list []any
	if err := json.Unmarshal(data, &list); err == nil {
		*r = RowsInput{list: list}
		return nil
	}
	return fmt.Errorf("rows must be a string or an array")
}

// ColumnRef は startCol の二形式（列番号 / "A" 形式の列名）を受け付けます。
type ColumnRef struct {
	n int
}

// UnmarshalJSON は整数または列名文字列を取り込みます。
func (c *ColumnRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		c.n = 0
		return nil
	}

	var num int
	if err := json.Unmarshal(data, &num); err == nil {
		if num < 1 {
			return fmt.Errorf("startCol must be >= 1 (received: %d)", num)
		}
		c.n = num
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("startCol must be a column number or a column name")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		c.n = 0
		return nil
	}
	num, err := excelize.ColumnNameToNumber(name)
	if err != nil {
		return fmt.Errorf("invalid startCol %q: %w", name, err)
	}
	c.n = num
	return nil
}

// Column は列番号（1始まり）を返します。未指定時は 0 です。
func (c ColumnRef) Column() int {
	return c.n
}
