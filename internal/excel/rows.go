package excel

import (
	"fmt"
	"strconv"
	"strings"
)

// colDelimiter はテキスト形式の行データでセルを区切る予約文字です。
const colDelimiter = "|"

// ParseRows は rows フィールドを正規化された行×列のテキスト表へ変換します。
// 空行（および配列形式の空要素）は黙って除外され、戻り値は nil になりません。
func ParseRows(in RowsInput) [][]string {
	if in.isText {
		return parseRowsText(in.text)
	}
	return parseRowsList(in.list)
}

func parseRowsText(text string) [][]string {
	rows := [][]string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, colDelimiter)
		cells := make([]string, len(cols))
		for j, value := range cols {
			cells[j] = sanitizeCell(value)
		}
		rows = append(rows, cells)
	}
	return rows
}

func parseRowsList(list []any) [][]string {
	rows := [][]string{}
	for _, entry := range list {
		switch v := entry.(type) {
		case nil:
			continue
		case []any:
			if len(v) == 0 {
				continue
			}
			cells := make([]string, len(v))
			for j, value := range v {
				cells[j] = sanitizeCell(cellText(value))
			}
			rows = append(rows, cells)
		default:
			// スカラー値は1列の行として扱う
			rows = append(rows, []string{sanitizeCell(cellText(v))})
		}
	}
	return rows
}

// sanitizeCell は区切り文字と改行をスペースへ置換します。
// 値の中に区切り文字が残ると下流で列数がずれるため、保存前に必ず除去します。
func sanitizeCell(value string) string {
	replacer := strings.NewReplacer(
		colDelimiter, " ",
		"\r\n", " ",
		"\n", " ",
		"\r", " ",
	)
	return replacer.Replace(value)
}

// cellText は JSON 由来の値をセル文字列へ変換します。null は空文字になります。
func cellText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
