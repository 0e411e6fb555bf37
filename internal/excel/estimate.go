package excel

import "github.com/yourusername/sheet-forge/internal/config"

// EstimateUnits は全シートの総作業量を計算します。
// 単位（行またはセル）は進捗の分母と加算の両方で同じ設定を使う必要があります。
func EstimateUnits(sheets []ParsedSheet, unit config.ProgressUnit) int {
	total := 0
	for _, sheet := range sheets {
		for _, row := range sheet.Rows {
			if unit == config.ProgressUnitRow {
				total++
				continue
			}
			total += len(row)
		}
	}
	return total
}
