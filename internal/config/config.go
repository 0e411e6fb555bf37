// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// ProgressUnit は進捗計算の単位（行またはセル）を表します。
type ProgressUnit string

const (
	ProgressUnitRow  ProgressUnit = "row"
	ProgressUnitCell ProgressUnit = "cell"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// テンプレート/出力設定
	TemplatePath string // ワークブックテンプレートのパス（読み取り専用）
	OutputDir    string // 生成ファイルの保存先ディレクトリ

	// ジョブ設定
	JobExpireMinutes int    // ジョブと成果物の有効期限（分）
	JobResultBaseURL string // 結果ファイル取得用のベースURL（CDN等を前置する場合に使用）

	// 書き込み設定
	DefaultStartRow int          // startRow 未指定時の既定の開始行
	ProgressUnit    ProgressUnit // 進捗計算の単位（row または cell）
	MaxRowsPerSheet int          // 1シートあたりの最大行数
	CleanCellStyles bool         // 書き込み後に取り消し線・下線を除去するか
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// テンプレート/出力設定
		TemplatePath: getEnv("TEMPLATE_PATH", "template.xlsx"),
		OutputDir:    getEnv("OUTPUT_DIR", "generated"),

		// ジョブ設定
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 10),
		JobResultBaseURL: getEnv("JOB_RESULT_BASE_URL", ""),

		// 書き込み設定
		DefaultStartRow: getEnvAsInt("DEFAULT_START_ROW", 25),
		ProgressUnit:    ProgressUnit(getEnv("PROGRESS_UNIT", string(ProgressUnitCell))),
		MaxRowsPerSheet: getEnvAsInt("MAX_ROWS_PER_SHEET", 10000),
		CleanCellStyles: getEnvAsBool("CLEAN_CELL_STYLES", false),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.ProgressUnit {
	case ProgressUnitRow, ProgressUnitCell:
	default:
		return fmt.Errorf("PROGRESS_UNIT must be %q or %q (received: %s)", ProgressUnitRow, ProgressUnitCell, c.ProgressUnit)
	}

	if c.DefaultStartRow < 1 {
		return fmt.Errorf("DEFAULT_START_ROW must be >= 1")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}

	// ローカル開発ではテンプレートの存在確認は任意
	// 本番環境では起動時に厳格にチェックする
	if c.GinMode == "release" {
		if c.TemplatePath == "" {
			return fmt.Errorf("TEMPLATE_PATH is required in release mode")
		}
		if _, err := os.Stat(c.TemplatePath); err != nil {
			return fmt.Errorf("TEMPLATE_PATH is not readable in release mode: %w", err)
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
