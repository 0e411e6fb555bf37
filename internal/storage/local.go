// Package storage は生成ファイルのローカル保存レイヤーを提供します。
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local はローカルファイルシステム上の成果物ストアです。
// 保存名はジョブIDから導出されるため、ディレクトリ内で衝突しません。
type Local struct {
	baseDir string
}

// NewLocal は保存先ディレクトリを作成し Local を返します。
func NewLocal(baseDir string) (*Local, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("baseDir is required")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve baseDir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Local{baseDir: abs}, nil
}

// Resolve は保存名を検証し、成果物の絶対パスを返します。
// パス区切りや ".." を含む参照はディレクトリ外参照として拒否します。
func (l *Local) Resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid artifact name: %s", name)
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid artifact name: %s", name)
	}

	path := filepath.Join(l.baseDir, name)
	if filepath.Dir(path) != l.baseDir {
		return "", fmt.Errorf("invalid artifact name: %s", name)
	}
	return path, nil
}

// Open は保存名に対応する成果物ファイルを開きます。
func (l *Local) Open(name string) (*os.File, os.FileInfo, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return file, info, nil
}

// Remove は成果物を削除します。存在しない場合はエラーになりません。
func (l *Local) Remove(name string) error {
	path, err := l.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
