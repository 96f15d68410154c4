package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hitoshi/bookreview/internal/model"
)

// FileStorage はJSONファイルにセッションを保存する。
// ファイルはオーナーのみ読み書き可能（0600）で作成し、一時ファイルからのrenameで置き換える。
type FileStorage struct {
	path string
}

// NewFileStorage はFileStorageを生成する。
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// fileRecord はファイルの内容。
type fileRecord struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Load はファイルからセッションを読み込む。ファイルがない場合は空を返す。
func (s *FileStorage) Load(_ context.Context) (string, *model.User, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	return rec.Token, rec.User, nil
}

// Save はセッションをファイルに書き込む。
func (s *FileStorage) Save(_ context.Context, token string, user *model.User) error {
	data, err := json.Marshal(fileRecord{Token: token, User: user})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear はファイルを削除する。存在しない場合もエラーにしない。
func (s *FileStorage) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
