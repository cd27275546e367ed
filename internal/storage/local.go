// Package storage はプロフィール画像などの静的ファイルの読み出しを提供します。
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrInvalidName はディレクトリ外を指す、または空のファイル名を表します。
	ErrInvalidName = errors.New("invalid file name")
	// ErrUnsupportedType は配信対象外のファイル形式を表します。
	ErrUnsupportedType = errors.New("unsupported content type")
)

// allowedImageTypes は配信を許可する画像の MIME タイプです。
var allowedImageTypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
}

// Object は開いたファイルとそのメタデータです。呼び出し側で Close してください。
type Object struct {
	File        *os.File
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Close はファイルを閉じます。
func (o *Object) Close() error {
	if o == nil || o.File == nil {
		return nil
	}
	return o.File.Close()
}

// Local はローカルディレクトリ配下のファイルを扱います。
type Local struct {
	root string
}

// NewLocal は root 配下を対象とする Local を作成します。
func NewLocal(root string) *Local {
	return &Local{root: filepath.Clean(root)}
}

// Root は対象ディレクトリを返します。
func (l *Local) Root() string {
	return l.root
}

// OpenImage は name の画像を開き、中身から判定した Content-Type を付けて返します。
// ファイルが無い場合は fs.ErrNotExist、画像でない場合はエラーを返します。
func (l *Local) OpenImage(name string) (*Object, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, err
	}
	if !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, mtype.String(), name)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}

	return &Object{
		File:        file,
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: mtype.String(),
		ModTime:     info.ModTime(),
	}, nil
}

// resolve は name を root 配下の絶対パスに変換します。root の外へ出る名前は拒否します。
func (l *Local) resolve(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return "", ErrInvalidName
	}
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidName
	}
	return filepath.Join(l.root, cleaned), nil
}
