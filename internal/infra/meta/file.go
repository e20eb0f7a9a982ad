package meta

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/CLMC/internal/infra/fsx"
)

// FileStore 把每个 key 存为 <root>/meta/<key>.json（原子替换写）。
type FileStore struct {
	Root string // library 根目录
}

var _ Store = FileStore{}

func NewFileStore(root string) FileStore {
	return FileStore{Root: filepath.Clean(strings.TrimSpace(root))}
}

var fileKeyRE = regexp.MustCompile(`^[a-z0-9_-]+$`)

func (s FileStore) keyPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("meta key 不能为空")
	}
	// key 是内部枚举（courses/storage_limit），这里只防路径穿越。
	if !fileKeyRE.MatchString(key) {
		return "", fmt.Errorf("非法 meta key：%q", key)
	}
	return filepath.Join(s.Root, "meta", key+".json"), nil
}

func (s FileStore) Get(key string) ([]byte, bool, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s FileStore) Set(key string, value []byte) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), value)
}
