// Package blob 提供 <library>/blobs/ 下按 key 寻址的二进制存储。
//
// 约束：
// - key 由上层生成（uuid / "caption-"+uuid），store 只要求唯一，不赋予含义
// - Put 不允许覆盖：key 冲突说明上层逻辑错误，显式失败
// - Delete/Clear 幂等：目标不存在不算错误
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/John-Robertt/CLMC/internal/infra/fsx"
)

// Store 是文件系统实现的 Blob Store，根目录为 <Root>/blobs。
type Store struct {
	Root string // library 根目录
}

func New(root string) Store {
	return Store{Root: filepath.Clean(strings.TrimSpace(root))}
}

var keyRE = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func (s Store) dir() string {
	return filepath.Join(s.Root, "blobs")
}

// KeyPath 返回 key 对应 payload 的绝对路径。
func (s Store) KeyPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key 不能为空")
	}
	// 最小约束：避免路径穿越；key 本身来自 uuid 生成器，这里不做更多"聪明"处理。
	if !keyRE.MatchString(key) {
		return "", fmt.Errorf("非法 blob key：%q", key)
	}
	return filepath.Join(s.dir(), key), nil
}

// Put 原子写入 payload。key 已存在时返回错误（含 os.ErrExist）。
func (s Store) Put(key string, data []byte) error {
	path, err := s.KeyPath(key)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicNoOverwrite(filepath.Dir(path), filepath.Base(path), data)
}

// Get 读取 payload；不存在时返回 ok=false 且无错误。
func (s Store) Get(key string) ([]byte, bool, error) {
	path, err := s.KeyPath(key)
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

// Open 打开 payload 供流式读取（播放句柄）。调用方负责 Close。
// 不存在时返回 os.ErrNotExist。
func (s Store) Open(key string) (*os.File, error) {
	path, err := s.KeyPath(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete 删除 payload；不存在不算错误。
func (s Store) Delete(key string) error {
	path, err := s.KeyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clear 删除全部 payload（保留 blobs 目录本身不存在也可）。
func (s Store) Clear() error {
	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var firstErr error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir(), e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Keys 枚举现存的全部 key（字典序，保证稳定输出）。
func (s Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		// 同目录写入的临时文件不算 key。
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

// TotalSize 返回现存全部 payload 的字节总和。
func (s Store) TotalSize() (int64, error) {
	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// 枚举与 stat 之间被删除：按不存在处理。
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return 0, err
		}
		total += fi.Size()
	}
	return total, nil
}
