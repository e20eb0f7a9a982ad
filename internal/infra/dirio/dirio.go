// Package dirio 把“分批回调式目录读取”收敛为一个惰性批次读取抽象。
//
// 契约（硬约束）：
// - Reader 产出有限的目录项序列，按批次交付；空批次是唯一的结束信号
//   （首批返回不代表结束，调用方必须循环到空批次）
// - Reader 不可重启：一个 Reader 只能消费一次
// - ingest 只依赖该抽象的形态，不依赖任何具体目录 API
package dirio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Entry 是目录项的最小公共面：名字。具体类型二选一：File 或 Dir。
type Entry interface {
	Name() string
}

// File 是叶子文件项，可一次性取回全部字节。
type File interface {
	Entry
	Bytes(ctx context.Context) ([]byte, error)
	Size() (int64, error)
}

// Dir 是目录项，可打开一个一次性的批次读取器。
type Dir interface {
	Entry
	Reader() Reader
}

// Reader 分批产出目录项。返回空批次（len==0 且 err==nil）表示读完。
// 读取中途出错时，已交付的批次仍然有效（调用方按 best-effort 处理剩余）。
type Reader interface {
	ReadBatch(ctx context.Context) ([]Entry, error)
}

// ReadAll 按契约循环 ReadBatch 直到空批次，返回收集到的全部目录项。
// 出错时返回已收集的部分与错误（调用方可选择降级使用部分结果）。
func ReadAll(ctx context.Context, r Reader) ([]Entry, error) {
	all := make([]Entry, 0, 16)
	for {
		batch, err := r.ReadBatch(ctx)
		if err != nil {
			return all, err
		}
		if len(batch) == 0 {
			return all, nil
		}
		all = append(all, batch...)
	}
}

// 每批交付的目录项上限。真实目录 API 的批次大小由实现决定；
// 这里取一个足够小的值，保证“循环到空批次”的契约在测试里真实发生。
const osBatchSize = 64

// OpenRoot 打开 path 对应的目录作为遍历根。path 不是目录时返回错误。
func OpenRoot(path string) (Dir, error) {
	path = filepath.Clean(path)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%q 不是目录", path)
	}
	return &osDir{path: path, name: filepath.Base(path)}, nil
}

type osDir struct {
	path string
	name string
}

func (d *osDir) Name() string { return d.name }

func (d *osDir) Reader() Reader {
	return &osReader{path: d.path}
}

type osReader struct {
	path    string
	loaded  bool
	pending []Entry
	loadErr error
}

func (r *osReader) ReadBatch(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !r.loaded {
		r.loaded = true
		entries, err := os.ReadDir(r.path)
		// ReadDir 出错也可能带回部分结果：保留可用部分，错误延后到末批之后交付。
		r.loadErr = err
		r.pending = make([]Entry, 0, len(entries))
		for _, e := range entries {
			child := filepath.Join(r.path, e.Name())
			if e.IsDir() {
				r.pending = append(r.pending, &osDir{path: child, name: e.Name()})
			} else {
				r.pending = append(r.pending, &osFile{path: child, name: e.Name()})
			}
		}
	}

	if len(r.pending) == 0 {
		err := r.loadErr
		r.loadErr = nil
		return nil, err
	}

	n := osBatchSize
	if n > len(r.pending) {
		n = len(r.pending)
	}
	batch := r.pending[:n]
	r.pending = r.pending[n:]
	return batch, nil
}

type osFile struct {
	path string
	name string
}

func (f *osFile) Name() string { return f.name }

func (f *osFile) Bytes(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.path)
}

func (f *osFile) Size() (int64, error) {
	fi, err := os.Stat(f.path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
