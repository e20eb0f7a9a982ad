package dirio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenRoot_NotADir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	if _, err := OpenRoot(file); err == nil {
		t.Fatalf("普通文件不应能作为遍历根")
	}
}

func TestReadAll_UntilEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	// 超过一个批次的文件数，确保"循环到空批次"真实发生。
	for i := 0; i < osBatchSize+5; i++ {
		name := filepath.Join(dir, fmt.Sprintf("f%03d.mp4", i))
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatalf("写入文件失败：%v", err)
		}
	}

	root, err := OpenRoot(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	r := root.Reader()
	b1, err := r.ReadBatch(context.Background())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(b1) != osBatchSize {
		t.Fatalf("首批期望 %d 项，实际 %d", osBatchSize, len(b1))
	}
	b2, err := r.ReadBatch(context.Background())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(b2) != 5 {
		t.Fatalf("次批期望 5 项，实际 %d", len(b2))
	}
	b3, err := r.ReadBatch(context.Background())
	if err != nil || len(b3) != 0 {
		t.Fatalf("末批之后应为空批次：len=%d err=%v", len(b3), err)
	}
}

func TestReadAll_MixedEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "01 Basics"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	root, err := OpenRoot(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	entries, err := ReadAll(context.Background(), root.Reader())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("期望 2 项，实际 %d", len(entries))
	}

	var dirs, files int
	for _, e := range entries {
		switch e.(type) {
		case Dir:
			dirs++
		case File:
			files++
		}
	}
	if dirs != 1 || files != 1 {
		t.Fatalf("期望 1 目录 + 1 文件，实际 dirs=%d files=%d", dirs, files)
	}
}

func TestFile_BytesAndSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	root, _ := OpenRoot(dir)
	entries, err := ReadAll(context.Background(), root.Reader())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	f, ok := entries[0].(File)
	if !ok {
		t.Fatalf("期望 File 项，实际 %T", entries[0])
	}

	b, err := f.Bytes(context.Background())
	if err != nil || string(b) != "payload" {
		t.Fatalf("读取内容不符：%q err=%v", string(b), err)
	}
	size, err := f.Size()
	if err != nil || size != int64(len("payload")) {
		t.Fatalf("大小不符：%d err=%v", size, err)
	}
}

func TestReadBatch_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	root, _ := OpenRoot(dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := root.Reader().ReadBatch(ctx); err == nil {
		t.Fatalf("取消后的 ReadBatch 期望错误")
	}
}
