package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEffective_ConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_ConfigMissingLibrary(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "clmc.json"), []byte(`{"store":"file"}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingLibrary {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingLibrary, err, Code(err))
	}
}

func TestLoadEffective_StoreMergeOrder(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "clmc.json"), []byte(`{"library":"lib","store":"file"}`))

	// CLI 未指定 store，则应使用配置文件中的 file。
	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Store != "file" {
		t.Fatalf("期望 store=file，实际=%q", eff.Store)
	}

	wantLib := filepath.Join(cwd, "lib")
	if eff.Library != wantLib {
		t.Fatalf("期望 library=%q，实际=%q", wantLib, eff.Library)
	}

	// CLI 显式指定，则覆盖配置文件。
	eff2, err := LoadEffective(cwd, CLIArgs{
		Store:    "sqlite",
		StoreSet: true,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff2.Store != "sqlite" {
		t.Fatalf("期望 store=sqlite，实际=%q", eff2.Store)
	}
}

func TestLoadEffective_CLILibrary_ConfigOptional(t *testing.T) {
	cwd := t.TempDir()
	lib := filepath.Join(cwd, "lib")
	if err := os.MkdirAll(lib, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	eff, err := LoadEffective(cwd, CLIArgs{
		Library: lib,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Library != lib {
		t.Fatalf("期望 library=%q，实际=%q", lib, eff.Library)
	}
	if eff.Store != DefaultStore {
		t.Fatalf("期望 store=%q，实际=%q", DefaultStore, eff.Store)
	}
	if eff.LogLevel != DefaultLogLevel {
		t.Fatalf("期望 log_level=%q，实际=%q", DefaultLogLevel, eff.LogLevel)
	}
}

func TestLoadEffective_CLILibrary_ConfigWins(t *testing.T) {
	cwd := t.TempDir()
	lib := filepath.Join(cwd, "lib")
	if err := os.MkdirAll(lib, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	// <library>/clmc.json 里的 library 字段被 CLI 覆盖，其它字段仍生效。
	writeFile(t, filepath.Join(lib, "clmc.json"), []byte(`{"library":"/elsewhere","log_level":"debug"}`))

	eff, err := LoadEffective(cwd, CLIArgs{Library: lib})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Library != lib {
		t.Fatalf("CLI library 应覆盖配置：实际=%q", eff.Library)
	}
	if eff.LogLevel != "debug" {
		t.Fatalf("期望 log_level=debug，实际=%q", eff.LogLevel)
	}
}

func TestLoadEffective_InvalidStore(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "clmc.json"), []byte(`{"library":"lib","store":"nope"}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_InvalidLogLevel(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "clmc.json"), []byte(`{"library":"lib","log_level":"loud"}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_CLILibrary_InvalidConfig(t *testing.T) {
	cwd := t.TempDir()
	lib := filepath.Join(cwd, "lib")
	if err := os.MkdirAll(lib, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(lib, "clmc.json"), []byte(`{`))

	_, err := LoadEffective(cwd, CLIArgs{Library: lib})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
