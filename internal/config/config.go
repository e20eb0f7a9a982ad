package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 clmc.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingLibrary 表示无参运行但配置文件缺少 library 字段。
	ErrCodeMissingLibrary = "config_missing_library"
)

const (
	// DefaultStore 是元数据后端的最终默认值（当 CLI 与配置文件都未指定时）。
	DefaultStore = "sqlite"
	// DefaultLogLevel 是日志级别的内置默认值（当配置未指定时）。
	DefaultLogLevel = "info"
)

// CLIArgs 只包含 CLI 暴露的三项入口（library/store/log-level），
// 并保留"是否显式指定"的信息，保证覆盖优先级可实现。
type CLIArgs struct {
	Library string

	Store    string
	StoreSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 clmc.json 的解析结构。
type FileConfig struct {
	Library  string          `json:"library"`
	Store    string          `json:"store"`
	LogLevel string          `json:"log_level"`
	_        json.RawMessage `json:"-"` // 预留：未知字段不报错
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
//（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Library 是库根目录的绝对路径（blobs/、meta/、reports/ 都在其下）。
	Library string

	Store    string
	LogLevel string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingLibrary:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 library", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按固定规则发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 library：尝试读取 <library>/clmc.json（可选）
// 2) CLI 未提供 library：必须读取 <cwd>/clmc.json（必选），且其中必须包含 library
//
// 覆盖优先级（固定）：
// - library：CLI library > config library
// - store：CLI > config > 默认 sqlite
// - log_level：CLI > config > 默认 info
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
	)

	if strings.TrimSpace(cli.Library) != "" {
		// CLI 给了 library：配置文件可选，位置固定在 <library>/clmc.json。
		absLib := absCleanFrom(cwdAbs, cli.Library)
		cfgPath = filepath.Join(absLib, "clmc.json")

		fc, _, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		// 不存在也不报错

		return merge(absLib, cli, fc, cfgPath)
	}

	// CLI 没给 library：必须读取 <cwd>/clmc.json，且其中必须包含 library。
	cfgPath = filepath.Join(cwdAbs, "clmc.json")
	var exists bool
	fc, exists, err = readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Library) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingLibrary, Path: cfgPath}
	}

	absLib := absCleanFrom(cwdAbs, fc.Library)
	return merge(absLib, cli, fc, cfgPath)
}

func merge(absLib string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// store：CLI > config > 默认
	store := DefaultStore
	if cli.StoreSet {
		store = cli.Store
	} else if strings.TrimSpace(fc.Store) != "" {
		store = fc.Store
	}
	if err := validateStore(store); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// log_level：CLI > config > 默认 info
	level := DefaultLogLevel
	if cli.LogLevelSet {
		level = cli.LogLevel
	} else if strings.TrimSpace(fc.LogLevel) != "" {
		level = fc.LogLevel
	}
	if err := validateLogLevel(level); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	return EffectiveConfig{
		Library:  absLib,
		Store:    store,
		LogLevel: level,
	}, nil
}

func validateStore(s string) error {
	switch s {
	case "sqlite", "file":
		return nil
	case "":
		return fmt.Errorf("store 不能为空")
	default:
		return fmt.Errorf("store 只能是 sqlite 或 file，实际是 %q", s)
	}
}

func validateLogLevel(l string) error {
	switch l {
	case "debug", "info", "warn", "error":
		return nil
	case "":
		return fmt.Errorf("log_level 不能为空")
	default:
		return fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", l)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
