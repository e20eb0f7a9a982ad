package ingest

import (
	"errors"

	"github.com/John-Robertt/CLMC/internal/domain"
)

// Error 是 ingest 的用户可见失败（带稳定 error_code）。
// 文件级失败不会成为 Error：它们只进 report 的 skipped 列表。
type Error struct {
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return e.Code + "：" + e.Msg
}

// CodeOf 从 error 中提取 error_code；若不是 *Error 则返回空串。
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsWarning 判断该失败是否为"警告型"：不破坏数据、用户调整后可重试。
// 目前只有存储上限超额属于此类。
func IsWarning(err error) bool {
	return CodeOf(err) == domain.ErrCodeStorageLimit
}
