package domain

import (
	"sort"
	"time"
)

// ingest 阶段对外稳定的错误码（用户可见失败 / 警告）。
const (
	ErrCodeNoDirectory      = "no_directory"
	ErrCodeNoSupportedFiles = "no_supported_files"
	ErrCodeStorageLimit     = "storage_limit_exceeded"
	ErrCodeCancelled        = "cancelled"
	ErrCodeIOFailed         = "io_failed"
)

// SkippedFile 记录 ingest 中被跳过的单个文件（文件级失败不致整体失败）。
type SkippedFile struct {
	Topic  string `json:"topic"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// IngestSummary 是 report 的聚合统计。
type IngestSummary struct {
	Topics    int `json:"topics"`
	Videos    int `json:"videos"`
	Resources int `json:"resources"`
	Captions  int `json:"captions"`
	Skipped   int `json:"skipped"`
}

// IngestReport 是一次成功 ingest 的对外稳定输出（reports/<courseID>.json）。
type IngestReport struct {
	Library     string `json:"library"`
	CourseID    string `json:"course_id"`
	CourseTitle string `json:"course_title"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary IngestSummary `json:"summary"`
	Skipped []SkippedFile `json:"skipped"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) skipped 稳定排序：topic 字典序，再按文件名
// 3) Summary.Skipped 由 Skipped 计算得出
func (r *IngestReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Skipped == nil {
		r.Skipped = []SkippedFile{}
	}
	sort.SliceStable(r.Skipped, func(i, j int) bool {
		if r.Skipped[i].Topic != r.Skipped[j].Topic {
			return r.Skipped[i].Topic < r.Skipped[j].Topic
		}
		return r.Skipped[i].Name < r.Skipped[j].Name
	})
	r.Summary.Skipped = len(r.Skipped)
}
