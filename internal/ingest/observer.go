package ingest

import "time"

// Observer 用于把"ingest 进度/阶段"从核心流程中解耦出来。
//
// 约束：
// - ingest 包只负责发事件，不做任何输出（上层决定展示形态）
// - OnProgress 的 percent 单调不减，映射固定：
//   0–10 扫描，10–90 按 已处理文件数/总文件数 线性，90–100 组装与持久化
// - task 是面向用户的"当前在做什么"（topic 名 / 文件名 / 阶段名）
type Observer interface {
	// OnStart 在 Run 开始时调用（应尽量早，保证用户第一时间看到输出）。
	OnStart(courseTitle string)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	// 阶段名固定为 "scan" | "materialize" | "persist"。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnFileDone 在单个受支持文件处理完成后调用。
	// status 固定为 "ok" | "skip"；skip 时 reason 说明原因。
	OnFileDone(topic, name, status, reason string)
	// OnProgress 在每次进度推进时调用。
	OnProgress(percent int, task string)
}
