package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/John-Robertt/CLMC/internal/ingest"
)

var _ ingest.Observer = (*progressUI)(nil)

// progressUI 是一个"简洁版"的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：ingest 层只发事件，CLI 决定如何展示
// - keepalive：长时间无进度推进时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	percent  int
	lastTask string

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(courseTitle string) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] CLMC ingest: %s\n\n", now.Format("15:04:05"), courseTitle)

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
	p.mu.Unlock()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: topics=%d total_files=%d (%s)\n",
			intField(fields, "topics"), intField(fields, "total_files"), formatShortDuration(dur),
		)
	case "materialize":
		fmt.Fprintf(p.w, "物化: topics=%d videos=%d resources=%d captions=%d skipped=%d (%s)\n",
			intField(fields, "topics"),
			intField(fields, "videos"),
			intField(fields, "resources"),
			intField(fields, "captions"),
			intField(fields, "skipped"),
			formatShortDuration(dur),
		)
	case "persist":
		fmt.Fprintf(p.w, "持久化: course_id=%s (%s)\n",
			stringField(fields, "course_id"), formatShortDuration(dur),
		)
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

// OnFileDone 只展示被跳过的文件；成功文件由进度行覆盖，逐条打印只会刷屏。
func (p *progressUI) OnFileDone(topic, name, status, reason string) {
	if status != "skip" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "跳过 %s/%s: %s\n", topic, name, reason)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnProgress(percent int, task string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := percent != p.percent
	p.percent = percent
	p.lastTask = task

	// 同一百分比内只靠 keepalive 兜底，避免逐文件刷屏。
	if changed {
		fmt.Fprintf(p.w, "进度: %3d%% %s elapsed=%s\n",
			percent, truncate(task, 100), formatElapsed(time.Since(p.startedAt)),
		)
		p.lastPrinted = time.Now()
	}

	// 收尾后停止 ticker，避免在结束打印后又冒出 keepalive。
	if percent >= 100 && p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.percent >= 100 {
					p.mu.Unlock()
					return
				}
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: %3d%% %s elapsed=%s\n",
						p.percent, truncate(p.lastTask, 100), formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}

func stringField(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}
