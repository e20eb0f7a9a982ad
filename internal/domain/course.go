package domain

import (
	"math"

	"github.com/google/uuid"
)

// Video 是课程的叶子内容单元，payload 存于 Blob Store（key=Path）。
//
// 不变量（实现必须遵守）：
// - ID 即 Blob Store 的 payload key（Path 字段冗余保存同一值，对齐持久化文档形态）
// - Caption 若非空，必须等于 CaptionKey(ID)
// - Completed 只能经由 Catalog Store 修改（Player 只发信号）
type Video struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Path      string  `json:"path"`
	Caption   string  `json:"caption,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Completed bool    `json:"completed"`
}

// Resource 是视频以外的叶子内容（pdf/html），同样以 ID 作为 blob key。
type Resource struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
	Type  string `json:"type"` // "pdf" | "html"
}

// Topic 对应课程根目录下的一个子目录。
// 不变量：入库后的 Topic 至少含 1 个 video 或 1 个 resource（空 Topic 在 ingest 阶段丢弃）。
type Topic struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Videos    []Video    `json:"videos"`
	Resources []Resource `json:"resources,omitempty"`
}

// LastViewed 记录最近一次被显式选择播放的视频（用于续播定位）。
type LastViewed struct {
	TopicID string `json:"topicId"`
	VideoID string `json:"videoId"`
}

// Course 是顶层学习单元。
//
// Progress 是派生值：round(100 * 已完成视频数 / 视频总数)；无视频时为 0。
// 每次完成状态翻转都必须全量重算并持久化（不引入增量计数器这个第二事实源）。
type Course struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Topics     []Topic     `json:"topics"`
	LastViewed *LastViewed `json:"lastViewed,omitempty"`
	Progress   int         `json:"progress"`
}

// NewID 生成目录内唯一的不透明 id（同时用作 Blob Store key）。
func NewID() string {
	return uuid.NewString()
}

// CaptionKey 返回视频字幕 blob 的派生 key。
func CaptionKey(videoID string) string {
	return "caption-" + videoID
}

// TotalVideos 返回课程内视频总数（跨所有 Topic）。
func (c *Course) TotalVideos() int {
	n := 0
	for i := range c.Topics {
		n += len(c.Topics[i].Videos)
	}
	return n
}

// CompletedVideos 返回课程内已完成视频数。
func (c *Course) CompletedVideos() int {
	n := 0
	for i := range c.Topics {
		for j := range c.Topics[i].Videos {
			if c.Topics[i].Videos[j].Completed {
				n++
			}
		}
	}
	return n
}

// RecomputeProgress 全量重算 Progress 并写回（O(totalVideos)）。
func (c *Course) RecomputeProgress() {
	total := c.TotalVideos()
	if total == 0 {
		c.Progress = 0
		return
	}
	c.Progress = int(math.Round(100 * float64(c.CompletedVideos()) / float64(total)))
}

// FindTopic 按 id 查找 Topic；未找到返回 nil。
func (c *Course) FindTopic(topicID string) *Topic {
	for i := range c.Topics {
		if c.Topics[i].ID == topicID {
			return &c.Topics[i]
		}
	}
	return nil
}

// FindVideo 按 id 查找 Video；未找到返回 nil。
func (t *Topic) FindVideo(videoID string) *Video {
	for i := range t.Videos {
		if t.Videos[i].ID == videoID {
			return &t.Videos[i]
		}
	}
	return nil
}

// BlobKeys 返回课程拥有的全部 blob key（视频、字幕、资源），用于删除级联。
// 顺序稳定：按 Topic 顺序，Topic 内先 videos（含字幕）后 resources。
func (c *Course) BlobKeys() []string {
	keys := make([]string, 0, 16)
	for i := range c.Topics {
		t := &c.Topics[i]
		for j := range t.Videos {
			keys = append(keys, t.Videos[j].Path)
			if t.Videos[j].Caption != "" {
				keys = append(keys, t.Videos[j].Caption)
			}
		}
		for j := range t.Resources {
			keys = append(keys, t.Resources[j].Path)
		}
	}
	return keys
}
