package ingest

import (
	"path/filepath"
	"strings"
)

// Kind 是 ingest 对单个文件的分类结果。
type Kind int

const (
	KindUnsupported Kind = iota
	KindVideo
	KindResource
	KindCaption
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindResource:
		return "resource"
	case KindCaption:
		return "caption"
	default:
		return "unsupported"
	}
}

// 支持的扩展名集合。仅做扩展名嗅探，不做内容校验。
var (
	videoExts = map[string]struct{}{
		".mp4": {}, ".webm": {}, ".ogg": {}, ".mov": {}, ".avi": {}, ".mkv": {},
	}
	resourceExts = map[string]struct{}{
		".pdf": {}, ".html": {},
	}
	// .srt 是对 .vtt 的补充：入库时转换为 WebVTT。
	captionExts = map[string]struct{}{
		".vtt": {}, ".srt": {},
	}
)

// Classify 按扩展名（大小写不敏感）分类文件。
func Classify(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := videoExts[ext]; ok {
		return KindVideo
	}
	if _, ok := resourceExts[ext]; ok {
		return KindResource
	}
	if _, ok := captionExts[ext]; ok {
		return KindCaption
	}
	return KindUnsupported
}
