package caption

import (
	"fmt"
	"strconv"
	"strings"
)

// Cue 是一条字幕（起止时间单位为秒）。
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// ParseSRT 解析 SRT 字幕内容为 cue 序列。
//
// 规则：
// - 块之间以空行分隔；块内第 1 行为序号，第 2 行为时间码，其余为文本
// - 时间码形如 "00:00:01,000 --> 00:00:04,000"（毫秒分隔符兼容 ',' 与 '.'）
// - 坏块跳过，不致整体失败（与文件级失败同一哲学：宁可少一条，不拒绝全部）
func ParseSRT(data []byte) []Cue {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	blocks := strings.Split(strings.TrimSpace(content), "\n\n")

	cues := make([]Cue, 0, len(blocks))
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}

		idx, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			continue
		}
		start, end, ok := parseTimeRange(lines[1])
		if !ok {
			continue
		}

		cues = append(cues, Cue{
			Index: idx,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[2:], " "),
		})
	}
	return cues
}

// EncodeVTT 把 cue 序列编码为 WebVTT。
func EncodeVTT(cues []Cue) []byte {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, c := range cues {
		b.WriteString("\n")
		b.WriteString(formatVTTTime(c.Start))
		b.WriteString(" --> ")
		b.WriteString(formatVTTTime(c.End))
		b.WriteString("\n")
		b.WriteString(c.Text)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// ConvertSRT 把 SRT 字节转为 WebVTT 字节。
// 一条有效 cue 都没有时返回错误（调用方按文件级失败跳过该字幕）。
func ConvertSRT(data []byte) ([]byte, error) {
	cues := ParseSRT(data)
	if len(cues) == 0 {
		return nil, fmt.Errorf("SRT 内容不含有效字幕块")
	}
	return EncodeVTT(cues), nil
}

// IsVTT 以最小代价判断内容是否已是 WebVTT（签名前缀）。
func IsVTT(data []byte) bool {
	return strings.HasPrefix(strings.TrimLeft(string(data), "\uFEFF \t\r\n"), "WEBVTT")
}

func parseTimeRange(line string) (start, end float64, ok bool) {
	parts := strings.Split(line, " --> ")
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, ok = parseTime(parts[0])
	if !ok {
		return 0, 0, false
	}
	end, ok = parseTime(parts[1])
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

func parseTime(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	// 兼容 "HH:MM:SS,mmm" 与 "HH:MM:SS.mmm"。
	s = strings.ReplaceAll(s, ",", ".")

	segs := strings.Split(s, ":")
	if len(segs) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(segs[0])
	m, err2 := strconv.Atoi(segs[1])
	sec, err3 := strconv.ParseFloat(segs[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	if h < 0 || m < 0 || sec < 0 {
		return 0, false
	}
	return float64(h)*3600 + float64(m)*60 + sec, true
}

func formatVTTTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int(sec*1000 + 0.5)
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	rem := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, rem)
}
