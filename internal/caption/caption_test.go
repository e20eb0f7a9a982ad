package caption

import (
	"strings"
	"testing"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:04,000
大家好

2
00:00:04,500 --> 00:00:06,250
第一行
第二行
`

func TestParseSRT(t *testing.T) {
	cues := ParseSRT([]byte(sampleSRT))
	if len(cues) != 2 {
		t.Fatalf("期望 2 条 cue，实际 %d", len(cues))
	}
	if cues[0].Start != 1.0 || cues[0].End != 4.0 {
		t.Fatalf("首条时间不符：start=%v end=%v", cues[0].Start, cues[0].End)
	}
	if cues[1].Text != "第一行 第二行" {
		t.Fatalf("多行文本应以空格合并，实际 %q", cues[1].Text)
	}
}

func TestParseSRT_SkipsBadBlocks(t *testing.T) {
	srt := "not-a-number\n00:00:01,000 --> 00:00:02,000\nx\n\n" + sampleSRT
	cues := ParseSRT([]byte(srt))
	if len(cues) != 2 {
		t.Fatalf("坏块应被跳过：期望 2 条，实际 %d", len(cues))
	}
}

func TestConvertSRT(t *testing.T) {
	b, err := ConvertSRT([]byte(sampleSRT))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	out := string(b)
	if !strings.HasPrefix(out, "WEBVTT\n") {
		t.Fatalf("输出必须以 WEBVTT 开头：%q", out)
	}
	if !strings.Contains(out, "00:00:04.500 --> 00:00:06.250") {
		t.Fatalf("时间码未按 VTT 形态输出：%q", out)
	}
	if !IsVTT(b) {
		t.Fatalf("ConvertSRT 的产物应通过 IsVTT 判定")
	}
}

func TestConvertSRT_Empty(t *testing.T) {
	if _, err := ConvertSRT([]byte("garbage")); err == nil {
		t.Fatalf("无有效 cue 时期望错误")
	}
}

func TestIsVTT(t *testing.T) {
	if !IsVTT([]byte("\uFEFFWEBVTT\n")) {
		t.Fatalf("带 BOM 的 VTT 应判定为真")
	}
	if IsVTT([]byte(sampleSRT)) {
		t.Fatalf("SRT 不应判定为 VTT")
	}
}
