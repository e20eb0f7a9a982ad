package title

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FromFileName 从文件名派生展示标题：去掉扩展名，其余原样保留。
// 不做大小写/分隔符“智能”处理——标题同时是排序键（数字前缀规则），改写会破坏顺序。
func FromFileName(name string) string {
	name = strings.TrimSpace(name)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// FromHTML 从 HTML 文档字节中提取 <title> 文本作为展示标题。
// 提取失败（解析错误/无 title/空白 title）返回 ok=false，调用方回退到文件名。
func FromHTML(data []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	t := strings.TrimSpace(doc.Find("title").First().Text())
	if t == "" {
		return "", false
	}
	// 压掉换行与连续空白，避免多行 <title> 污染单行展示。
	return strings.Join(strings.Fields(t), " "), true
}
