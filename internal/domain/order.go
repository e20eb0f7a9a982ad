package domain

import (
	"regexp"
	"sort"
	"strconv"
)

// 展示排序规则：标题的前导数字（1~2 位）升序；无前缀视为 0；相同时按标题字典序。
// 该规则在 ingest 阶段与展示阶段各应用一次，两处必须一致（遍历插入顺序不可泄漏）。
var titleOrderRE = regexp.MustCompile(`^(\d{1,2})`)

// TitleOrder 提取标题的排序键：前导数字（无则 0）。
func TitleOrder(title string) int {
	m := titleOrderRE.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func titleLess(a, b string) bool {
	na, nb := TitleOrder(a), TitleOrder(b)
	if na != nb {
		return na < nb
	}
	return a < b
}

// SortTopics 按数字前缀规则稳定排序 Topic（幂等：已排序输入不变）。
func SortTopics(topics []Topic) {
	sort.SliceStable(topics, func(i, j int) bool {
		return titleLess(topics[i].Title, topics[j].Title)
	})
}

// SortVideos 按数字前缀规则稳定排序 Video。
func SortVideos(videos []Video) {
	sort.SliceStable(videos, func(i, j int) bool {
		return titleLess(videos[i].Title, videos[j].Title)
	})
}

// SortResources 与视频使用同一规则，保证 Topic 内资源展示顺序稳定。
func SortResources(resources []Resource) {
	sort.SliceStable(resources, func(i, j int) bool {
		return titleLess(resources[i].Title, resources[j].Title)
	})
}
