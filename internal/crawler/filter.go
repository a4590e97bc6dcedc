package crawler

import (
	"strings"
)

// FilterUnique 把候选条目过滤成唯一且基本完整的集合。
//
// 丢弃缺标题（含哨兵值）或缺现价的条目，丢弃标题命中评测/新闻关键词
// 的条目，然后分别按小写去空白的标题和规范化 URL 去重，保留首次出现，
// 输出顺序与输入一致。
func FilterUnique(items []CandidateItem) []CandidateItem {
	seenTitles := make(map[string]bool, len(items))
	seenURLs := make(map[string]bool, len(items))

	result := make([]CandidateItem, 0, len(items))
	for _, item := range items {
		if item.Title == "" || item.Title == unknownTitle || item.CurrentPrice == "" {
			continue
		}

		titleKey := strings.ToLower(strings.TrimSpace(item.Title))
		if containsBlockedKeyword(titleKey) {
			continue
		}
		if seenTitles[titleKey] || seenURLs[item.URL] {
			continue
		}

		seenTitles[titleKey] = true
		seenURLs[item.URL] = true
		result = append(result, item)
	}
	return result
}

// IsValid 是入库前的最终校验：标题、现价、链接都必须非空。
//
// 详情页补充发生在列表级过滤之后，其间字段可能被覆盖或丢失，所以
// 这里独立于 FilterUnique 再查一遍。
func IsValid(item CandidateItem) bool {
	return item.Title != "" &&
		item.Title != unknownTitle &&
		item.CurrentPrice != "" &&
		item.URL != ""
}

func containsBlockedKeyword(lowerTitle string) bool {
	for _, keyword := range titleBlocklist {
		if strings.Contains(lowerTitle, keyword) {
			return true
		}
	}
	return false
}
