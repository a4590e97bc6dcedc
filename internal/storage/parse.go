package storage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// 当前仅针对卢布区页面。
const defaultCurrency = "RUB"

var (
	appIDPattern    = regexp.MustCompile(`/app/(\d+)`)
	digitRunPattern = regexp.MustCompile(`\d+`)
	spacePattern    = regexp.MustCompile(`[\s\x{00a0}]+`)
)

// ParsePrice 将价格字符串解析为数值和货币标识。
//
// 去掉空白（含不换行空格）与货币记号（руб / ₽ / р.），把小数逗号换成
// 小数点后按浮点数解析。任何解析失败都返回 (0.0, "RUB")，从不报错。
func ParsePrice(s string) (float64, string) {
	cleaned := spacePattern.ReplaceAllString(s, "")
	for _, token := range []string{"руб.", "руб", "₽", "р."} {
		cleaned = strings.ReplaceAll(cleaned, token, "")
	}
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	cleaned = strings.TrimSpace(cleaned)

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0.0, defaultCurrency
	}
	return value, defaultCurrency
}

// ParseDiscountPercent 从折扣字符串中取出第一段连续数字作为百分比。
//
// "-50%" 返回 50，没有数字时返回 0。
func ParseDiscountPercent(s string) int {
	match := digitRunPattern.FindString(s)
	if match == "" {
		return 0
	}
	value, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return value
}

// ExtractAppID 从详情页 URL 中解析商店分配的数字 ID。
//
// 形如 https://store.steampowered.com/app/12345/Name/ 的链接返回 "12345"，
// 解析不到时返回空字符串（调用方回退到以 URL 作为唯一键）。
func ExtractAppID(url string) string {
	match := appIDPattern.FindStringSubmatch(url)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// CleanTitle 生成用于搜索和去重的规范化标题：小写、去商标符号、去首尾空白。
func CleanTitle(title string) string {
	cleaned := strings.ToLower(title)
	for _, token := range []string{"™", "®", "©"} {
		cleaned = strings.ReplaceAll(cleaned, token, "")
	}
	return strings.TrimSpace(cleaned)
}

// DiscountAmount 根据原价与现价计算折扣金额字符串（如 "200 руб"）。
//
// 任一价格解析失败或差值不为正时返回空字符串。
func DiscountAmount(originalPrice, currentPrice string) string {
	original, _ := ParsePrice(originalPrice)
	current, _ := ParsePrice(currentPrice)
	if original <= current || original == 0 {
		return ""
	}
	return fmt.Sprintf("%d руб", int(original-current))
}
