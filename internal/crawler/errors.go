package crawler

import (
	"context"
	"errors"
	"strings"
)

// crawlErrorType 是抓取错误的分类，用于日志与指标标签。
type crawlErrorType string

const (
	errTypeTimeout crawlErrorType = "timeout"
	errTypeNetwork crawlErrorType = "network"
	errTypeBlocked crawlErrorType = "blocked"
	errTypeParse   crawlErrorType = "parse_error"
	errTypeUnknown crawlErrorType = "unknown"
)

// classifyError 根据错误内容归类。
func classifyError(err error) crawlErrorType {
	if err == nil {
		return errTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errTypeTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return errTypeTimeout
	case strings.Contains(msg, "403") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "blocked"):
		return errTypeBlocked
	case strings.Contains(msg, "net::") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "navigate"):
		return errTypeNetwork
	case strings.Contains(msg, "parse") || strings.Contains(msg, "extract"):
		return errTypeParse
	default:
		return errTypeUnknown
	}
}

// isFatalSessionError 判断错误是否意味着浏览器会话已不可用。
func isFatalSessionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "browser") ||
		strings.Contains(msg, "websocket") ||
		strings.Contains(msg, "cdp") ||
		strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "session closed")
}
