package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// State 是一次抓取运行的可恢复进度。
type State struct {
	LastPageURL string          // 最后访问的列表页位置（空表示从起始页开始）
	ParsedURLs  map[string]bool // 已处理的规范化 URL 集合
	TotalParsed int             // 已处理总数
}

// fileState 是进度文件的 JSON 布局。
type fileState struct {
	LastPageURL *string  `json:"last_page_url"`
	ParsedURLs  []string `json:"parsed_urls"`
	TotalParsed int      `json:"total_parsed"`
}

// Store 管理进度检查点文件。
//
// 单写者模型：同一时间只有一个 orchestrator 实例读写同一个文件。
// 写入采用临时文件 + 重命名，崩溃时旧文件保持完整。
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore 创建进度存储。
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load 读取进度文件。
//
// 文件不存在或损坏时返回空状态（记录日志），视为全新抓取。
func (s *Store) Load() State {
	empty := State{ParsedURLs: make(map[string]bool)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read progress file failed, starting fresh",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
		}
		return empty
	}

	var raw fileState
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("parse progress file failed, starting fresh",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return empty
	}

	state := State{
		ParsedURLs:  make(map[string]bool, len(raw.ParsedURLs)),
		TotalParsed: len(raw.ParsedURLs),
	}
	if raw.LastPageURL != nil {
		state.LastPageURL = *raw.LastPageURL
	}
	for _, u := range raw.ParsedURLs {
		state.ParsedURLs[u] = true
	}
	return state
}

// Save 把完整进度写入文件。
//
// 先写临时文件再重命名，避免写到一半崩溃留下损坏的进度。写失败只
// 返回错误，不影响调用方内存中的进度。
func (s *Store) Save(lastPageURL string, parsedURLs map[string]bool) error {
	raw := fileState{
		ParsedURLs:  make([]string, 0, len(parsedURLs)),
		TotalParsed: len(parsedURLs),
	}
	if lastPageURL != "" {
		raw.LastPageURL = &lastPageURL
	}
	for u := range parsedURLs {
		raw.ParsedURLs = append(raw.ParsedURLs, u)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".progress-*.json")
	if err != nil {
		return fmt.Errorf("create temp progress file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp progress file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp progress file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename progress file: %w", err)
	}
	return nil
}

// Clear 删除进度文件（管理操作，重新开始一轮完整抓取）。
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove progress file: %w", err)
	}
	return nil
}
