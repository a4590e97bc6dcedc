package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// DisplayMode 控制机器人单条游戏卡片的详细程度。
type DisplayMode string

const (
	ModeMinimal  DisplayMode = "minimal"  // 标题 + 现价
	ModeStandard DisplayMode = "standard" // 标题 + 价格 + 折扣
	ModeFull     DisplayMode = "full"     // 全部字段含描述与评价
)

// BrowseMode 是机器人浏览列表的排序模式。
type BrowseMode string

const (
	BrowsePopular    BrowseMode = "popular"    // 最近入库优先
	BrowseDiscounted BrowseMode = "discounted" // 折扣幅度优先
)

// allowedPageSizes 是每页条数的合法取值，升序。
var allowedPageSizes = []int{1, 2, 3, 6, 12}

const (
	defaultPageSize = 3
	backupSuffix    = ".bak"
)

// UserSettings 是单个聊天的显示偏好与浏览位置。
type UserSettings struct {
	DisplayMode      DisplayMode `json:"display_mode"`
	GamesPerPage     int         `json:"games_per_page"`
	PopularOffset    int         `json:"popular_offset"`
	DiscountedOffset int         `json:"discounted_offset"`
}

func defaultSettings() UserSettings {
	return UserSettings{
		DisplayMode:  ModeStandard,
		GamesPerPage: defaultPageSize,
	}
}

// Manager 管理按聊天分键的用户设置文件。
//
// 所有变更立即落盘；替换前把旧文件备份成 <path>.bak，写入采用临时
// 文件 + 重命名。文件缺失或损坏时从空集合开始（记录日志）。
type Manager struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	users  map[int64]UserSettings
}

// NewManager 创建设置管理器并加载现有文件。
func NewManager(path string, logger *slog.Logger) *Manager {
	m := &Manager{
		path:   path,
		logger: logger,
		users:  make(map[int64]UserSettings),
	}
	m.load()
	return m
}

func (m *Manager) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("read settings file failed, starting empty",
				slog.String("path", m.path),
				slog.String("error", err.Error()))
		}
		return
	}

	var raw map[string]UserSettings
	if err := json.Unmarshal(data, &raw); err != nil {
		m.logger.Warn("parse settings file failed, starting empty",
			slog.String("path", m.path),
			slog.String("error", err.Error()))
		return
	}

	for key, value := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			m.logger.Warn("skip settings entry with invalid key", slog.String("key", key))
			continue
		}
		m.users[id] = normalize(value)
	}
}

// Get 返回某个聊天的设置，没有记录时返回默认值（不落盘）。
func (m *Manager) Get(chatID int64) UserSettings {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.users[chatID]; ok {
		return s
	}
	return defaultSettings()
}

// SetDisplayMode 更新显示模式并落盘。未知模式返回错误。
func (m *Manager) SetDisplayMode(chatID int64, mode DisplayMode) error {
	switch mode {
	case ModeMinimal, ModeStandard, ModeFull:
	default:
		return fmt.Errorf("unknown display mode %q", mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(chatID)
	s.DisplayMode = mode
	m.users[chatID] = s
	return m.saveLocked()
}

// SetGamesPerPage 更新每页条数并落盘，非法取值收敛到最近的合法值。
func (m *Manager) SetGamesPerPage(chatID int64, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(chatID)
	s.GamesPerPage = ClampPageSize(n)
	// 每页条数变化后旧的偏移不再对齐，重置到第一页
	s.PopularOffset = 0
	s.DiscountedOffset = 0
	m.users[chatID] = s
	return m.saveLocked()
}

// Offset 返回某个浏览模式下当前的分页偏移。
func (m *Manager) Offset(chatID int64, mode BrowseMode) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(chatID)
	if mode == BrowseDiscounted {
		return s.DiscountedOffset
	}
	return s.PopularOffset
}

// SetOffset 记录某个浏览模式下的分页偏移并落盘，负值按 0 处理。
func (m *Manager) SetOffset(chatID int64, mode BrowseMode, offset int) error {
	if offset < 0 {
		offset = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(chatID)
	if mode == BrowseDiscounted {
		s.DiscountedOffset = offset
	} else {
		s.PopularOffset = offset
	}
	m.users[chatID] = s
	return m.saveLocked()
}

func (m *Manager) getLocked(chatID int64) UserSettings {
	if s, ok := m.users[chatID]; ok {
		return s
	}
	return defaultSettings()
}

// saveLocked 把全部设置写入文件，替换前备份旧文件。调用方持锁。
func (m *Manager) saveLocked() error {
	raw := make(map[string]UserSettings, len(m.users))
	for id, s := range m.users {
		raw[strconv.FormatInt(id, 10)] = s
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	// 旧文件先备份，写坏了还能手工恢复上一版
	if _, err := os.Stat(m.path); err == nil {
		if old, err := os.ReadFile(m.path); err == nil {
			if err := os.WriteFile(m.path+backupSuffix, old, 0644); err != nil {
				m.logger.Warn("write settings backup failed",
					slog.String("error", err.Error()))
			}
		}
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp settings file: %w", err)
	}

	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename settings file: %w", err)
	}
	return nil
}

// ClampPageSize 把任意值收敛到最近的合法每页条数。
func ClampPageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}

	best := allowedPageSizes[0]
	bestDist := n - best
	if bestDist < 0 {
		bestDist = -bestDist
	}
	for _, size := range allowedPageSizes[1:] {
		dist := n - size
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best = size
			bestDist = dist
		}
	}
	return best
}

// PageSizes 返回合法的每页条数取值（升序副本）。
func PageSizes() []int {
	return append([]int(nil), allowedPageSizes...)
}

func normalize(s UserSettings) UserSettings {
	switch s.DisplayMode {
	case ModeMinimal, ModeStandard, ModeFull:
	default:
		s.DisplayMode = ModeStandard
	}
	s.GamesPerPage = ClampPageSize(s.GamesPerPage)
	if s.PopularOffset < 0 {
		s.PopularOffset = 0
	}
	if s.DiscountedOffset < 0 {
		s.DiscountedOffset = 0
	}
	return s
}
