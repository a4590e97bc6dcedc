package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"steamhunter/internal/model"
	"steamhunter/internal/pkg/metrics"
)

// Store 封装游戏数据的持久化操作。
//
// 生命周期归属调用方（进程启动时构造、退出时 Close），不做任何全局实例。
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// GameRecord 是入库前的规范化记录。
//
// 价格与折扣保留列表页上的原始字符串，派生字段（AppID、CleanTitle、
// DiscountPercent、DiscountAmount、IsDiscounted）由 Upsert 计算。
type GameRecord struct {
	Title         string
	CurrentPrice  string
	OriginalPrice string
	DiscountText  string
	ImageURL      string
	URL           string

	Categories       []string
	Description      string
	ShortDescription string
	ReviewRating     string
	ReviewCount      string
	ReleaseDate      string
}

// New 连接数据库并迁移表结构。
func New(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewWithDB(db, logger)
}

// NewWithDB 用现成的 gorm.DB 构造 Store（测试时注入 SQLite）。
func NewWithDB(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&model.SteamGame{}, &model.GamePriceHistory{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// DB 暴露底层连接，供查询层之外的调用方（如 healthz 检查）使用。
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertResult 描述一次入库的结果。
type UpsertResult struct {
	Game          *model.SteamGame
	Created       bool   // 是否新建记录
	PreviousPrice string // 更新时价格发生变化则为变化前的价格，否则为空
}

// Upsert 插入或更新一条游戏记录，并在价格变化时追加历史。
//
// 查找顺序：先按 AppID（从 URL 解析），找不到再按规范化 URL。命中时原地
// 更新价格/折扣/评价等字段并刷新时间戳，未命中时新建记录。整条记录在
// 一个事务内提交，单条失败不影响其它记录。
func (s *Store) Upsert(ctx context.Context, rec GameRecord) (UpsertResult, error) {
	if rec.URL == "" {
		return UpsertResult{}, errors.New("upsert: record has no url")
	}
	if rec.Title == "" {
		return UpsertResult{}, errors.New("upsert: record has no title")
	}

	start := time.Now()
	defer func() {
		metrics.UpsertDuration.Observe(time.Since(start).Seconds())
	}()

	appID := ExtractAppID(rec.URL)
	now := time.Now()

	var result UpsertResult
	var game model.SteamGame
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := findExisting(tx, appID, rec.URL)
		if err != nil {
			return err
		}

		discountPercent := ParseDiscountPercent(rec.DiscountText)

		if found != nil {
			game = *found
			previousPrice := game.CurrentPrice
			applyRecord(&game, rec, appID, discountPercent, now)
			if err := tx.Save(&game).Error; err != nil {
				return fmt.Errorf("update game: %w", err)
			}
			if previousPrice != game.CurrentPrice {
				result.PreviousPrice = previousPrice
			}
		} else {
			game = model.SteamGame{CreatedAt: now}
			applyRecord(&game, rec, appID, discountPercent, now)
			if err := tx.Create(&game).Error; err != nil {
				return fmt.Errorf("create game: %w", err)
			}
			result.Created = true
		}

		appended, err := appendHistoryIfChanged(tx, &game, now)
		if err != nil {
			return err
		}
		if appended {
			metrics.PriceHistoryAppendedTotal.Inc()
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	result.Game = &game
	return result, nil
}

// findExisting 按 AppID 优先、URL 兜底查找已有记录。
func findExisting(tx *gorm.DB, appID, url string) (*model.SteamGame, error) {
	var game model.SteamGame

	if appID != "" {
		err := tx.Where("app_id = ?", appID).First(&game).Error
		if err == nil {
			return &game, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find by app_id: %w", err)
		}
	}

	err := tx.Where("url = ?", url).First(&game).Error
	if err == nil {
		return &game, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("find by url: %w", err)
}

// applyRecord 把规范化记录的字段套用到实体上（新建与更新共用）。
func applyRecord(game *model.SteamGame, rec GameRecord, appID string, discountPercent int, now time.Time) {
	if appID != "" {
		game.AppID = &appID
	}
	game.URL = rec.URL
	game.Title = rec.Title
	game.CleanTitle = CleanTitle(rec.Title)
	game.CurrentPrice = rec.CurrentPrice
	game.OriginalPrice = rec.OriginalPrice
	game.DiscountPercent = discountPercent
	game.DiscountAmount = DiscountAmount(rec.OriginalPrice, rec.CurrentPrice)
	game.IsDiscounted = discountPercent > 0
	game.ReviewRating = rec.ReviewRating
	game.ReviewCount = rec.ReviewCount
	game.ReleaseDate = rec.ReleaseDate
	game.UpdatedAt = now
	game.LastChecked = now

	if rec.ImageURL != "" {
		game.ImageURL = rec.ImageURL
	}
	if len(rec.Categories) > 0 {
		game.Categories = strings.Join(rec.Categories, ", ")
	}
	if rec.Description != "" {
		game.Description = rec.Description
	}
	if rec.ShortDescription != "" {
		game.ShortDescription = rec.ShortDescription
	}
}

// appendHistoryIfChanged 在当前价格与最近一条历史不同（或无历史）时追加记录。
func appendHistoryIfChanged(tx *gorm.DB, game *model.SteamGame, now time.Time) (bool, error) {
	var latest model.GamePriceHistory
	err := tx.Where("game_id = ?", game.ID).
		Order("recorded_at DESC").
		First(&latest).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("load latest history: %w", err)
	}

	if err == nil && latest.CurrentPrice == game.CurrentPrice {
		return false, nil
	}

	entry := model.GamePriceHistory{
		GameID:          game.ID,
		CurrentPrice:    game.CurrentPrice,
		OriginalPrice:   game.OriginalPrice,
		DiscountPercent: game.DiscountPercent,
		RecordedAt:      now,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return false, fmt.Errorf("append history: %w", err)
	}
	return true, nil
}
