package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"gorm.io/gorm"

	"steamhunter/internal/model"
)

// 列表排序模式。
const (
	SortNewest       = "newest"
	SortDiscountHigh = "discount_high"
	SortDiscountLow  = "discount_low"
	SortRatingHigh   = "rating_high"
	SortRatingLow    = "rating_low"
	SortPriceLow     = "price_low"
	SortPriceHigh    = "price_high"
)

// ListOptions 控制游戏列表查询。
type ListOptions struct {
	OnlyDiscounted bool   // 仅返回在打折的游戏
	Search         string // 模糊搜索（标题/规范化标题/描述）
	Sort           string // 排序模式，见 Sort* 常量；为空按 newest
	Offset         int
	Limit          int
}

// ListGames 按条件查询游戏列表。
//
// 价格与评分排序需要对字符串字段做数值解析，在内存中完成；数据规模是
// 每轮数百条，不值得为此改存储格式。
//
// 返回值:
//
//	[]model.SteamGame: 当前分页的记录
//	int64: 条件命中的总数（用于 has_more 判断）
//	error: 查询失败返回错误
func (s *Store) ListGames(ctx context.Context, opts ListOptions) ([]model.SteamGame, int64, error) {
	query := s.filtered(ctx, opts)

	var total int64
	if err := query.Model(&model.SteamGame{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count games: %w", err)
	}

	switch opts.Sort {
	case SortPriceLow, SortPriceHigh, SortRatingHigh, SortRatingLow:
		return s.listSortedInMemory(query, opts, total)
	}

	order := "created_at DESC"
	switch opts.Sort {
	case SortDiscountHigh:
		order = "discount_percent DESC"
	case SortDiscountLow:
		order = "discount_percent ASC"
	}

	var games []model.SteamGame
	err := query.Order(order).Offset(opts.Offset).Limit(opts.Limit).Find(&games).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list games: %w", err)
	}
	return games, total, nil
}

// MostPopular 返回按首次抓取时间倒序的分页列表（机器人的"热门"模式）。
func (s *Store) MostPopular(ctx context.Context, offset, limit int) ([]model.SteamGame, int64, error) {
	return s.ListGames(ctx, ListOptions{Sort: SortNewest, Offset: offset, Limit: limit})
}

// HighestDiscount 返回按折扣百分比倒序的打折游戏分页列表。
func (s *Store) HighestDiscount(ctx context.Context, offset, limit int) ([]model.SteamGame, int64, error) {
	return s.ListGames(ctx, ListOptions{
		OnlyDiscounted: true,
		Sort:           SortDiscountHigh,
		Offset:         offset,
		Limit:          limit,
	})
}

// GetGame 按内部 ID 查询单条记录。
func (s *Store) GetGame(ctx context.Context, id uint) (*model.SteamGame, error) {
	var game model.SteamGame
	if err := s.db.WithContext(ctx).First(&game, id).Error; err != nil {
		return nil, err
	}
	return &game, nil
}

// PriceHistory 返回一款游戏的价格历史，按记录时间正序。
func (s *Store) PriceHistory(ctx context.Context, gameID uint) ([]model.GamePriceHistory, error) {
	var entries []model.GamePriceHistory
	err := s.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("recorded_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load price history: %w", err)
	}
	return entries, nil
}

// CountGames 返回总数与打折数。
func (s *Store) CountGames(ctx context.Context) (total int64, discounted int64, err error) {
	if err = s.db.WithContext(ctx).Model(&model.SteamGame{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count games: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&model.SteamGame{}).
		Where("is_discounted = ?", true).Count(&discounted).Error
	if err != nil {
		return 0, 0, fmt.Errorf("count discounted: %w", err)
	}
	return total, discounted, nil
}

func (s *Store) filtered(ctx context.Context, opts ListOptions) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&model.SteamGame{})
	if opts.OnlyDiscounted {
		query = query.Where("is_discounted = ?", true)
	}
	if opts.Search != "" {
		pattern := "%" + opts.Search + "%"
		query = query.Where(
			"title LIKE ? OR clean_title LIKE ? OR description LIKE ? OR short_description LIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}
	return query
}

// listSortedInMemory 把命中的全部记录取出后按解析值排序再分页。
func (s *Store) listSortedInMemory(query *gorm.DB, opts ListOptions, total int64) ([]model.SteamGame, int64, error) {
	var games []model.SteamGame
	if err := query.Find(&games).Error; err != nil {
		return nil, 0, fmt.Errorf("list games: %w", err)
	}

	switch opts.Sort {
	case SortPriceLow:
		sort.SliceStable(games, func(i, j int) bool {
			a, _ := ParsePrice(games[i].CurrentPrice)
			b, _ := ParsePrice(games[j].CurrentPrice)
			return a < b
		})
	case SortPriceHigh:
		sort.SliceStable(games, func(i, j int) bool {
			a, _ := ParsePrice(games[i].CurrentPrice)
			b, _ := ParsePrice(games[j].CurrentPrice)
			return a > b
		})
	case SortRatingHigh:
		sort.SliceStable(games, func(i, j int) bool {
			return parseRating(games[i].ReviewRating) > parseRating(games[j].ReviewRating)
		})
	case SortRatingLow:
		sort.SliceStable(games, func(i, j int) bool {
			return parseRating(games[i].ReviewRating) < parseRating(games[j].ReviewRating)
		})
	}

	start := opts.Offset
	if start > len(games) {
		start = len(games)
	}
	end := start + opts.Limit
	if opts.Limit <= 0 || end > len(games) {
		end = len(games)
	}
	return games[start:end], total, nil
}

func parseRating(s string) float64 {
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return value
}
