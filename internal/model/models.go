package model

import (
	"time"
)

// SteamGame 表示从商店折扣列表抓取到的一款游戏。
//
// AppID 是商店为游戏分配的数字标识（从详情页 URL 解析），用于去重；
// 解析失败时以规范化 URL（去掉查询串）作为备用唯一键。
// 价格字段保留原始字符串形式（如 "799 руб"），数值比较在查询层完成。
type SteamGame struct {
	ID        uint      `gorm:"primaryKey"` // 内部 ID
	CreatedAt time.Time `gorm:"index"`      // 首次抓取时间
	UpdatedAt time.Time `gorm:"index"`      // 更新时间

	AppID *string `gorm:"type:varchar(32);uniqueIndex"`           // 商店原始 ID（解析不到时为 NULL，用 URL 作备用键）
	URL   string  `gorm:"type:varchar(191);uniqueIndex;not null"` // 详情页规范化链接

	Title      string `gorm:"not null"`          // 游戏标题
	CleanTitle string `gorm:"type:varchar(191)"` // 小写、去商标符号后的标题（用于搜索/去重）

	CurrentPrice    string `gorm:"type:varchar(64);index"` // 当前价格（原始字符串）
	OriginalPrice   string `gorm:"type:varchar(64)"`       // 折扣前价格（原始字符串）
	DiscountPercent int    `gorm:"index"`                  // 折扣百分比（整数，如 50）
	DiscountAmount  string `gorm:"type:varchar(64)"`       // 折扣金额（派生字符串，如 "200 руб"）
	IsDiscounted    bool   `gorm:"index"`                  // 是否在打折（DiscountPercent > 0）

	ImageURL         string // 列表页头图链接
	Categories       string // 分类标签（逗号拼接）
	Description      string `gorm:"type:text"`         // 详情页描述（截断后）
	ShortDescription string `gorm:"type:varchar(320)"` // 短描述（300 字符 + 省略号）

	ReviewRating string `gorm:"type:varchar(16);index"` // 评分（meta ratingValue，原样保存）
	ReviewCount  string `gorm:"type:varchar(32)"`       // 评价数量（meta reviewCount，原样保存）
	ReleaseDate  string `gorm:"type:varchar(64)"`       // 发售日期（原样保存）

	LastChecked time.Time // 最近一次在列表中出现的时间
}

// GamePriceHistory 是游戏价格的只追加历史记录。
//
// 仅当再次抓取观察到的当前价格与最近一条历史不同（或尚无历史）时追加；
// 正常运行路径下从不修改或删除。
type GamePriceHistory struct {
	ID     uint `gorm:"primaryKey"`                      // 内部 ID
	GameID uint `gorm:"index:idx_history_game;not null"` // 所属游戏 ID

	CurrentPrice    string `gorm:"type:varchar(64)"` // 记录时的当前价格
	OriginalPrice   string `gorm:"type:varchar(64)"` // 记录时的原价
	DiscountPercent int    // 记录时的折扣百分比

	RecordedAt time.Time `gorm:"index:idx_history_game"` // 记录时间
}
