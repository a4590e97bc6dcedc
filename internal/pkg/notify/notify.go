package notify

import (
	"context"

	"steamhunter/internal/model"
)

// Notifier 定义降价通知接口。
type Notifier interface {
	// SendPriceDrop 发送降价通知。
	//
	// 参数:
	//   ctx: 上下文
	//   game: 游戏信息（已更新为新价格）
	//   oldPrice: 降价前的价格字符串
	//   toEmail: 接收邮箱
	SendPriceDrop(ctx context.Context, game *model.SteamGame, oldPrice string, toEmail string) error
}
