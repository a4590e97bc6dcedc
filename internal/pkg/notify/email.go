package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"steamhunter/internal/config"
	"steamhunter/internal/model"
)

// EmailNotifier 实现邮件降价通知。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendPriceDrop 发送降价邮件。
//
// SMTP 配置缺失时记录警告并跳过，不视为错误。
func (n *EmailNotifier) SendPriceDrop(ctx context.Context, game *model.SteamGame, oldPrice string, toEmail string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification")
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		n.logger.Warn("email recipient empty, skip notification")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[SteamHunter] 📉 降价提醒")

	body := n.buildHTMLBody(game, oldPrice)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("price drop notification sent",
		slog.String("to", toEmail),
		slog.String("title", game.Title))
	return nil
}

func (n *EmailNotifier) buildHTMLBody(game *model.SteamGame, oldPrice string) string {
	priceLine := game.CurrentPrice
	if oldPrice != "" {
		priceLine = fmt.Sprintf("%s → %s 📉", oldPrice, game.CurrentPrice)
	}
	discountLine := ""
	if game.DiscountPercent > 0 {
		discountLine = fmt.Sprintf("-%d%%", game.DiscountPercent)
	}

	template := `
<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; }
  .hero img { width: 100%%; max-width: 520px; display: block; margin: 0 auto 16px; border-radius: 8px; }
  .price { font-size: 26px; font-weight: bold; color: #ef4444; margin: 8px 0 4px; }
  .discount { font-size: 16px; font-weight: bold; color: #22c55e; margin-bottom: 12px; }
  .title { font-size: 16px; margin-bottom: 16px; }
  .cta { display: inline-block; padding: 12px 20px; background: #22c55e; color: #fff; text-decoration: none; border-radius: 8px; font-weight: bold; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">[SteamHunter] 📉 降价提醒</div>
    <div class="content">
      <div class="hero"><img src="%s" alt="Game Image" /></div>
      <div class="price">%s</div>
      <div class="discount">%s</div>
      <div class="title">%s</div>
      <div style="text-align:center; margin-bottom: 12px;">
        <a class="cta" href="%s" target="_blank">去商店页面</a>
      </div>
    </div>
  </div>
</body>
</html>`

	return fmt.Sprintf(template, game.ImageURL, priceLine, discountLine, game.Title, game.URL)
}
