package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"steamhunter/internal/config"
	"steamhunter/internal/model"
	"steamhunter/internal/settings"
)

const (
	requestTimeout    = 10 * time.Second // 单次存储查询超时
	updatePollTimeout = 30               // 长轮询超时（秒）
)

// 回调数据前缀。
const (
	cbPage = "page" // page:<browse mode>:<prev|next>
	cbMode = "mode" // mode:<display mode>
	cbSize = "size" // size:<games per page>
)

// GameQuerier 是机器人需要的存储查询面。
type GameQuerier interface {
	MostPopular(ctx context.Context, offset, limit int) ([]model.SteamGame, int64, error)
	HighestDiscount(ctx context.Context, offset, limit int) ([]model.SteamGame, int64, error)
	CountGames(ctx context.Context) (total int64, discounted int64, err error)
}

// sender 是 Telegram API 里机器人实际用到的两个方法。
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot 是折扣游戏的 Telegram 聊天界面。
//
// 两种浏览模式（最近入库 / 折扣幅度），带上一页/下一页内联按钮；
// 显示偏好按聊天保存在设置文件里。
type Bot struct {
	api      sender
	raw      *tgbotapi.BotAPI
	store    GameQuerier
	settings *settings.Manager
	logger   *slog.Logger
}

// New 连接 Telegram Bot API 并组装机器人。
func New(cfg *config.BotConfig, logger *slog.Logger, store GameQuerier, manager *settings.Manager) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}

	logger.Info("telegram bot authorized", slog.String("username", api.Self.UserName))
	return &Bot{
		api:      api,
		raw:      api,
		store:    store,
		settings: manager,
		logger:   logger,
	}, nil
}

// Run 开始长轮询处理更新，直到 ctx 被取消。
func (b *Bot) Run(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = updatePollTimeout
	updates := b.raw.GetUpdatesChan(updateCfg)

	for {
		select {
		case <-ctx.Done():
			b.raw.StopReceivingUpdates()
			b.logger.Info("bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate 分发单条更新，带 panic 恢复。
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panic recovered", slog.Any("panic", r))
		}
	}()

	switch {
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "help":
		b.send(tgbotapi.NewMessage(chatID, helpText))
	case "popular":
		if err := b.settings.SetOffset(chatID, settings.BrowsePopular, 0); err != nil {
			b.logger.Warn("reset offset failed", slog.String("error", err.Error()))
		}
		b.sendGamesPage(ctx, chatID, settings.BrowsePopular)
	case "discounts":
		if err := b.settings.SetOffset(chatID, settings.BrowseDiscounted, 0); err != nil {
			b.logger.Warn("reset offset failed", slog.String("error", err.Error()))
		}
		b.sendGamesPage(ctx, chatID, settings.BrowseDiscounted)
	case "stats":
		b.sendStats(ctx, chatID)
	case "settings":
		b.sendSettingsMenu(chatID)
	default:
		b.send(tgbotapi.NewMessage(chatID, "Неизвестная команда. Наберите /help."))
	}
}

// sendGamesPage 按当前偏好渲染并发送一页游戏列表。
func (b *Bot) sendGamesPage(ctx context.Context, chatID int64, mode settings.BrowseMode) {
	prefs := b.settings.Get(chatID)
	offset := b.settings.Offset(chatID, mode)

	games, total, err := b.fetch(ctx, mode, offset, prefs.GamesPerPage)
	if err != nil {
		b.logger.Error("load games page failed",
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()))
		b.send(tgbotapi.NewMessage(chatID, "Не получилось загрузить список, попробуйте позже."))
		return
	}
	if len(games) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Пока нет данных. Загляните позже."))
		return
	}

	msg := tgbotapi.NewMessage(chatID, renderPage(mode, games, offset, total, prefs.DisplayMode))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if keyboard, ok := pageKeyboard(mode, offset, prefs.GamesPerPage, total); ok {
		msg.ReplyMarkup = keyboard
	}
	b.send(msg)
}

func (b *Bot) sendStats(ctx context.Context, chatID int64) {
	queryCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	total, discounted, err := b.store.CountGames(queryCtx)
	if err != nil {
		b.logger.Error("load stats failed", slog.String("error", err.Error()))
		b.send(tgbotapi.NewMessage(chatID, "Не получилось загрузить статистику."))
		return
	}
	b.send(tgbotapi.NewMessage(chatID,
		fmt.Sprintf("В базе %d игр, из них со скидкой: %d.", total, discounted)))
}

func (b *Bot) sendSettingsMenu(chatID int64) {
	prefs := b.settings.Get(chatID)

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"Текущие настройки:\nРежим: %s\nИгр на странице: %d",
		displayModeLabel(prefs.DisplayMode), prefs.GamesPerPage))
	msg.ReplyMarkup = settingsKeyboard()
	b.send(msg)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	parts := strings.Split(cb.Data, ":")
	chatID := cb.Message.Chat.ID

	switch parts[0] {
	case cbPage:
		if len(parts) != 3 {
			b.answer(cb.ID, "")
			return
		}
		b.turnPage(ctx, cb, settings.BrowseMode(parts[1]), parts[2])
	case cbMode:
		if len(parts) != 2 {
			b.answer(cb.ID, "")
			return
		}
		if err := b.settings.SetDisplayMode(chatID, settings.DisplayMode(parts[1])); err != nil {
			b.answer(cb.ID, "Неизвестный режим")
			return
		}
		b.answer(cb.ID, "Режим обновлён")
	case cbSize:
		if len(parts) != 2 {
			b.answer(cb.ID, "")
			return
		}
		size, err := strconv.Atoi(parts[1])
		if err != nil {
			b.answer(cb.ID, "")
			return
		}
		if err := b.settings.SetGamesPerPage(chatID, size); err != nil {
			b.logger.Warn("save page size failed", slog.String("error", err.Error()))
		}
		b.answer(cb.ID, fmt.Sprintf("Игр на странице: %d", settings.ClampPageSize(size)))
	default:
		b.answer(cb.ID, "")
	}
}

// turnPage 处理上一页/下一页回调，原地编辑列表消息。
func (b *Bot) turnPage(ctx context.Context, cb *tgbotapi.CallbackQuery, mode settings.BrowseMode, direction string) {
	chatID := cb.Message.Chat.ID
	prefs := b.settings.Get(chatID)
	offset := b.settings.Offset(chatID, mode)

	switch direction {
	case "next":
		offset += prefs.GamesPerPage
	case "prev":
		offset -= prefs.GamesPerPage
	}
	if offset < 0 {
		offset = 0
	}

	games, total, err := b.fetch(ctx, mode, offset, prefs.GamesPerPage)
	if err != nil {
		b.logger.Error("turn page failed", slog.String("error", err.Error()))
		b.answer(cb.ID, "Ошибка, попробуйте ещё раз")
		return
	}
	if len(games) == 0 {
		// 越过末尾，保持当前偏移不动
		b.answer(cb.ID, "Это последняя страница")
		return
	}

	if err := b.settings.SetOffset(chatID, mode, offset); err != nil {
		b.logger.Warn("save offset failed", slog.String("error", err.Error()))
	}

	text := renderPage(mode, games, offset, total, prefs.DisplayMode)
	if keyboard, ok := pageKeyboard(mode, offset, prefs.GamesPerPage, total); ok {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, cb.Message.MessageID, text, keyboard)
		edit.ParseMode = tgbotapi.ModeHTML
		b.request(edit)
	} else {
		edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		b.request(edit)
	}
	b.answer(cb.ID, "")
}

func (b *Bot) fetch(ctx context.Context, mode settings.BrowseMode, offset, limit int) ([]model.SteamGame, int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if mode == settings.BrowseDiscounted {
		return b.store.HighestDiscount(queryCtx, offset, limit)
	}
	return b.store.MostPopular(queryCtx, offset, limit)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Warn("telegram send failed", slog.String("error", err.Error()))
	}
}

func (b *Bot) request(c tgbotapi.Chattable) {
	if _, err := b.api.Request(c); err != nil {
		b.logger.Warn("telegram request failed", slog.String("error", err.Error()))
	}
}

func (b *Bot) answer(callbackID, text string) {
	b.request(tgbotapi.NewCallback(callbackID, text))
}

// pageKeyboard 构造翻页按钮行；没有可翻的方向时返回 ok=false。
func pageKeyboard(mode settings.BrowseMode, offset, limit int, total int64) (tgbotapi.InlineKeyboardMarkup, bool) {
	var row []tgbotapi.InlineKeyboardButton
	if offset > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			"⬅️ Назад", fmt.Sprintf("%s:%s:prev", cbPage, mode)))
	}
	if int64(offset+limit) < total {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			"Вперёд ➡️", fmt.Sprintf("%s:%s:next", cbPage, mode)))
	}
	if len(row) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}

// settingsKeyboard 构造显示模式与每页条数的选择菜单。
func settingsKeyboard() tgbotapi.InlineKeyboardMarkup {
	modeRow := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("Кратко", cbMode+":"+string(settings.ModeMinimal)),
		tgbotapi.NewInlineKeyboardButtonData("Стандарт", cbMode+":"+string(settings.ModeStandard)),
		tgbotapi.NewInlineKeyboardButtonData("Подробно", cbMode+":"+string(settings.ModeFull)),
	}

	var sizeRow []tgbotapi.InlineKeyboardButton
	for _, size := range settings.PageSizes() {
		sizeRow = append(sizeRow, tgbotapi.NewInlineKeyboardButtonData(
			strconv.Itoa(size), fmt.Sprintf("%s:%d", cbSize, size)))
	}

	return tgbotapi.NewInlineKeyboardMarkup(modeRow, sizeRow)
}

const helpText = `Бот показывает игры Steam со скидками.

/popular — последние добавленные игры
/discounts — самые большие скидки
/stats — сколько игр в базе
/settings — режим отображения и размер страницы`
