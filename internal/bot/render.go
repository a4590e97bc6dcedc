package bot

import (
	"fmt"
	"html"
	"strings"

	"steamhunter/internal/model"
	"steamhunter/internal/settings"
)

// renderPage 渲染一页游戏列表（HTML parse mode）。
func renderPage(mode settings.BrowseMode, games []model.SteamGame, offset int, total int64, display settings.DisplayMode) string {
	header := "🎮 Последние добавленные"
	if mode == settings.BrowseDiscounted {
		header = "🔥 Самые большие скидки"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b> (%d–%d из %d)\n",
		header, offset+1, offset+len(games), total)

	for _, game := range games {
		sb.WriteString("\n")
		sb.WriteString(renderGame(game, display))
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderGame 按显示模式渲染单张游戏卡片。
func renderGame(game model.SteamGame, display settings.DisplayMode) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "🎮 <b>%s</b>\n", html.EscapeString(game.Title))

	switch display {
	case settings.ModeMinimal:
		fmt.Fprintf(&sb, "💰 %s", html.EscapeString(game.CurrentPrice))

	case settings.ModeFull:
		writePriceLine(&sb, game)
		if game.Categories != "" {
			fmt.Fprintf(&sb, "\n🏷 %s", html.EscapeString(game.Categories))
		}
		if game.ShortDescription != "" {
			fmt.Fprintf(&sb, "\n📝 %s", html.EscapeString(game.ShortDescription))
		}
		if game.ReviewRating != "" {
			fmt.Fprintf(&sb, "\n⭐ %s", html.EscapeString(game.ReviewRating))
			if game.ReviewCount != "" {
				fmt.Fprintf(&sb, " (%s отзывов)", html.EscapeString(game.ReviewCount))
			}
		}
		if game.ReleaseDate != "" {
			fmt.Fprintf(&sb, "\n📅 %s", html.EscapeString(game.ReleaseDate))
		}
		writeLink(&sb, game)

	default: // standard
		writePriceLine(&sb, game)
		writeLink(&sb, game)
	}

	return sb.String()
}

func writePriceLine(sb *strings.Builder, game model.SteamGame) {
	if game.IsDiscounted && game.OriginalPrice != "" {
		fmt.Fprintf(sb, "💰 <s>%s</s> → <b>%s</b>",
			html.EscapeString(game.OriginalPrice), html.EscapeString(game.CurrentPrice))
		if game.DiscountPercent > 0 {
			fmt.Fprintf(sb, " (−%d%%)", game.DiscountPercent)
		}
		return
	}
	fmt.Fprintf(sb, "💰 %s", html.EscapeString(game.CurrentPrice))
}

func writeLink(sb *strings.Builder, game model.SteamGame) {
	if game.URL != "" {
		fmt.Fprintf(sb, "\n🔗 <a href=\"%s\">Открыть в Steam</a>", game.URL)
	}
}

func displayModeLabel(mode settings.DisplayMode) string {
	switch mode {
	case settings.ModeMinimal:
		return "кратко"
	case settings.ModeFull:
		return "подробно"
	default:
		return "стандарт"
	}
}
