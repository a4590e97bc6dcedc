package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"steamhunter/internal/api/middleware"
	"steamhunter/internal/config"
	"steamhunter/internal/model"
	"steamhunter/internal/storage"
)

const (
	healthCheckTimeout = 2 * time.Second
	maxPageSize        = 100
)

// GameStore 是只读 API 需要的存储查询面。
type GameStore interface {
	ListGames(ctx context.Context, opts storage.ListOptions) ([]model.SteamGame, int64, error)
	GetGame(ctx context.Context, id uint) (*model.SteamGame, error)
	PriceHistory(ctx context.Context, gameID uint) ([]model.GamePriceHistory, error)
	CountGames(ctx context.Context) (total int64, discounted int64, err error)
}

// allowedSorts 是列表接口合法的 sort 取值。
var allowedSorts = map[string]bool{
	"":                       true,
	storage.SortNewest:       true,
	storage.SortDiscountHigh: true,
	storage.SortDiscountLow:  true,
	storage.SortRatingHigh:   true,
	storage.SortRatingLow:    true,
	storage.SortPriceLow:     true,
	storage.SortPriceHigh:    true,
}

// Server 封装只读 Web API 的依赖与路由。
//
// 这个面没有写操作也没有账号体系，入库只走爬虫进程。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	store  GameStore
	router *gin.Engine
}

// NewServer 初始化只读 API 服务器。
//
// 参数:
//
//	cfg: 配置对象
//	logger: 日志记录器
//	store: 存储查询面
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
func NewServer(cfg *config.Config, logger *slog.Logger, store GameStore) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
		router: r,
	}
	s.registerRoutes()
	return s
}

// Run 启动 HTTP 服务器并开始监听请求。
func (s *Server) Run() error {
	s.logger.Info("api server listening", slog.String("addr", s.cfg.API.HTTPAddr))
	return s.router.Run(s.cfg.API.HTTPAddr)
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealthz)

	games := s.router.Group("/api")
	games.GET("/games", s.handleListGames)
	games.GET("/games/:id", s.handleGetGame)
	games.GET("/games/:id/history", s.handlePriceHistory)
	games.GET("/stats", s.handleStats)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if _, _, err := s.store.CountGames(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// gameResponse 列表与详情接口返回的游戏结构。
type gameResponse struct {
	ID               uint   `json:"id"`
	AppID            string `json:"app_id,omitempty"`
	Title            string `json:"title"`
	CurrentPrice     string `json:"current_price"`
	OriginalPrice    string `json:"original_price,omitempty"`
	DiscountPercent  int    `json:"discount_percent"`
	DiscountAmount   string `json:"discount_amount,omitempty"`
	IsDiscounted     bool   `json:"is_discounted"`
	ImageURL         string `json:"image_url,omitempty"`
	URL              string `json:"url"`
	Categories       string `json:"categories,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`
	Description      string `json:"description,omitempty"`
	ReviewRating     string `json:"review_rating,omitempty"`
	ReviewCount      string `json:"review_count,omitempty"`
	ReleaseDate      string `json:"release_date,omitempty"`
	LastChecked      string `json:"last_checked,omitempty"`
}

func toGameResponse(game model.SteamGame, withDescription bool) gameResponse {
	resp := gameResponse{
		ID:               game.ID,
		Title:            game.Title,
		CurrentPrice:     game.CurrentPrice,
		OriginalPrice:    game.OriginalPrice,
		DiscountPercent:  game.DiscountPercent,
		DiscountAmount:   game.DiscountAmount,
		IsDiscounted:     game.IsDiscounted,
		ImageURL:         game.ImageURL,
		URL:              game.URL,
		Categories:       game.Categories,
		ShortDescription: game.ShortDescription,
		ReviewRating:     game.ReviewRating,
		ReviewCount:      game.ReviewCount,
		ReleaseDate:      game.ReleaseDate,
	}
	if game.AppID != nil {
		resp.AppID = *game.AppID
	}
	if !game.LastChecked.IsZero() {
		resp.LastChecked = game.LastChecked.Format(time.RFC3339)
	}
	if withDescription {
		resp.Description = game.Description
	}
	return resp
}

// handleListGames 处理游戏列表查询。
//
// GET /api/games?discounted=1&q=portal&sort=discount_high&limit=12&offset=0
func (s *Server) handleListGames(c *gin.Context) {
	sortMode := c.Query("sort")
	if !allowedSorts[sortMode] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sort"})
		return
	}

	limit := parseQueryInt(c, "limit", s.cfg.API.PageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = s.cfg.API.PageSize
	}
	offset := parseQueryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	opts := storage.ListOptions{
		OnlyDiscounted: parseQueryBool(c, "discounted"),
		Search:         c.Query("q"),
		Sort:           sortMode,
		Offset:         offset,
		Limit:          limit,
	}

	games, total, err := s.store.ListGames(c.Request.Context(), opts)
	if err != nil {
		s.logger.Error("list games failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list games failed"})
		return
	}

	items := make([]gameResponse, 0, len(games))
	for _, game := range games {
		items = append(items, toGameResponse(game, false))
	}

	c.JSON(http.StatusOK, gin.H{
		"games":    items,
		"total":    total,
		"offset":   offset,
		"limit":    limit,
		"has_more": int64(offset+len(games)) < total,
	})
}

// handleGetGame 返回单条游戏记录（含完整描述）。
//
// GET /api/games/:id
func (s *Server) handleGetGame(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	game, err := s.store.GetGame(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
			return
		}
		s.logger.Error("get game failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get game failed"})
		return
	}

	c.JSON(http.StatusOK, toGameResponse(*game, true))
}

// historyEntry 价格历史接口返回的单条记录。
type historyEntry struct {
	CurrentPrice    string `json:"current_price"`
	OriginalPrice   string `json:"original_price,omitempty"`
	DiscountPercent int    `json:"discount_percent"`
	RecordedAt      string `json:"recorded_at"`
}

// handlePriceHistory 返回一款游戏的价格历史，按记录时间正序。
//
// GET /api/games/:id/history
func (s *Server) handlePriceHistory(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if _, err := s.store.GetGame(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
			return
		}
		s.logger.Error("get game failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get game failed"})
		return
	}

	entries, err := s.store.PriceHistory(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("load price history failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load history failed"})
		return
	}

	history := make([]historyEntry, 0, len(entries))
	for _, entry := range entries {
		history = append(history, historyEntry{
			CurrentPrice:    entry.CurrentPrice,
			OriginalPrice:   entry.OriginalPrice,
			DiscountPercent: entry.DiscountPercent,
			RecordedAt:      entry.RecordedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"game_id": id, "history": history})
}

// handleStats 返回库内总数与打折数。
//
// GET /api/stats
func (s *Server) handleStats(c *gin.Context) {
	total, discounted, err := s.store.CountGames(c.Request.Context())
	if err != nil {
		s.logger.Error("count games failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count games failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "discounted": discounted})
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return 0, false
	}
	return uint(id), true
}

// parseQueryInt 解析查询参数中的整数值。
func parseQueryInt(c *gin.Context, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}

func parseQueryBool(c *gin.Context, key string) bool {
	switch c.Query(key) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
