package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"steamhunter/internal/config"
	"steamhunter/internal/pkg/dedup"
	"steamhunter/internal/pkg/metrics"
	"steamhunter/internal/pkg/notify"
	"steamhunter/internal/pkg/queue"
	"steamhunter/internal/pkg/ratelimit"
	"steamhunter/internal/progress"
	"steamhunter/internal/storage"
)

const (
	persistQueueShutdownTimeout = 30 * time.Second // 入库队列关闭等待上限
	upsertTimeout               = 15 * time.Second // 单条记录入库超时
	notifyTimeout               = 10 * time.Second // 单封降价邮件发送超时
)

// GameStore 是入库协作方的消费端接口。
type GameStore interface {
	Upsert(ctx context.Context, rec storage.GameRecord) (storage.UpsertResult, error)
}

// Service 是抓取流水线的 orchestrator。
//
// 单实例、单浏览器会话：导航、扫描、详情访问全部串行；只有入库被
// 下放到 worker 池并发执行（各条记录键互不相同）。进度在每页处理完
// 之后落盘，中断后可以从上次的位置续抓。
type Service struct {
	cfg       *config.Config
	logger    *slog.Logger
	driver    Driver
	navigator *Navigator
	extractor *Extractor
	store     GameStore
	progress  *progress.Store

	persistQueue *queue.Queue
	limiter      *ratelimit.RateLimiter
	deduper      *dedup.Deduplicator
	notifier     notify.Notifier
	rdb          *redis.Client

	// 后台任务控制
	bgCtx    context.Context
	bgCancel context.CancelFunc

	// 统计信息
	stats runStats
}

// runStats 单次运行的统计信息（使用 atomic 类型）。
type runStats struct {
	Saved   atomic.Int64 // 成功入库数
	Errors  atomic.Int64 // 条目级错误数
	Skipped atomic.Int64 // 去重/校验丢弃数
	Pages   atomic.Int64 // 已处理列表页数
}

// RunStats 统计信息快照（普通值类型，可安全拷贝）。
type RunStats struct {
	Saved   int64
	Errors  int64
	Skipped int64
	Pages   int64
}

// NewService 创建浏览器会话并组装抓取流水线。
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//	store: 入库协作方
//	notifier: 降价通知器（可为 nil）
//
// 返回值:
//
//	*Service: 初始化完成的服务实例
//	error: 浏览器启动或 Redis 连接失败返回错误
func NewService(ctx context.Context, cfg *config.Config, logger *slog.Logger, store GameStore, notifier notify.Notifier) (*Service, error) {
	driver, err := NewRodDriver(ctx, &cfg.Crawler, logger)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	var limiter *ratelimit.RateLimiter
	var deduper *dedup.Deduplicator
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = driver.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}

		if cfg.Crawler.RequestsPerMinute > 0 {
			rate := cfg.Crawler.RequestsPerMinute / 60.0
			burst := cfg.Crawler.RequestsPerMinute / 10.0
			if burst < 1 {
				burst = 1
			}
			limiter = ratelimit.NewRedisRateLimiter(rdb, logger, "", rate, burst)
			logger.Info("detail page rate limiter enabled",
				slog.Float64("requests_per_minute", cfg.Crawler.RequestsPerMinute))
		}
		if cfg.Crawler.DedupWindow > 0 {
			deduper = dedup.NewDeduplicator(rdb, time.Duration(cfg.Crawler.DedupWindow)*time.Second)
			logger.Info("cross-run dedup window enabled",
				slog.Int("window_seconds", cfg.Crawler.DedupWindow))
		}
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	persistQueue := queue.NewQueue(logger, cfg.Crawler.WorkerPoolSize, cfg.Crawler.QueueCapacity)
	persistQueue.Start(bgCtx)

	service := &Service{
		cfg:          cfg,
		logger:       logger,
		driver:       driver,
		navigator:    NewNavigator(driver, logger, cfg.Crawler.PageSize, cfg.Crawler.AdvanceSettle),
		extractor:    NewExtractor(driver, logger),
		store:        store,
		progress:     progress.NewStore(cfg.Progress.Path, logger),
		persistQueue: persistQueue,
		limiter:      limiter,
		deduper:      deduper,
		notifier:     notifier,
		rdb:          rdb,
		bgCtx:        bgCtx,
		bgCancel:     bgCancel,
	}

	logger.Info("crawler service initialized",
		slog.String("start_url", cfg.Crawler.StartURL),
		slog.Int("max_games", cfg.Crawler.MaxGames),
		slog.Int("max_advances", cfg.Crawler.MaxAdvances))
	return service, nil
}

// Run 执行一次完整的抓取运行。
//
// 状态机：打开起始页 → [扫描 → 过滤 → (访详情 → 校验 → 入库)* →
// 存进度 → 翻页] 循环，直到条目预算用完、翻页预算用完或翻页返回
// false。条目级失败只计数不外抛；浏览器会话丢失等不可恢复错误会提前
// 结束循环，但进度仍然落盘。
//
// 返回值:
//
//	saved: 成功入库的条目数
//	errs: 条目/页面级错误数
//	err: 仅在无法开始抓取（起始页打不开）时非空
func (s *Service) Run(ctx context.Context) (saved int, errs int, err error) {
	metrics.CrawlRunsActive.Inc()
	defer metrics.CrawlRunsActive.Dec()

	state := s.progress.Load()
	startURL := state.LastPageURL
	resumed := startURL != ""
	if !resumed {
		startURL = s.cfg.Crawler.StartURL
	}

	var wg sync.WaitGroup

	// 运行级 panic 保险：保存进度后带着已有计数返回
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("crawl run panic recovered", slog.Any("panic", r))
			s.saveProgress(s.navigator.CurrentLocation(ctx), state)
			wg.Wait()
			saved = int(s.stats.Saved.Load())
			errs = int(s.stats.Errors.Load()) + 1
			err = nil
		}
	}()

	s.logger.Info("crawl run started",
		slog.String("start_url", startURL),
		slog.Bool("resumed", resumed),
		slog.Int("already_parsed", state.TotalParsed))

	if navErr := s.navigator.GotoInitial(ctx, startURL, s.cfg.Crawler.InitialSettle); navErr != nil {
		metrics.CrawlErrorsTotal.WithLabelValues(string(classifyError(navErr))).Inc()
		return 0, 1, fmt.Errorf("open start page: %w", navErr)
	}

	processed := 0
	advances := 0
	done := false

	for !done {
		items := s.extractor.ScanListing(ctx)
		kept := FilterUnique(items)
		if dropped := len(items) - len(kept); dropped > 0 {
			s.stats.Skipped.Add(int64(dropped))
			metrics.ItemsSkippedTotal.WithLabelValues("filter").Add(float64(dropped))
		}

		listingURL := s.navigator.CurrentLocation(ctx)

		for _, item := range kept {
			if ctx.Err() != nil {
				done = true
				break
			}
			if processed >= s.cfg.Crawler.MaxGames {
				s.logger.Info("item budget reached", slog.Int("max_games", s.cfg.Crawler.MaxGames))
				done = true
				break
			}
			if state.ParsedURLs[item.URL] {
				continue
			}
			if dup, dupErr := s.deduper.IsDuplicate(ctx, item.URL); dupErr != nil {
				s.logger.Debug("dedup check failed, continuing without it",
					slog.String("error", dupErr.Error()))
			} else if dup {
				s.stats.Skipped.Add(1)
				metrics.ItemsSkippedTotal.WithLabelValues("dedup_window").Inc()
				continue
			}

			if s.limiter != nil {
				if rlErr := s.limiter.Acquire(ctx); rlErr != nil {
					s.logger.Debug("rate limit wait aborted", slog.String("error", rlErr.Error()))
				}
			}

			enriched, visitErr := s.visitDetail(ctx, item)
			if visitErr != nil {
				s.stats.Errors.Add(1)
				errType := classifyError(visitErr)
				metrics.CrawlErrorsTotal.WithLabelValues(string(errType)).Inc()
				s.logger.Warn("detail page visit failed",
					slog.String("url", item.URL),
					slog.String("error_type", string(errType)),
					slog.String("error", visitErr.Error()))
				if isFatalSessionError(visitErr) {
					s.logger.Error("browser session lost, aborting run")
					done = true
					break
				}
			} else if !IsValid(enriched.CandidateItem) {
				s.stats.Errors.Add(1)
				metrics.ItemsSkippedTotal.WithLabelValues("invalid").Inc()
				s.logger.Warn("item failed validation, skipping", slog.String("url", item.URL))
			} else {
				s.enqueuePersist(ctx, &wg, enriched)
			}

			state.ParsedURLs[item.URL] = true
			state.TotalParsed++
			processed++

			// 回到记住的列表页位置再处理下一条
			if backErr := s.driver.Navigate(ctx, listingURL); backErr != nil {
				s.stats.Errors.Add(1)
				metrics.CrawlErrorsTotal.WithLabelValues(string(classifyError(backErr))).Inc()
				s.logger.Warn("navigate back to listing failed, moving to next page",
					slog.String("error", backErr.Error()))
				break
			}
			settleWait(ctx, s.cfg.Crawler.BackSettle)
		}

		s.stats.Pages.Add(1)
		metrics.PagesCrawledTotal.Inc()
		metrics.PersistQueueDepth.Set(float64(s.persistQueue.Len()))

		// 不论本页各条成败，先把进度落盘
		s.saveProgress(s.navigator.CurrentLocation(ctx), state)

		if done || ctx.Err() != nil {
			break
		}

		advances++
		if advances >= s.cfg.Crawler.MaxAdvances {
			s.logger.Info("advance budget exhausted", slog.Int("max_advances", s.cfg.Crawler.MaxAdvances))
			break
		}

		ok, advErr := s.navigator.Advance(ctx)
		if advErr != nil {
			s.stats.Errors.Add(1)
			metrics.CrawlErrorsTotal.WithLabelValues(string(classifyError(advErr))).Inc()
			s.logger.Warn("advance failed, ending run", slog.String("error", advErr.Error()))
			break
		}
		if !ok {
			s.logger.Info("no more listing pages")
			break
		}
	}

	wg.Wait()
	s.saveProgress(s.navigator.CurrentLocation(ctx), state)

	saved = int(s.stats.Saved.Load())
	errs = int(s.stats.Errors.Load())
	s.logger.Info("crawl run finished",
		slog.Int("saved", saved),
		slog.Int("errors", errs),
		slog.Int64("skipped", s.stats.Skipped.Load()),
		slog.Int64("pages", s.stats.Pages.Load()))
	return saved, errs, nil
}

// visitDetail 打开条目详情页并把补充字段合并进候选记录。
func (s *Service) visitDetail(ctx context.Context, item CandidateItem) (EnrichedItem, error) {
	if err := s.driver.Navigate(ctx, item.URL); err != nil {
		return EnrichedItem{CandidateItem: item}, err
	}
	settleWait(ctx, s.cfg.Crawler.DetailSettle)

	fields := s.extractor.ScanDetail(ctx)
	enriched := EnrichedItem{CandidateItem: item, Detail: fields}
	if fields.ImageURL != "" {
		enriched.ImageURL = fields.ImageURL
	}
	return enriched, nil
}

// enqueuePersist 把一条合法记录交给入库 worker 池。
func (s *Service) enqueuePersist(ctx context.Context, wg *sync.WaitGroup, item EnrichedItem) {
	rec := storage.GameRecord{
		Title:            item.Title,
		CurrentPrice:     item.CurrentPrice,
		OriginalPrice:    item.OriginalPrice,
		DiscountText:     item.DiscountText,
		ImageURL:         item.ImageURL,
		URL:              item.URL,
		Categories:       item.Detail.Categories,
		Description:      item.Detail.Description,
		ShortDescription: item.Detail.ShortDescription,
		ReviewRating:     item.Detail.ReviewRating,
		ReviewCount:      item.Detail.ReviewCount,
		ReleaseDate:      item.Detail.ReleaseDate,
	}

	wg.Add(1)
	job := func(jobCtx context.Context) error {
		defer wg.Done()

		upsertCtx, cancel := context.WithTimeout(jobCtx, upsertTimeout)
		defer cancel()

		result, err := s.store.Upsert(upsertCtx, rec)
		if err != nil {
			s.stats.Errors.Add(1)
			metrics.CrawlErrorsTotal.WithLabelValues(string(errTypeUnknown)).Inc()
			// 入库失败的 URL 从去重窗口移除，允许下一轮重试
			if delErr := s.deduper.Delete(context.Background(), rec.URL); delErr != nil {
				s.logger.Debug("dedup delete failed", slog.String("error", delErr.Error()))
			}
			return fmt.Errorf("upsert %q: %w", rec.URL, err)
		}

		s.stats.Saved.Add(1)
		metrics.GamesSavedTotal.Inc()
		s.maybeNotifyPriceDrop(result)
		return nil
	}

	if err := s.persistQueue.EnqueueBlocking(ctx, job); err != nil {
		wg.Done()
		s.stats.Errors.Add(1)
		s.logger.Warn("enqueue persist job failed",
			slog.String("url", item.URL),
			slog.String("error", err.Error()))
	}
}

// maybeNotifyPriceDrop 在观察到降价且配置了收件人时发送邮件。
func (s *Service) maybeNotifyPriceDrop(result storage.UpsertResult) {
	if s.notifier == nil || result.PreviousPrice == "" || s.cfg.Email.ToEmail == "" {
		return
	}
	oldValue, _ := storage.ParsePrice(result.PreviousPrice)
	newValue, _ := storage.ParsePrice(result.Game.CurrentPrice)
	if newValue >= oldValue {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.notifier.SendPriceDrop(notifyCtx, result.Game, result.PreviousPrice, s.cfg.Email.ToEmail); err != nil {
		s.logger.Warn("price drop notification failed",
			slog.String("title", result.Game.Title),
			slog.String("error", err.Error()))
	}
}

// saveProgress 把进度落盘，失败只记日志（不影响内存中的进度）。
func (s *Service) saveProgress(lastPageURL string, state progress.State) {
	if err := s.progress.Save(lastPageURL, state.ParsedURLs); err != nil {
		s.logger.Warn("save progress failed", slog.String("error", err.Error()))
	}
}

// Stats 返回当前统计快照。
func (s *Service) Stats() RunStats {
	return RunStats{
		Saved:   s.stats.Saved.Load(),
		Errors:  s.stats.Errors.Load(),
		Skipped: s.stats.Skipped.Load(),
		Pages:   s.stats.Pages.Load(),
	}
}

// ClearProgress 删除进度文件，下一次运行从头开始。
func (s *Service) ClearProgress() error {
	return s.progress.Clear()
}

// Shutdown 优雅关闭：
//  1. 停掉后台 worker
//  2. 等入库队列清空
//  3. 关闭浏览器与 Redis 连接
func (s *Service) Shutdown(ctx context.Context) error {
	s.bgCancel()

	var firstErr error
	if err := s.persistQueue.ShutdownWithTimeout(persistQueueShutdownTimeout); err != nil {
		firstErr = err
	}
	if err := s.driver.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
