package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 爬取流水线指标。
var (
	// CrawlRunsActive 当前正在进行的抓取运行数（0 或 1）。
	CrawlRunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steamhunter_crawl_runs_active",
		Help: "Number of crawl runs currently in progress.",
	})

	// PagesCrawledTotal 已完成处理的列表页数量。
	PagesCrawledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steamhunter_pages_crawled_total",
		Help: "Total number of listing pages processed.",
	})

	// ItemsExtractedTotal 从列表页提取出的候选条目数量。
	ItemsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steamhunter_items_extracted_total",
		Help: "Total number of candidate items extracted from listing pages.",
	})

	// ItemsSkippedTotal 被去重/校验丢弃的条目数量，按原因区分。
	ItemsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steamhunter_items_skipped_total",
		Help: "Total number of items dropped before persistence, by reason.",
	}, []string{"reason"})

	// GamesSavedTotal 成功入库的游戏数量。
	GamesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steamhunter_games_saved_total",
		Help: "Total number of games upserted into storage.",
	})

	// PriceHistoryAppendedTotal 追加的价格历史记录数量。
	PriceHistoryAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steamhunter_price_history_appended_total",
		Help: "Total number of price history rows appended.",
	})

	// CrawlErrorsTotal 抓取过程中的错误数量，按错误类型区分。
	CrawlErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steamhunter_crawl_errors_total",
		Help: "Total number of crawl errors, by classified type.",
	}, []string{"type"})

	// PageSettleDuration 页面加载等待耗时分布。
	PageSettleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steamhunter_page_settle_duration_seconds",
		Help:    "Time spent waiting for pages to settle after navigation.",
		Buckets: prometheus.DefBuckets,
	})

	// UpsertDuration 单条记录入库耗时分布。
	UpsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steamhunter_upsert_duration_seconds",
		Help:    "Time spent upserting a single game record.",
		Buckets: prometheus.DefBuckets,
	})

	// PersistQueueDepth 入库队列当前深度。
	PersistQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steamhunter_persist_queue_depth",
		Help: "Current depth of the persistence worker queue.",
	})

	// RateLimitWaitDuration 详情页访问限速等待耗时分布。
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steamhunter_ratelimit_wait_duration_seconds",
		Help:    "Time spent waiting on the detail page rate limiter.",
		Buckets: prometheus.DefBuckets,
	})

	// RateLimitTimeoutTotal 限速等待被取消的次数。
	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steamhunter_ratelimit_timeouts_total",
		Help: "Total number of rate limit waits aborted by context cancellation.",
	})

	// BrowserActive 当前存活的浏览器会话数。
	BrowserActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steamhunter_browser_sessions_active",
		Help: "Number of live browser sessions.",
	})
)

// HTTP API 指标。
var (
	// HTTPRequestsTotal API 请求数量，按方法、路由模板与状态码区分。
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steamhunter_http_requests_total",
		Help: "Total number of HTTP API requests, by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration API 请求耗时分布。
	HTTPRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steamhunter_http_request_duration_seconds",
		Help:    "HTTP API request latency.",
		Buckets: prometheus.DefBuckets,
	})
)
