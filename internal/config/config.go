package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Crawler  CrawlerConfig  `json:"crawler"`
	Progress ProgressConfig `json:"progress"`
	Bot      BotConfig      `json:"bot"`
	API      APIConfig      `json:"api"`
	Email    EmailConfig    `json:"email"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env         string `json:"env"`          // 运行环境: local / prod
	LogLevel    string `json:"log_level"`    // 日志级别: debug / info / warn / error
	MetricsAddr string `json:"metrics_addr"` // Prometheus 指标监听地址
}

// DatabaseConfig 关系型数据库配置。
//
// 连接字符串由各字段拼装而成，而不是整串配置，便于在容器环境下
// 逐项用环境变量覆盖。
type DatabaseConfig struct {
	Dialect  string `json:"dialect"`  // 数据库类型: mysql
	Host     string `json:"host"`     // 主机名
	Port     int    `json:"port"`     // 端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Name     string `json:"name"`     // 数据库名
}

// DSN 根据配置拼装 MySQL 连接字符串。
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// RedisConfig Redis 缓存配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)，为空表示禁用
	Password string `json:"password"` // Redis 密码
}

// CrawlerConfig 爬虫浏览器与抓取预算配置。
type CrawlerConfig struct {
	StartURL          string        `json:"start_url"`           // 折扣列表起始页
	BinPath           string        `json:"bin_path"`            // 浏览器可执行文件路径
	Headless          bool          `json:"headless"`            // 是否使用无头模式
	UserAgent         string        `json:"user_agent"`          // 自定义 UA，为空使用默认
	MaxGames          int           `json:"max_games"`           // 单次运行最大入库数量
	MaxAdvances       int           `json:"max_advances"`        // 翻页尝试上限
	PageSize          int           `json:"page_size"`           // 列表页每批条目数（offset 回退步长）
	InitialSettle     time.Duration `json:"initial_settle"`      // 首页加载后的等待
	AdvanceSettle     time.Duration `json:"advance_settle"`      // 翻页后的等待
	DetailSettle      time.Duration `json:"detail_settle"`       // 详情页加载后的等待
	BackSettle        time.Duration `json:"back_settle"`         // 返回列表页后的等待
	RequestsPerMinute float64       `json:"requests_per_minute"` // 详情页访问限速（0 表示不限）
	WorkerPoolSize    int           `json:"worker_pool_size"`    // 入库 Worker Pool 大小
	QueueCapacity     int           `json:"queue_capacity"`      // 入库队列容量
	DedupWindow       int           `json:"dedup_window"`        // 跨进程 URL 去重窗口（秒，0 表示禁用）
	RunInterval       time.Duration `json:"run_interval"`        // 多轮运行间隔（0 表示单次运行）
}

// ProgressConfig 进度文件配置。
type ProgressConfig struct {
	Path string `json:"path"` // 进度 JSON 文件路径
}

// BotConfig Telegram 机器人配置。
type BotConfig struct {
	Token        string `json:"token"`         // Bot API Token
	SettingsPath string `json:"settings_path"` // 用户设置 JSON 文件路径
}

// APIConfig 只读 Web API 配置。
type APIConfig struct {
	HTTPAddr string `json:"http_addr"` // 监听地址
	PageSize int    `json:"page_size"` // 列表页默认分页大小
}

// EmailConfig 降价邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
	ToEmail   string `json:"to_email"` // 接收降价通知的邮箱，为空表示禁用
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		// 即使没有配置文件，也允许环境变量覆盖默认值
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// 应用默认值（对于未设置的字段）
	applyDefaults(cfg)

	// 环境变量优先覆盖配置
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault 加载配置，如果失败则返回默认配置（不报错）。
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// Save 保存配置到 JSON 文件。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:         "local",
			LogLevel:    "info",
			MetricsAddr: ":2112",
		},
		Database: DatabaseConfig{
			Dialect:  "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "",
			Name:     "steamhunter",
		},
		Redis: RedisConfig{
			Addr:     "",
			Password: "",
		},
		Crawler: CrawlerConfig{
			StartURL:          "https://store.steampowered.com/search/?specials=1&ndl=1",
			BinPath:           "",
			Headless:          true,
			UserAgent:         "",
			MaxGames:          500,
			MaxAdvances:       100,
			PageSize:          12,
			InitialSettle:     5 * time.Second,
			AdvanceSettle:     3 * time.Second,
			DetailSettle:      2 * time.Second,
			BackSettle:        1 * time.Second,
			RequestsPerMinute: 0,
			WorkerPoolSize:    4,
			QueueCapacity:     100,
			DedupWindow:       0,
			RunInterval:       0,
		},
		Progress: ProgressConfig{
			Path: "data/progress.json",
		},
		Bot: BotConfig{
			Token:        "",
			SettingsPath: "data/user_settings.json",
		},
		API: APIConfig{
			HTTPAddr: ":8081",
			PageSize: 12,
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
			ToEmail:   "",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = defaults.App.MetricsAddr
	}
	if cfg.Database.Dialect == "" {
		cfg.Database.Dialect = defaults.Database.Dialect
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = defaults.Database.Host
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = defaults.Database.Port
	}
	if cfg.Database.User == "" {
		cfg.Database.User = defaults.Database.User
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = defaults.Database.Name
	}
	if cfg.Crawler.StartURL == "" {
		cfg.Crawler.StartURL = defaults.Crawler.StartURL
	}
	if cfg.Crawler.MaxGames == 0 {
		cfg.Crawler.MaxGames = defaults.Crawler.MaxGames
	}
	if cfg.Crawler.MaxAdvances == 0 {
		cfg.Crawler.MaxAdvances = defaults.Crawler.MaxAdvances
	}
	if cfg.Crawler.PageSize == 0 {
		cfg.Crawler.PageSize = defaults.Crawler.PageSize
	}
	if cfg.Crawler.InitialSettle == 0 {
		cfg.Crawler.InitialSettle = defaults.Crawler.InitialSettle
	}
	if cfg.Crawler.AdvanceSettle == 0 {
		cfg.Crawler.AdvanceSettle = defaults.Crawler.AdvanceSettle
	}
	if cfg.Crawler.DetailSettle == 0 {
		cfg.Crawler.DetailSettle = defaults.Crawler.DetailSettle
	}
	if cfg.Crawler.BackSettle == 0 {
		cfg.Crawler.BackSettle = defaults.Crawler.BackSettle
	}
	if cfg.Crawler.WorkerPoolSize == 0 {
		cfg.Crawler.WorkerPoolSize = defaults.Crawler.WorkerPoolSize
	}
	if cfg.Crawler.QueueCapacity == 0 {
		cfg.Crawler.QueueCapacity = defaults.Crawler.QueueCapacity
	}
	if cfg.Progress.Path == "" {
		cfg.Progress.Path = defaults.Progress.Path
	}
	if cfg.Bot.SettingsPath == "" {
		cfg.Bot.SettingsPath = defaults.Bot.SettingsPath
	}
	if cfg.API.HTTPAddr == "" {
		cfg.API.HTTPAddr = defaults.API.HTTPAddr
	}
	if cfg.API.PageSize == 0 {
		cfg.API.PageSize = defaults.API.PageSize
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("bot_token", "BOT_TOKEN")
	_ = viper.BindEnv("chrome_bin", "CHROME_BIN")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}

	if v := viper.GetString("db_host"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = i
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := viper.GetString("db_password"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("CRAWLER_START_URL"); v != "" {
		cfg.Crawler.StartURL = v
	}
	if v := viper.GetString("chrome_bin"); v != "" {
		cfg.Crawler.BinPath = v
	}
	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Crawler.Headless = b
		}
	}
	if v := os.Getenv("CRAWLER_USER_AGENT"); v != "" {
		cfg.Crawler.UserAgent = v
	}
	if v := os.Getenv("CRAWLER_MAX_GAMES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.MaxGames = i
		}
	}
	if v := os.Getenv("CRAWLER_MAX_ADVANCES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.MaxAdvances = i
		}
	}
	if v := os.Getenv("CRAWLER_REQUESTS_PER_MINUTE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Crawler.RequestsPerMinute = f
		}
	}
	if v := os.Getenv("CRAWLER_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("CRAWLER_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.QueueCapacity = i
		}
	}
	if v := os.Getenv("CRAWLER_DEDUP_WINDOW"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.DedupWindow = i
		}
	}
	if v := os.Getenv("CRAWLER_RUN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawler.RunInterval = d
		}
	}

	if v := os.Getenv("PROGRESS_PATH"); v != "" {
		cfg.Progress.Path = v
	}

	if v := viper.GetString("bot_token"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("BOT_SETTINGS_PATH"); v != "" {
		cfg.Bot.SettingsPath = v
	}

	if v := os.Getenv("API_HTTP_ADDR"); v != "" {
		cfg.API.HTTPAddr = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("SMTP_TO"); v != "" {
		cfg.Email.ToEmail = v
	}
}

// UnmarshalJSON 自定义 JSON 解析，支持时间 Duration 字符串（如 "5s"）。
func (c *CrawlerConfig) UnmarshalJSON(data []byte) error {
	type Alias CrawlerConfig
	aux := &struct {
		InitialSettle string `json:"initial_settle"`
		AdvanceSettle string `json:"advance_settle"`
		DetailSettle  string `json:"detail_settle"`
		BackSettle    string `json:"back_settle"`
		RunInterval   string `json:"run_interval"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	set := func(field *time.Duration, raw, name string) error {
		if raw == "" {
			return nil
		}
		duration, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s format: %w", name, err)
		}
		*field = duration
		return nil
	}

	if err := set(&c.InitialSettle, aux.InitialSettle, "initial_settle"); err != nil {
		return err
	}
	if err := set(&c.AdvanceSettle, aux.AdvanceSettle, "advance_settle"); err != nil {
		return err
	}
	if err := set(&c.DetailSettle, aux.DetailSettle, "detail_settle"); err != nil {
		return err
	}
	if err := set(&c.BackSettle, aux.BackSettle, "back_settle"); err != nil {
		return err
	}
	if err := set(&c.RunInterval, aux.RunInterval, "run_interval"); err != nil {
		return err
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (c CrawlerConfig) MarshalJSON() ([]byte, error) {
	type Alias CrawlerConfig
	return json.Marshal(&struct {
		InitialSettle string `json:"initial_settle"`
		AdvanceSettle string `json:"advance_settle"`
		DetailSettle  string `json:"detail_settle"`
		BackSettle    string `json:"back_settle"`
		RunInterval   string `json:"run_interval"`
		*Alias
	}{
		InitialSettle: c.InitialSettle.String(),
		AdvanceSettle: c.AdvanceSettle.String(),
		DetailSettle:  c.DetailSettle.String(),
		BackSettle:    c.BackSettle.String(),
		RunInterval:   c.RunInterval.String(),
		Alias:         (*Alias)(&c),
	})
}
