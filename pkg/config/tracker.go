package config

import "time"

// Config holds runtime configuration for the deployment tracker API.
type Config struct {
	Environment        string
	LogLevel           string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	APIKey             string
	BaseURL            string
	OrgRepoPrefix      string
	ActiveServicesPath string
	StatsWindowDays    int
	StatsCacheTTL      time.Duration
	GithubStatsURL     string
	GithubStatsAPIKey  string
	GithubStatsTTL     time.Duration
	AnalyticsURL       string
	AnalyticsWriteKey  string
	CacheRedisAddr     string
	CacheRedisPass     string
	CacheRedisDB       int
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	EventFeedBuffer    int
}

// Load constructs a Config from environment variables.
func Load() Config {
	return Config{
		Environment:        GetString("APP_ENV", "development"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		Addr:               GetString("API_ADDR", ":4000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://tracker:tracker@db:5432/tracker?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		APIKey:             GetString("API_KEY", ""),
		BaseURL:            GetString("BASE_URL", ""),
		OrgRepoPrefix:      GetString("ORG_REPO_PREFIX", "https://github.com/IBM/"),
		ActiveServicesPath: GetString("ACTIVE_SERVICES_PATH", "service_list.json"),
		StatsWindowDays:    GetInt("STATS_WINDOW_DAYS", 365),
		StatsCacheTTL:      GetDuration("STATS_CACHE_TTL", 15*time.Minute),
		GithubStatsURL:     GetString("GITHUB_STATS_URL", "https://github-stats.mybluemix.net/api/v1/stats"),
		GithubStatsAPIKey:  GetString("GITHUB_STATS_API_KEY", ""),
		GithubStatsTTL:     GetDuration("GITHUB_STATS_CACHE_TTL", 6*time.Hour),
		AnalyticsURL:       GetString("ANALYTICS_URL", ""),
		AnalyticsWriteKey:  GetString("ANALYTICS_WRITE_KEY", ""),
		CacheRedisAddr:     GetString("CACHE_REDIS_ADDR", ""),
		CacheRedisPass:     GetString("CACHE_REDIS_PASSWORD", ""),
		CacheRedisDB:       GetInt("CACHE_REDIS_DB", 0),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		EventFeedBuffer:    GetInt("WS_EVENT_BUFFER", 100),
	}
}
