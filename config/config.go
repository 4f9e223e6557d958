package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// RateLimitScope 限流作用范围
const (
	RateLimitScopeGlobal = "global" // 全局共用一个限流键
	RateLimitScopeUser   = "user"   // 按请求者（平台+频道+用户）分别限流
)

// Config stores the application configuration.
type Config struct {
	// 网易云相关
	NeteaseCookie string // 凭证串：JSON数组 / JSON对象 / "k=v; k=v" 均可
	Bitrate       int    // 目标码率，如 320000
	PageSize      int    // 搜索返回候选数量

	// 缓存
	CacheDir        string // 缓存根目录
	CacheLimitBytes int64  // 缓存总字节预算
	WatchCacheDir   bool   // 是否监听缓存目录，外部删除文件时同步失效元数据

	// 点歌交互
	SelectTimeoutSec int    // 候选列表等待回复的超时秒数
	OutputFormat     string // 默认输出格式：file / voice

	// 限流
	RateLimitEnabled  bool
	RateLimitInterval int    // 秒
	RateLimitScope    string // global / user

	// 转码
	FFmpegPath string

	// HTTP / 网关
	ListenAddr    string
	GatewaySecret string // 网关JWT签名密钥，为空则不校验

	// MySQL
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis（可选，搜索结果缓存）
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// 日志
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvInt64 gets an environment variable as int64 or returns a default value.
func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		NeteaseCookie: os.Getenv("NETEASE_COOKIE"),
		Bitrate:       getEnvInt("NETEASE_BITRATE", 320000),
		PageSize:      getEnvInt("SEARCH_PAGE_SIZE", 10),

		CacheDir:        getEnv("CACHE_DIR", filepath.Join("data", "cache")),
		CacheLimitBytes: getEnvInt64("CACHE_LIMIT_BYTES", 1<<30), // 默认1GB
		WatchCacheDir:   getEnvBool("CACHE_WATCH", true),

		SelectTimeoutSec: getEnvInt("SELECT_TIMEOUT_SEC", 30),
		OutputFormat:     getEnv("OUTPUT_FORMAT", "file"),

		RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", false),
		RateLimitInterval: getEnvInt("RATE_LIMIT_INTERVAL_SEC", 10),
		RateLimitScope:    getEnv("RATE_LIMIT_SCOPE", RateLimitScopeUser),

		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),

		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		GatewaySecret: os.Getenv("GATEWAY_SECRET"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "ncmbot"),

		RedisAddr:     getEnv("REDIS_ADDR", ""), // 为空表示不启用Redis
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
