package db

import (
	"context"
	"fmt"
	"time"

	"github.com/MuxYang/ncmbot/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient 是全局Redis客户端，未配置时保持为 nil
var RedisClient *redis.Client

// ConnectRedis 初始化Redis连接
// RedisAddr 为空时不启用，调用方按 nil 处理（搜索缓存直接跳过）
func ConnectRedis(cfg *config.Config) error {
	if cfg.RedisAddr == "" {
		return nil
	}

	RedisClient = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}
