package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MuxYang/ncmbot/logger"
	"github.com/MuxYang/ncmbot/model"

	"github.com/redis/go-redis/v9"
)

// 搜索结果在Redis里的存活时间
const searchCacheTTL = 10 * time.Minute

// SearchCache 搜索结果的Redis缓存，短时间内重复搜索同一关键词不再打远端
// rdb 为 nil 时所有操作都是空操作
type SearchCache struct {
	rdb *redis.Client
}

// NewSearchCache 创建搜索缓存
func NewSearchCache(rdb *redis.Client) *SearchCache {
	return &SearchCache{rdb: rdb}
}

func searchKey(keyword string, limit, offset int) string {
	return fmt.Sprintf("ncm:search:%s:%d:%d", keyword, limit, offset)
}

// Get 查询缓存的搜索结果
func (c *SearchCache) Get(ctx context.Context, keyword string, limit, offset int) ([]model.SearchCandidate, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, searchKey(keyword, limit, offset)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("[SearchCache] 读取失败", logger.ErrorField(err))
		}
		return nil, false
	}

	var candidates []model.SearchCandidate
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		logger.Warn("[SearchCache] 反序列化失败", logger.ErrorField(err))
		return nil, false
	}
	return candidates, true
}

// Put 写入搜索结果，失败只记日志
func (c *SearchCache) Put(ctx context.Context, keyword string, limit, offset int, candidates []model.SearchCandidate) {
	if c == nil || c.rdb == nil {
		return
	}

	raw, err := json.Marshal(candidates)
	if err != nil {
		logger.Warn("[SearchCache] 序列化失败", logger.ErrorField(err))
		return
	}

	if err := c.rdb.Set(ctx, searchKey(keyword, limit, offset), raw, searchCacheTTL).Err(); err != nil {
		logger.Warn("[SearchCache] 写入失败", logger.ErrorField(err))
	}
}
