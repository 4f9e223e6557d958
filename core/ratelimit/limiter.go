package ratelimit

import (
	"sync"
	"time"

	"github.com/MuxYang/ncmbot/logger"

	"golang.org/x/time/rate"
)

// 过期条目的保留时长与清扫周期都是间隔的若干倍
// 清扫只是为了限制内存，不影响限流语义
const staleFactor = 5

// Limiter 固定间隔限流器
// 同一限流键两次放行之间必须至少隔 interval；被拒绝的调用静默丢弃。
// perRequester 为 false 时所有请求共用一个全局键
type Limiter struct {
	mu           sync.Mutex
	interval     time.Duration
	perRequester bool
	entries      map[string]*entry
	done         chan struct{}
	closeOnce    sync.Once
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New 创建限流器并启动后台清扫
// 间隔必须为正，非法值回落到1秒，避免清扫定时器无法创建
func New(interval time.Duration, perRequester bool) *Limiter {
	if interval <= 0 {
		interval = time.Second
	}
	l := &Limiter{
		interval:     interval,
		perRequester: perRequester,
		entries:      make(map[string]*entry),
		done:         make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow 判断 requester 的本次调用是否放行
// 放行会无条件消耗额度；nil 限流器全部放行（未启用）
func (l *Limiter) Allow(requester string) bool {
	if l == nil {
		return true
	}
	return l.allowAt(requester, time.Now())
}

// allowAt 按指定时刻判定，测试用
func (l *Limiter) allowAt(requester string, now time.Time) bool {
	key := requester
	if !l.perRequester {
		key = ""
	}

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.entries[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.lim.AllowN(now, 1)
}

// sweep 周期清理长时间没出现的限流键
func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.interval * staleFactor)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			l.mu.Lock()
			before := len(l.entries)
			for key, e := range l.entries {
				if now.Sub(e.lastSeen) > l.interval*staleFactor {
					delete(l.entries, key)
				}
			}
			removed := before - len(l.entries)
			l.mu.Unlock()

			if removed > 0 {
				logger.Debug("[RateLimit] 清理过期限流键", logger.Int("removed", removed))
			}
		case <-l.done:
			return
		}
	}
}

// Close 停止后台清扫
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		close(l.done)
	})
}
