package ratelimit

import (
	"testing"
	"time"
)

func TestFixedIntervalGate(t *testing.T) {
	l := New(2*time.Second, true)
	defer l.Close()

	base := time.Now()

	if !l.allowAt("u1", base) {
		t.Error("t=0 首次调用应放行")
	}
	if l.allowAt("u1", base.Add(1*time.Second)) {
		t.Error("t=1 间隔不足应拒绝")
	}
	// 被拒绝的调用不重置计时，t=2.5 距上次放行已超过间隔
	if !l.allowAt("u1", base.Add(2500*time.Millisecond)) {
		t.Error("t=2.5 应放行")
	}
}

func TestPerRequesterIsolation(t *testing.T) {
	l := New(2*time.Second, true)
	defer l.Close()

	base := time.Now()
	if !l.allowAt("u1", base) {
		t.Error("u1 应放行")
	}
	if !l.allowAt("u2", base) {
		t.Error("不同请求者互不影响")
	}
}

func TestGlobalScope(t *testing.T) {
	l := New(2*time.Second, false)
	defer l.Close()

	base := time.Now()
	if !l.allowAt("u1", base) {
		t.Error("首次调用应放行")
	}
	// 全局模式下不同请求者共用同一个键
	if l.allowAt("u2", base.Add(time.Second)) {
		t.Error("全局模式下应被拒绝")
	}
}

func TestNonPositiveIntervalClamped(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		l := New(interval, true)

		base := time.Now()
		if !l.allowAt("u1", base) {
			t.Errorf("interval=%v: 首次调用应放行", interval)
		}
		// 回落到1秒间隔，紧接着的第二次调用要被拒绝
		if l.allowAt("u1", base.Add(100*time.Millisecond)) {
			t.Errorf("interval=%v: 回落间隔内应拒绝", interval)
		}
		l.Close()
	}
}

func TestNilLimiterAllowsAll(t *testing.T) {
	var l *Limiter
	if !l.Allow("anyone") {
		t.Error("未启用限流时应全部放行")
	}
	l.Close() // 不应panic
}

func TestSweepRemovesStaleEntries(t *testing.T) {
	l := New(10*time.Millisecond, true)
	defer l.Close()

	l.Allow("u1")
	l.Allow("u2")

	// 等足够多个清扫周期
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		n := len(l.entries)
		l.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("过期的限流键应被清理")
}
