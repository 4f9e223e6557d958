package session

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MuxYang/ncmbot/logger"
	"github.com/MuxYang/ncmbot/model"
)

// Key 请求者身份：平台+频道+用户
// 限流和点歌会话都按这个三元组隔离
type Key struct {
	Platform string
	Channel  string
	User     string
}

// String 拼接为限流/日志用的键
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Platform, k.Channel, k.User)
}

// Session 一次待选择的候选列表
type Session struct {
	Candidates []model.SearchCandidate
	ExpiresAt  time.Time
	Format     string // 本次点歌强制的输出格式，为空用默认
	timer      *time.Timer
}

// ReplyResult 回复的处理结果
type ReplyResult int

const (
	// ReplyNotConsumed 回复与会话无关（非数字或超出范围），继续交给其他处理
	ReplyNotConsumed ReplyResult = iota
	// ReplyCancelled 用户回复0，主动取消
	ReplyCancelled
	// ReplyChosen 选中了某个候选
	ReplyChosen
)

// Registry 会话注册表，唯一持有所有会话和定时器
// 每个请求者同时最多一个会话；新搜索会顶掉旧会话
type Registry struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	timeout  time.Duration
}

// NewRegistry 创建会话注册表
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		sessions: make(map[Key]*Session),
		timeout:  timeout,
	}
}

// Open 为请求者打开新会话，已有会话被静默替换（旧定时器取消）
func (r *Registry) Open(key Key, candidates []model.SearchCandidate, format string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[key]; ok {
		old.timer.Stop()
		logger.Debug("[Session] 替换已有会话", logger.String("requester", key.String()))
	}

	s := &Session{
		Candidates: candidates,
		ExpiresAt:  time.Now().Add(r.timeout),
		Format:     format,
	}
	s.timer = time.AfterFunc(r.timeout, func() {
		r.expire(key, s)
	})
	r.sessions[key] = s
}

// expire 定时器触发的超时清理
// 对比指针，避免误删替换后的新会话
func (r *Registry) expire(key Key, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[key]; ok && cur == s {
		delete(r.sessions, key)
		logger.Info("[Session] 会话超时", logger.String("requester", key.String()))
	}
}

// HandleReply 处理请求者的一条输入
// 回复0取消；1..N选中对应候选；其余输入不消费，会话保持等待。
// 被消费的回复（取消或选中）都会终结会话并取消定时器
func (r *Registry) HandleReply(key Key, text string) (ReplyResult, *model.SearchCandidate, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return ReplyNotConsumed, nil, ""
	}

	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return ReplyNotConsumed, nil, ""
	}

	if n == 0 {
		s.timer.Stop()
		delete(r.sessions, key)
		logger.Info("[Session] 用户取消", logger.String("requester", key.String()))
		return ReplyCancelled, nil, ""
	}

	if n < 1 || n > len(s.Candidates) {
		// 超出范围不消费，会话继续等
		return ReplyNotConsumed, nil, ""
	}

	s.timer.Stop()
	delete(r.sessions, key)
	chosen := s.Candidates[n-1]
	return ReplyChosen, &chosen, s.Format
}

// Has 请求者是否有等待中的会话
func (r *Registry) Has(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[key]
	return ok
}

// Shutdown 取消所有定时器并清空会话
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, s := range r.sessions {
		s.timer.Stop()
		delete(r.sessions, key)
	}
}
