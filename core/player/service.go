package player

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MuxYang/ncmbot/cache"
	"github.com/MuxYang/ncmbot/core/audio"
	"github.com/MuxYang/ncmbot/core/errs"
	"github.com/MuxYang/ncmbot/core/fetch"
	"github.com/MuxYang/ncmbot/core/ratelimit"
	"github.com/MuxYang/ncmbot/core/session"
	"github.com/MuxYang/ncmbot/logger"
	"github.com/MuxYang/ncmbot/model"
)

// 输出格式
const (
	FormatFile  = "file"
	FormatVoice = "voice"
)

// Searcher 搜索接口，由网易云客户端实现
type Searcher interface {
	Search(ctx context.Context, keyword string, limit, offset int) ([]model.SearchCandidate, error)
}

// Acquirer 获取接口，由下载协调器实现
type Acquirer interface {
	Acquire(ctx context.Context, candidate model.SearchCandidate) (*fetch.Artifact, error)
}

// Delivery 投递给聊天端的音频内容
// 传输端不一定能访问本地路径，Path/URL/Base64 按需取用
type Delivery struct {
	Title  string `json:"title"`
	Path   string `json:"path,omitempty"`
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
	Format string `json:"format"` // file / voice
}

// Deliverer 投递协作者，由网关或HTTP层实现
type Deliverer interface {
	DeliverText(ctx context.Context, key session.Key, text string) error
	DeliverAudio(ctx context.Context, key session.Key, delivery Delivery) error
}

// Options 点歌服务配置
type Options struct {
	PageSize      int
	DefaultFormat string        // file / voice
	VoiceProfile  audio.Profile // 语音格式的转码参数
}

// Service 点歌服务：限流 → 搜索 → 选择 → 下载 → 投递 的总入口
type Service struct {
	searcher    Searcher
	acquirer    Acquirer
	searchCache *cache.SearchCache
	sessions    *session.Registry
	limiter     *ratelimit.Limiter
	transcoder  audio.Transcoder // 可为nil：语音格式退化为文件
	deliverer   Deliverer
	opts        Options
}

// NewService 创建点歌服务
func NewService(
	searcher Searcher,
	acquirer Acquirer,
	searchCache *cache.SearchCache,
	sessions *session.Registry,
	limiter *ratelimit.Limiter,
	transcoder audio.Transcoder,
	deliverer Deliverer,
	opts Options,
) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = FormatFile
	}
	return &Service{
		searcher:    searcher,
		acquirer:    acquirer,
		searchCache: searchCache,
		sessions:    sessions,
		limiter:     limiter,
		transcoder:  transcoder,
		deliverer:   deliverer,
		opts:        opts,
	}
}

// Request 处理一次点歌请求
// 触发限流时返回 ErrRateLimited，调用方应静默丢弃，不给用户任何提示
func (s *Service) Request(ctx context.Context, key session.Key, keyword, format string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.deliverer.DeliverText(ctx, key, "请输入要点的歌名")
	}

	if !s.limiter.Allow(key.String()) {
		logger.Debug("[Player] 触发限流", logger.String("requester", key.String()))
		return errs.ErrRateLimited
	}

	candidates, err := s.search(ctx, keyword)
	if err != nil {
		s.deliverer.DeliverText(ctx, key, "搜索失败，请稍后再试")
		return err
	}

	switch len(candidates) {
	case 0:
		return s.deliverer.DeliverText(ctx, key, "未找到相关歌曲")
	case 1:
		return s.fulfill(ctx, key, candidates[0], format)
	default:
		s.sessions.Open(key, candidates, format)
		return s.deliverer.DeliverText(ctx, key, formatCandidateList(candidates))
	}
}

// HandleReply 处理请求者的一条普通消息
// 返回 false 表示与点歌无关，交回上层继续处理
func (s *Service) HandleReply(ctx context.Context, key session.Key, text string) (bool, error) {
	result, chosen, format := s.sessions.HandleReply(key, text)
	switch result {
	case session.ReplyNotConsumed:
		return false, nil
	case session.ReplyCancelled:
		return true, s.deliverer.DeliverText(ctx, key, "已取消点歌")
	case session.ReplyChosen:
		return true, s.fulfill(ctx, key, *chosen, format)
	}
	return false, nil
}

// Shutdown 停止会话定时器和限流清扫
func (s *Service) Shutdown() {
	s.sessions.Shutdown()
	s.limiter.Close()
}

// search 带Redis缓存的搜索
func (s *Service) search(ctx context.Context, keyword string) ([]model.SearchCandidate, error) {
	if cached, ok := s.searchCache.Get(ctx, keyword, s.opts.PageSize, 0); ok {
		return cached, nil
	}

	candidates, err := s.searcher.Search(ctx, keyword, s.opts.PageSize, 0)
	if err != nil {
		return nil, err
	}

	s.searchCache.Put(ctx, keyword, s.opts.PageSize, 0, candidates)
	return candidates, nil
}

// fulfill 下载选中的歌并投递
func (s *Service) fulfill(ctx context.Context, key session.Key, candidate model.SearchCandidate, format string) error {
	artifact, err := s.acquirer.Acquire(ctx, candidate)
	if err != nil {
		if errors.Is(err, errs.ErrUnavailable) {
			return s.deliverer.DeliverText(ctx, key, fmt.Sprintf("《%s》暂时无法获取（%s）", candidate.Name, candidate.Fee))
		}
		s.deliverer.DeliverText(ctx, key, "获取歌曲失败，请稍后再试")
		return err
	}

	if format == "" {
		format = s.opts.DefaultFormat
	}

	path := artifact.Path
	var tempOutput string
	if format == FormatVoice {
		if s.transcoder == nil {
			// 没有转码器时语音功能不可用，退化为文件
			format = FormatFile
		} else {
			out, err := s.transcoder.Transcode(ctx, artifact.Path, s.opts.VoiceProfile)
			if err != nil {
				logger.Warn("[Player] 转码失败，退化为文件发送",
					logger.String("trackId", artifact.Track.ID),
					logger.ErrorField(err))
				format = FormatFile
			} else {
				tempOutput = out
				path = out
			}
		}
	}
	if tempOutput != "" {
		// 转码产物是临时文件，发送成败都要清掉
		defer os.Remove(tempOutput)
	}

	delivery := Delivery{
		Title:  fmt.Sprintf("%s - %s", candidate.Name, candidate.Artist),
		Path:   path,
		URL:    artifact.URL,
		Format: format,
	}
	return s.deliverer.DeliverAudio(ctx, key, delivery)
}

// EncodeFileBase64 把本地文件编码为base64串
// 传输端访问不到本地路径时用它内联发送
func EncodeFileBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// formatCandidateList 生成候选列表文案
func formatCandidateList(candidates []model.SearchCandidate) string {
	var b strings.Builder
	b.WriteString("找到以下歌曲，回复序号选择，回复0取消：\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s - %s", i+1, c.Name, c.Artist)
		if c.Album != "" {
			fmt.Fprintf(&b, " 《%s》", c.Album)
		}
		if c.Fee != model.FeeFree {
			fmt.Fprintf(&b, " [%s]", c.Fee)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
