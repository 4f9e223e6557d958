package fetch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MuxYang/ncmbot/cache"
	"github.com/MuxYang/ncmbot/core/errs"
	"github.com/MuxYang/ncmbot/logger"
	"github.com/MuxYang/ncmbot/model"

	"golang.org/x/sync/singleflight"
)

// Resolver 播放地址解析接口，由网易云客户端实现
type Resolver interface {
	ResolveURL(ctx context.Context, trackID string, bitrate int) (*model.PlaybackLocation, error)
}

// Artifact 一次获取的结果：本地文件与元数据
type Artifact struct {
	Track     model.CachedTrack
	Path      string
	URL       string // 远端播放地址，投递方可能直接用它
	FromCache bool
}

// Coordinator 下载协调器
// 命中缓存直接返回；未命中时同一首歌的并发请求合并为一次下载，
// 后到的调用方阻塞等待首个下载完成并共享结果
type Coordinator struct {
	store    *cache.Store
	resolver Resolver
	bitrate  int
	budget   int64
	group    singleflight.Group
}

// NewCoordinator 创建下载协调器
func NewCoordinator(store *cache.Store, resolver Resolver, bitrate int, budget int64) *Coordinator {
	return &Coordinator{
		store:    store,
		resolver: resolver,
		bitrate:  bitrate,
		budget:   budget,
	}
}

// Acquire 获取一首歌的可播放文件
// 失败语义：解析不到地址返回 ErrUnavailable；非法ID返回 ValidationError；
// 网络或磁盘失败包装为 FetchError。本层不做重试
func (c *Coordinator) Acquire(ctx context.Context, candidate model.SearchCandidate) (*Artifact, error) {
	id, err := sanitizeID(candidate.ID)
	if err != nil {
		return nil, err
	}

	if artifact, ok := c.cachedArtifact(id); ok {
		logger.Info("[Fetch] 缓存命中", logger.String("trackId", id))
		return artifact, nil
	}

	// singleflight 保证同一ID任意时刻至多一个下载在跑
	v, err, shared := c.group.Do(id, func() (interface{}, error) {
		// 排队期间前一个下载可能已经完成，进来先再查一次
		if artifact, ok := c.cachedArtifact(id); ok {
			return artifact, nil
		}
		// 下载结果由所有等待者共享，不能随发起方的请求一起取消；
		// 一旦开始就跑到完成或失败
		return c.download(context.WithoutCancel(ctx), id, candidate)
	})
	if err != nil {
		return nil, err
	}

	artifact := v.(*Artifact)
	if shared {
		logger.Info("[Fetch] 并发请求共享下载结果", logger.String("trackId", id))
	}
	return artifact, nil
}

// cachedArtifact 查缓存并校验文件，命中返回结果
func (c *Coordinator) cachedArtifact(id string) (*Artifact, bool) {
	track, err := c.store.Lookup(id)
	if err != nil || track == nil {
		return nil, false
	}

	hit, err := c.store.VerifyAndMaybeInvalidate(track)
	if err != nil || !hit {
		return nil, false
	}

	return &Artifact{
		Track:     *track,
		Path:      track.BlobPath,
		URL:       track.ResolvedURL,
		FromCache: true,
	}, true
}

// download 未命中时的完整下载流程：解析 → 腾空间 → 落盘 → 登记
func (c *Coordinator) download(ctx context.Context, id string, candidate model.SearchCandidate) (*Artifact, error) {
	loc, err := c.resolver.ResolveURL(ctx, id, c.bitrate)
	if err != nil {
		return nil, &errs.FetchError{TrackID: id, Stage: "resolve", Err: err}
	}
	if loc == nil {
		return nil, errs.ErrUnavailable
	}

	path, err := c.blobPath(id, loc.Type)
	if err != nil {
		return nil, err
	}

	// 按远端报告的大小先腾出空间，再开始写
	if err := c.store.EvictUntilFits(loc.SizeBytes, c.budget); err != nil {
		return nil, &errs.FetchError{TrackID: id, Stage: "evict", Err: err}
	}

	size, err := downloadTo(ctx, loc.URL, path)
	if err != nil {
		return nil, &errs.FetchError{TrackID: id, Stage: "download", Err: err}
	}

	track := &model.CachedTrack{
		ID:          id,
		Name:        candidate.Name,
		Artist:      candidate.Artist,
		ResolvedURL: loc.URL,
		BlobPath:    path,
		SizeBytes:   size,
		Bitrate:     loc.Bitrate,
	}
	if err := c.store.RecordDownload(track); err != nil {
		return nil, &errs.FetchError{TrackID: id, Stage: "commit", Err: err}
	}

	logger.Info("[Fetch] 下载完成",
		logger.String("trackId", id),
		logger.Int64("sizeBytes", size))

	return &Artifact{Track: *track, Path: path, URL: loc.URL}, nil
}

// blobPath 由歌曲ID推导缓存文件路径，并确认没有越出缓存根目录
func (c *Coordinator) blobPath(id, ext string) (string, error) {
	ext = sanitizeExt(ext)
	path := filepath.Join(c.store.Root(), id+"."+ext)

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("解析缓存路径失败: %w", err)
	}
	if !strings.HasPrefix(abs, c.store.Root()+string(filepath.Separator)) {
		return "", &errs.ValidationError{Field: "缓存路径", Value: abs}
	}
	return abs, nil
}

// sanitizeID 歌曲ID只允许字母数字，其他一律拒绝，不做静默纠正
func sanitizeID(id string) (string, error) {
	if id == "" {
		return "", &errs.ValidationError{Field: "歌曲ID", Value: id}
	}
	for _, r := range id {
		if !isAlnum(r) {
			return "", &errs.ValidationError{Field: "歌曲ID", Value: id}
		}
	}
	return id, nil
}

// sanitizeExt 扩展名同样只留字母数字，空值回落到mp3
func sanitizeExt(ext string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(ext) {
		if isAlnum(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "mp3"
	}
	return b.String()
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
