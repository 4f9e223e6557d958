package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/MuxYang/ncmbot/core/errs"
	"github.com/MuxYang/ncmbot/logger"
	"github.com/MuxYang/ncmbot/model"
	"github.com/MuxYang/ncmbot/repository"
)

// Store 本地歌曲缓存：磁盘上的音频文件 + 数据库里的元数据
// 按总字节预算做 LRU 淘汰（cached_at_epoch 最旧的先出）
type Store struct {
	repo repository.CachedTrackRepository
	root string // 缓存根目录（绝对路径）
}

// NewStore 创建缓存存储，目录不存在时自动创建
func NewStore(repo repository.CachedTrackRepository, root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("解析缓存目录失败: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, &errs.CacheIOError{Op: "创建目录", Path: abs, Err: err}
	}
	return &Store{repo: repo, root: abs}, nil
}

// Root 返回缓存根目录
func (s *Store) Root() string {
	return s.root
}

// Lookup 按ID查询缓存元数据，未找到返回 (nil, nil)
func (s *Store) Lookup(id string) (*model.CachedTrack, error) {
	return s.repo.GetByID(id)
}

// TotalCachedBytes 统计已缓存的总字节数
// 每次全表扫描；淘汰本来就要扫全表，这里不单独维护计数器
func (s *Store) TotalCachedBytes() (int64, error) {
	tracks, err := s.repo.ListCached()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, t := range tracks {
		total += t.SizeBytes
	}
	return total, nil
}

// EvictUntilFits 为即将写入的 incoming 字节腾出空间
// 超预算时按 cached_at_epoch 从旧到新逐条淘汰：删文件、清元数据。
// 单条文件删除失败只记日志跳过，不中断整个淘汰过程；
// 能淘汰的都淘汰完仍不够时也正常返回，由写入方自己失败
func (s *Store) EvictUntilFits(incoming, budget int64) error {
	tracks, err := s.repo.ListCached()
	if err != nil {
		return err
	}

	var total int64
	for _, t := range tracks {
		total += t.SizeBytes
	}
	if total+incoming <= budget {
		return nil
	}

	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].CachedAtEpoch < tracks[j].CachedAtEpoch
	})

	var freed int64
	for _, t := range tracks {
		if total+incoming-freed <= budget {
			break
		}

		if err := os.Remove(t.BlobPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("[Cache] 淘汰时删除文件失败，跳过该条",
				logger.String("trackId", t.ID),
				logger.String("path", t.BlobPath),
				logger.ErrorField(err))
			continue
		}

		if err := s.repo.ClearCacheFields(t.ID); err != nil {
			logger.Warn("[Cache] 淘汰时清除元数据失败，跳过该条",
				logger.String("trackId", t.ID),
				logger.ErrorField(err))
			continue
		}

		freed += t.SizeBytes
		logger.Info("[Cache] 已淘汰",
			logger.String("trackId", t.ID),
			logger.Int64("sizeBytes", t.SizeBytes))
	}

	return nil
}

// RecordDownload 下载完成后登记元数据（按ID插入或更新）
func (s *Store) RecordDownload(track *model.CachedTrack) error {
	if track.CachedAtEpoch == 0 {
		track.CachedAtEpoch = time.Now().Unix()
	}
	track.IsCached = true
	return s.repo.Upsert(track)
}

// VerifyAndMaybeInvalidate 命中后校验文件是否真的还在
// 文件已被外部删除时清掉缓存字段并按未命中处理，使元数据和磁盘重新一致
func (s *Store) VerifyAndMaybeInvalidate(track *model.CachedTrack) (bool, error) {
	if track == nil || !track.IsCached || track.BlobPath == "" {
		return false, nil
	}

	if _, err := os.Stat(track.BlobPath); err == nil {
		return true, nil
	}

	logger.Warn("[Cache] 缓存文件丢失，标记失效",
		logger.String("trackId", track.ID),
		logger.String("path", track.BlobPath))

	if err := s.repo.ClearCacheFields(track.ID); err != nil {
		return false, err
	}
	track.IsCached = false
	track.BlobPath = ""
	return false, nil
}
