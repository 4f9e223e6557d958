package repository

import (
	"errors"
	"fmt"

	"github.com/MuxYang/ncmbot/db"
	"github.com/MuxYang/ncmbot/model"

	"gorm.io/gorm"
)

// CachedTrackRepository 歌曲缓存元数据表的访问接口
// cache.Store 只依赖这个接口，测试时用内存实现替换
type CachedTrackRepository interface {
	// GetByID 按ID查询，未找到返回 (nil, nil)
	GetByID(id string) (*model.CachedTrack, error)

	// ListCached 返回所有 is_cached=true 的记录
	ListCached() ([]model.CachedTrack, error)

	// Upsert 按ID插入或整体更新
	Upsert(track *model.CachedTrack) error

	// ClearCacheFields 清空缓存相关字段（软删除，记录保留）
	ClearCacheFields(id string) error
}

// GormTrackRepository 基于 GORM 的实现
type GormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository 创建仓库实例，db 为 nil 时使用全局连接
func NewGormTrackRepository(gdb *gorm.DB) *GormTrackRepository {
	if gdb == nil {
		gdb = db.GormDB
	}
	return &GormTrackRepository{db: gdb}
}

// GetByID 按ID查询歌曲缓存记录
func (r *GormTrackRepository) GetByID(id string) (*model.CachedTrack, error) {
	var track model.CachedTrack
	err := r.db.Where("id = ?", id).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询缓存记录失败 (ID: %s): %w", id, err)
	}
	return &track, nil
}

// ListCached 返回所有已缓存的记录
func (r *GormTrackRepository) ListCached() ([]model.CachedTrack, error) {
	var tracks []model.CachedTrack
	if err := r.db.Where("is_cached = ?", true).Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("查询已缓存记录失败: %w", err)
	}
	return tracks, nil
}

// Upsert 按ID插入或更新记录
func (r *GormTrackRepository) Upsert(track *model.CachedTrack) error {
	var existing model.CachedTrack
	err := r.db.Where("id = ?", track.ID).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := r.db.Create(track).Error; err != nil {
				return fmt.Errorf("插入缓存记录失败 (ID: %s): %w", track.ID, err)
			}
			return nil
		}
		return fmt.Errorf("查询缓存记录失败 (ID: %s): %w", track.ID, err)
	}

	track.CreatedAt = existing.CreatedAt
	if err := r.db.Model(&model.CachedTrack{}).Where("id = ?", track.ID).
		Select("*").Omit("created_at").Updates(track).Error; err != nil {
		return fmt.Errorf("更新缓存记录失败 (ID: %s): %w", track.ID, err)
	}
	return nil
}

// ClearCacheFields 清空缓存字段，保留歌曲基本信息
func (r *GormTrackRepository) ClearCacheFields(id string) error {
	err := r.db.Model(&model.CachedTrack{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_cached":       false,
			"blob_path":       "",
			"size_bytes":      0,
			"cached_at_epoch": 0,
		}).Error
	if err != nil {
		return fmt.Errorf("清除缓存字段失败 (ID: %s): %w", id, err)
	}
	return nil
}
