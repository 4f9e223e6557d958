package model

import "time"

// CachedTrack 已下载歌曲的元数据记录
// IsCached 为 true 时 BlobPath 必须非空；文件实际是否存在由调用方在
// 命中时校验（见 cache.Store.VerifyAndMaybeInvalidate）。
// 淘汰时只清空缓存相关字段，记录本身不删除。
type CachedTrack struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	Name          string    `gorm:"size:255" json:"name"`
	Artist        string    `gorm:"size:255" json:"artist"`
	ResolvedURL   string    `gorm:"size:1024" json:"resolvedUrl"` // 最近一次解析到的播放地址，仅供参考
	IsCached      bool      `gorm:"index" json:"isCached"`
	BlobPath      string    `gorm:"size:512" json:"blobPath,omitempty"`
	SizeBytes     int64     `json:"sizeBytes"`
	CachedAtEpoch int64     `gorm:"index" json:"cachedAtEpoch"`
	Bitrate       int       `json:"bitrate"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (CachedTrack) TableName() string {
	return "cached_track"
}
