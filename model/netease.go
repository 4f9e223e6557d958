package model

// FeeTier 网易云歌曲的收费类型
type FeeTier int

const (
	FeeFree         FeeTier = 0 // 免费
	FeeSubscription FeeTier = 1 // 会员
	FeePurchase     FeeTier = 4 // 付费专辑
	FeePromotional  FeeTier = 8 // 免费低音质
)

// String 返回收费类型的展示文案
func (f FeeTier) String() string {
	switch f {
	case FeeFree:
		return "免费"
	case FeeSubscription:
		return "会员"
	case FeePurchase:
		return "付费"
	case FeePromotional:
		return "免费(低音质)"
	default:
		return "未知"
	}
}

// SearchCandidate 搜索结果中的一个候选项，仅存在于内存，不落库
type SearchCandidate struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	DurationMs int     `json:"durationMs"`
	Fee        FeeTier `json:"fee"`
}

// PlaybackLocation 解析出的播放地址信息
type PlaybackLocation struct {
	URL       string `json:"url"`
	Bitrate   int    `json:"br"`
	SizeBytes int64  `json:"size"`
	Type      string `json:"type"` // 文件扩展名，如 mp3/flac
	MD5       string `json:"md5"`
}
