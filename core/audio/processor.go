package audio

import "context"

// Profile 转码目标参数
type Profile struct {
	Bitrate    string  // 如 "128k"
	SampleRate int     // 0 表示保持原采样率
	Channels   int     // 0 表示保持原声道数
	GainDB     float64 // 音量增益，0 表示不调整
}

// Transcoder 音频转码协作者
// 产出的文件归调用方所有，用完后不论发送成败都由调用方删除。
// 环境里没有可用实现时按"功能不可用"处理，不算错误
type Transcoder interface {
	Transcode(ctx context.Context, inputPath string, profile Profile) (string, error)
}
