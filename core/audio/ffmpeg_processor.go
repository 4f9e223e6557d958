package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/MuxYang/ncmbot/logger"

	"github.com/google/uuid"
)

// FFmpegTranscoder 基于 ffmpeg 的 Transcoder 实现
type FFmpegTranscoder struct {
	ffmpegPath string
}

// NewFFmpegTranscoder 创建转码器
func NewFFmpegTranscoder(ffmpegPath string) *FFmpegTranscoder {
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath}
}

// Available 检查 ffmpeg 是否可执行
func (p *FFmpegTranscoder) Available() bool {
	_, err := exec.LookPath(p.ffmpegPath)
	return err == nil
}

// Transcode 按目标参数转码，输出到临时文件并返回路径
// 输出文件由调用方负责删除
func (p *FFmpegTranscoder) Transcode(ctx context.Context, inputPath string, profile Profile) (string, error) {
	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("ncmbot-%s.mp3", uuid.NewString()))

	args := []string{"-i", inputPath}
	if profile.Bitrate != "" {
		args = append(args, "-b:a", profile.Bitrate)
	}
	if profile.SampleRate > 0 {
		args = append(args, "-ar", fmt.Sprintf("%d", profile.SampleRate))
	}
	if profile.Channels > 0 {
		args = append(args, "-ac", fmt.Sprintf("%d", profile.Channels))
	}
	if profile.GainDB != 0 {
		args = append(args, "-af", fmt.Sprintf("volume=%gdB", profile.GainDB))
	}
	args = append(args, "-y", outPath)

	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("[Transcode] 执行ffmpeg",
		logger.String("input", inputPath),
		logger.String("output", outPath))

	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("ffmpeg转码失败: %w\n%s", err, stderr.String())
	}

	return outPath, nil
}
