package netease

import (
	"context"
	"fmt"
	"strconv"

	"github.com/MuxYang/ncmbot/logger"
	"github.com/MuxYang/ncmbot/model"
)

// ResolveURL 解析歌曲的播放地址
// 返回 (nil, nil) 表示歌曲存在但当前无法播放（无版权或凭证不够），
// 调用方不应把这种情况当作故障处理
func (c *Client) ResolveURL(ctx context.Context, trackID string, bitrate int) (*model.PlaybackLocation, error) {
	payload := map[string]string{
		"ids":        fmt.Sprintf("[%s]", trackID),
		"br":         strconv.Itoa(bitrate),
		"csrf_token": "",
	}

	var result struct {
		Data []struct {
			ID      int64  `json:"id"`
			URL     string `json:"url"`
			Bitrate int    `json:"br"`
			Size    int64  `json:"size"`
			Type    string `json:"type"`
			MD5     string `json:"md5"`
			Code    int    `json:"code"`
		} `json:"data"`
	}

	if err := c.post(ctx, "song/enhance/player/url", payload, &result); err != nil {
		logger.Error("[ResolveURL] 解析播放地址失败",
			logger.String("trackId", trackID),
			logger.ErrorField(err))
		return nil, err
	}

	if len(result.Data) == 0 || result.Data[0].URL == "" || result.Data[0].Code != 200 {
		logger.Info("[ResolveURL] 歌曲不可用",
			logger.String("trackId", trackID),
			logger.Bool("hasCredentials", c.HasCredentials()))
		return nil, nil
	}

	item := result.Data[0]
	return &model.PlaybackLocation{
		URL:       item.URL,
		Bitrate:   item.Bitrate,
		SizeBytes: item.Size,
		Type:      item.Type,
		MD5:       item.MD5,
	}, nil
}
