package netease

import (
	"context"
	"strconv"
	"strings"

	"github.com/MuxYang/ncmbot/logger"
	"github.com/MuxYang/ncmbot/model"
)

// Search 按关键词搜索歌曲
// 远端返回成功但没有结果时得到空切片，不算错误
func (c *Client) Search(ctx context.Context, keyword string, limit, offset int) ([]model.SearchCandidate, error) {
	payload := map[string]string{
		"s":      keyword,
		"type":   "1", // 单曲
		"limit":  strconv.Itoa(limit),
		"offset": strconv.Itoa(offset),
		"total":  "true",
	}

	var result struct {
		Result struct {
			Songs []struct {
				ID      int64  `json:"id"`
				Name    string `json:"name"`
				Artists []struct {
					ID   int64  `json:"id"`
					Name string `json:"name"`
				} `json:"ar"`
				Album struct {
					ID   int64  `json:"id"`
					Name string `json:"name"`
				} `json:"al"`
				Duration int `json:"dt"`
				Fee      int `json:"fee"`
			} `json:"songs"`
			SongCount int `json:"songCount"`
		} `json:"result"`
	}

	if err := c.post(ctx, "cloudsearch/get/web", payload, &result); err != nil {
		logger.Error("[Search] 搜索失败",
			logger.String("keyword", keyword),
			logger.ErrorField(err))
		return nil, err
	}

	candidates := make([]model.SearchCandidate, 0, len(result.Result.Songs))
	for _, song := range result.Result.Songs {
		artistNames := make([]string, len(song.Artists))
		for i, artist := range song.Artists {
			artistNames[i] = artist.Name
		}

		candidates = append(candidates, model.SearchCandidate{
			ID:         strconv.FormatInt(song.ID, 10),
			Name:       song.Name,
			Artist:     strings.Join(artistNames, "/"),
			Album:      song.Album.Name,
			DurationMs: song.Duration,
			Fee:        model.FeeTier(song.Fee),
		})
	}

	logger.Info("[Search] 搜索完成",
		logger.String("keyword", keyword),
		logger.Int("count", len(candidates)))
	return candidates, nil
}
