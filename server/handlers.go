package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MuxYang/ncmbot/cache"
	"github.com/MuxYang/ncmbot/config"
	"github.com/MuxYang/ncmbot/core/errs"
	"github.com/MuxYang/ncmbot/core/fetch"
	"github.com/MuxYang/ncmbot/core/netease"
	"github.com/MuxYang/ncmbot/logger"
	"github.com/MuxYang/ncmbot/model"
)

// APIHandler 处理HTTP API请求
type APIHandler struct {
	client      *netease.Client
	coordinator *fetch.Coordinator
	store       *cache.Store
	cfg         *config.Config
}

// NewAPIHandler 创建API处理器
func NewAPIHandler(client *netease.Client, coordinator *fetch.Coordinator, store *cache.Store, cfg *config.Config) *APIHandler {
	return &APIHandler{
		client:      client,
		coordinator: coordinator,
		store:       store,
		cfg:         cfg,
	}
}

type searchResponse struct {
	Success bool                    `json:"success"`
	Data    []model.SearchCandidate `json:"data,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// HandleSearch 处理搜索请求
func (h *APIHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, searchResponse{Success: false, Error: "请提供搜索关键词"})
		return
	}

	limit := h.cfg.PageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	candidates, err := h.client.Search(r.Context(), query, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, searchResponse{Success: false, Error: "搜索失败，请稍后再试"})
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Success: true, Data: candidates})
}

type fetchRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Artist string `json:"artist"`
}

type fetchResponse struct {
	Success   bool   `json:"success"`
	Path      string `json:"path,omitempty"`
	URL       string `json:"url,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	FromCache bool   `json:"fromCache"`
	Error     string `json:"error,omitempty"`
}

// HandleFetch 下载（或从缓存取出）指定歌曲
func (h *APIHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, fetchResponse{Success: false, Error: "请求体格式错误"})
		return
	}

	artifact, err := h.coordinator.Acquire(r.Context(), model.SearchCandidate{
		ID:     req.ID,
		Name:   req.Name,
		Artist: req.Artist,
	})
	if err != nil {
		var verr *errs.ValidationError
		switch {
		case errors.Is(err, errs.ErrUnavailable):
			writeJSON(w, http.StatusOK, fetchResponse{Success: false, Error: "歌曲暂时无法获取"})
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, fetchResponse{Success: false, Error: verr.Error()})
		default:
			logger.Error("[API] 获取歌曲失败", logger.String("trackId", req.ID), logger.ErrorField(err))
			writeJSON(w, http.StatusBadGateway, fetchResponse{Success: false, Error: "获取失败，请稍后再试"})
		}
		return
	}

	writeJSON(w, http.StatusOK, fetchResponse{
		Success:   true,
		Path:      artifact.Path,
		URL:       artifact.URL,
		SizeBytes: artifact.Track.SizeBytes,
		FromCache: artifact.FromCache,
	})
}

type cacheStatsResponse struct {
	TotalBytes  int64 `json:"totalBytes"`
	BudgetBytes int64 `json:"budgetBytes"`
}

// HandleCacheStats 缓存占用统计
func (h *APIHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	total, err := h.store.TotalCachedBytes()
	if err != nil {
		http.Error(w, "统计失败", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cacheStatsResponse{
		TotalBytes:  total,
		BudgetBytes: h.cfg.CacheLimitBytes,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("编码响应失败", logger.ErrorField(err))
	}
}
