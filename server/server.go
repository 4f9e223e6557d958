package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MuxYang/ncmbot/cache"
	"github.com/MuxYang/ncmbot/config"
	"github.com/MuxYang/ncmbot/core/audio"
	"github.com/MuxYang/ncmbot/core/fetch"
	"github.com/MuxYang/ncmbot/core/netease"
	"github.com/MuxYang/ncmbot/core/player"
	"github.com/MuxYang/ncmbot/core/ratelimit"
	"github.com/MuxYang/ncmbot/core/session"
	"github.com/MuxYang/ncmbot/db"
	"github.com/MuxYang/ncmbot/logger"
	"github.com/MuxYang/ncmbot/model"
	"github.com/MuxYang/ncmbot/repository"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
	})

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("连接数据库失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.CachedTrack{}); err != nil {
		logger.Fatal("迁移数据表失败", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		// Redis只是搜索缓存，连不上不阻断启动
		logger.Warn("连接Redis失败，搜索缓存不可用", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	repo := repository.NewGormTrackRepository(nil)
	store, err := cache.NewStore(repo, cfg.CacheDir)
	if err != nil {
		logger.Fatal("初始化缓存目录失败", logger.ErrorField(err))
	}

	var watcher *cache.Watcher
	if cfg.WatchCacheDir {
		watcher, err = cache.NewWatcher(store)
		if err != nil {
			logger.Warn("缓存目录监听启动失败", logger.ErrorField(err))
		} else {
			defer watcher.Close()
		}
	}

	client := netease.NewClient(cfg.NeteaseCookie)
	if !client.HasCredentials() {
		logger.Warn("未配置网易云凭证，部分歌曲将无法获取")
	}

	coordinator := fetch.NewCoordinator(store, client, cfg.Bitrate, cfg.CacheLimitBytes)
	sessions := session.NewRegistry(time.Duration(cfg.SelectTimeoutSec) * time.Second)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.New(
			time.Duration(cfg.RateLimitInterval)*time.Second,
			cfg.RateLimitScope == config.RateLimitScopeUser,
		)
	}

	var transcoder audio.Transcoder
	if ff := audio.NewFFmpegTranscoder(cfg.FFmpegPath); ff.Available() {
		transcoder = ff
	} else {
		logger.Warn("未找到ffmpeg，语音格式不可用", logger.String("path", cfg.FFmpegPath))
	}

	gateway := NewGateway(cfg.GatewaySecret)
	svc := player.NewService(
		client,
		coordinator,
		cache.NewSearchCache(db.RedisClient),
		sessions,
		limiter,
		transcoder,
		gateway,
		player.Options{
			PageSize:      cfg.PageSize,
			DefaultFormat: cfg.OutputFormat,
			VoiceProfile:  audio.Profile{Bitrate: "128k", SampleRate: 24000, Channels: 1},
		},
	)
	defer svc.Shutdown()
	gateway.Bind(svc)

	apiHandler := NewAPIHandler(client, coordinator, store, cfg)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/api/search", apiHandler.HandleSearch).Methods(http.MethodGet)
	router.HandleFunc("/api/fetch", apiHandler.HandleFetch).Methods(http.MethodPost)
	router.HandleFunc("/api/cache/stats", apiHandler.HandleCacheStats).Methods(http.MethodGet)
	router.HandleFunc("/ws/gateway", gateway.HandleWS)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("服务启动", logger.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务异常退出", logger.ErrorField(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，开始关闭")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP服务关闭失败", logger.ErrorField(err))
	}
}

// corsMiddleware 跨域中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
