package cmd

import (
	"fmt"
	"log"

	"github.com/MuxYang/ncmbot/cache"
	"github.com/MuxYang/ncmbot/config"
	"github.com/MuxYang/ncmbot/db"
	"github.com/MuxYang/ncmbot/model"
	"github.com/MuxYang/ncmbot/repository"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "缓存管理",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "查看缓存占用",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, store := openStore()
		defer db.CloseGormDB()

		total, err := store.TotalCachedBytes()
		if err != nil {
			log.Fatalf("统计失败: %v", err)
		}

		fmt.Printf("缓存目录: %s\n", store.Root())
		fmt.Printf("已用: %d 字节 / 预算: %d 字节 (%.1f%%)\n",
			total, cfg.CacheLimitBytes, float64(total)/float64(cfg.CacheLimitBytes)*100)
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "清空全部缓存",
	Run: func(cmd *cobra.Command, args []string) {
		_, store := openStore()
		defer db.CloseGormDB()

		// 预算设为0即淘汰所有条目
		if err := store.EvictUntilFits(0, 0); err != nil {
			log.Fatalf("清空失败: %v", err)
		}

		total, _ := store.TotalCachedBytes()
		fmt.Printf("清空完成，剩余 %d 字节\n", total)
	},
}

func openStore() (*config.Config, *cache.Store) {
	cfg := config.Load()

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}
	if err := db.AutoMigrateModels(&model.CachedTrack{}); err != nil {
		log.Fatalf("迁移数据表失败: %v", err)
	}

	store, err := cache.NewStore(repository.NewGormTrackRepository(nil), cfg.CacheDir)
	if err != nil {
		log.Fatalf("初始化缓存失败: %v", err)
	}
	return cfg, store
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}
