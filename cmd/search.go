package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/MuxYang/ncmbot/config"
	"github.com/MuxYang/ncmbot/core/netease"

	"github.com/spf13/cobra"
)

var (
	searchKeyword string
	searchLimit   int
	searchOffset  int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "命令行搜索歌曲",
	Long:  `搜索歌曲并交互式选择，打印选中歌曲的播放地址`,
	Run: func(cmd *cobra.Command, args []string) {
		if searchKeyword == "" {
			fmt.Println("请输入要搜索的歌曲名称")
			os.Exit(1)
		}

		cfg := config.Load()
		client := netease.NewClient(cfg.NeteaseCookie)

		fmt.Printf("正在搜索: %s\n", searchKeyword)
		candidates, err := client.Search(context.Background(), searchKeyword, searchLimit, searchOffset)
		if err != nil {
			log.Fatalf("搜索失败: %v", err)
		}

		if len(candidates) == 0 {
			fmt.Println("未找到相关歌曲")
			return
		}

		fmt.Printf("\n找到 %d 首歌曲:\n", len(candidates))
		for i, c := range candidates {
			fmt.Printf("%d. %s - %s [%s] (%s)\n", i+1, c.Name, c.Artist, c.Album, c.Fee)
		}

		var choice int
		fmt.Print("\n请选择要获取播放地址的歌曲编号: ")
		fmt.Scan(&choice)

		if choice < 1 || choice > len(candidates) {
			fmt.Println("无效的选择")
			return
		}

		selected := candidates[choice-1]
		loc, err := client.ResolveURL(context.Background(), selected.ID, cfg.Bitrate)
		if err != nil {
			log.Fatalf("获取播放地址失败: %v", err)
		}
		if loc == nil {
			fmt.Println("该歌曲暂时无法获取（可能需要会员或付费）")
			return
		}

		fmt.Printf("\n歌曲: %s\n", selected.Name)
		fmt.Printf("艺术家: %s\n", selected.Artist)
		fmt.Printf("码率: %d\n", loc.Bitrate)
		fmt.Printf("大小: %d 字节\n", loc.SizeBytes)
		fmt.Printf("播放地址: %s\n", loc.URL)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchKeyword, "keyword", "k", "", "要搜索的歌曲名称")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "返回结果数量")
	searchCmd.Flags().IntVarP(&searchOffset, "offset", "o", 0, "结果偏移量")
}
