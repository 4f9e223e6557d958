package cmd

import (
	"github.com/MuxYang/ncmbot/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动点歌服务",
	Long:  `启动HTTP API和聊天网关，对外提供搜索、下载和点歌能力`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
