package cmd

import (
	"fmt"
	"os"

	"github.com/MuxYang/ncmbot/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ncmbot",
	Short: "ncmbot 是一个网易云点歌机器人服务",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
