package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/MuxYang/ncmbot/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发网关接入令牌",
	Long:  `用配置的 GATEWAY_SECRET 签发一个HS256令牌，平台适配器连接网关时携带`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if cfg.GatewaySecret == "" {
			log.Fatal("未配置 GATEWAY_SECRET，无法签发令牌")
		}

		now := time.Now()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": tokenSubject,
			"iat": now.Unix(),
			"exp": now.Add(tokenTTL).Unix(),
		})

		signed, err := token.SignedString([]byte(cfg.GatewaySecret))
		if err != nil {
			log.Fatalf("签发失败: %v", err)
		}
		fmt.Println(signed)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "adapter", "令牌主体（适配器名称）")
	tokenCmd.Flags().DurationVarP(&tokenTTL, "ttl", "t", 365*24*time.Hour, "令牌有效期")
}
