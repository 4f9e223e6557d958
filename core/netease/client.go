package netease

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MuxYang/ncmbot/core/errs"
	"github.com/MuxYang/ncmbot/core/weapi"
	"github.com/MuxYang/ncmbot/logger"
)

const defaultBaseURL = "https://music.163.com"

// Client 网易云音乐API客户端
// 凭证以cookie形式附在每次请求上；没有凭证也能工作，只是部分歌曲解析不到播放地址
type Client struct {
	baseURL    string
	httpClient *http.Client
	cookies    []*http.Cookie
}

// NewClient 创建新的API客户端
// credential 为空或解析失败时进入降级模式（无凭证）
func NewClient(credential string) *Client {
	cookies := ParseCredentials(credential)
	return &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
		cookies: cookies,
	}
}

// SetBaseURL 设置API基础URL（测试用）
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// HasCredentials 是否带有登录凭证
func (c *Client) HasCredentials() bool {
	return len(c.cookies) > 0
}

// post 发送一次weapi加密请求并解析响应
func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	form, err := weapi.Encode(payload)
	if err != nil {
		return fmt.Errorf("加密请求参数失败: %w", err)
	}

	url := fmt.Sprintf("%s/weapi/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", defaultBaseURL)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	// os=pc 确保返回正常码率的地址
	req.AddCookie(&http.Cookie{Name: "os", Value: "pc"})
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errs.RemoteError{Msg: "请求失败", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &errs.RemoteError{Code: resp.StatusCode, Msg: "HTTP状态码异常"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.RemoteError{Msg: "读取响应失败", Err: err}
	}

	return weapi.Decode(body, out)
}

// logDegraded 凭证解析失败时的统一提示
func logDegraded(raw string, reason string) {
	logger.Warn("[Netease] 凭证解析失败，进入无凭证模式",
		logger.String("reason", reason),
		logger.Int("rawLen", len(raw)))
}
