package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// downloadTo 把远端资源流式写到本地路径，返回写入的字节数
// 任何失败都会清掉写了一半的文件
func downloadTo(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("创建下载请求失败: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("下载请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("下载失败，状态码: %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("创建文件失败: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("保存文件失败: %w", err)
	}

	return written, nil
}
