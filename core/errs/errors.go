package errs

import (
	"errors"
	"fmt"
)

// 统一的错误分类
// 上层根据类型决定给用户的提示和是否继续
var (
	// ErrUnavailable 歌曲存在但当前凭证无法解析播放地址（会员/付费等）
	ErrUnavailable = errors.New("歌曲暂时无法获取")

	// ErrRateLimited 触发频率限制，调用方应静默丢弃本次请求
	ErrRateLimited = errors.New("请求过于频繁")
)

// ProtocolError 协议错误：响应外层JSON缺失或格式不符合预期
type ProtocolError struct {
	Msg string
	Raw string // 原始响应片段，便于排查
}

func (e *ProtocolError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("协议错误: %s (原始响应: %s)", e.Msg, e.Raw)
	}
	return fmt.Sprintf("协议错误: %s", e.Msg)
}

// RemoteError 远端拒绝或传输失败
type RemoteError struct {
	Code int // 远端状态码，0表示不可用
	Msg  string
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("远端服务错误: %s (code: %d)", e.Msg, e.Code)
	}
	return fmt.Sprintf("远端服务错误: %s", e.Msg)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ValidationError 不安全或非法的标识符
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("非法的%s: %q", e.Field, e.Value)
}

// CacheIOError 缓存文件读写删除失败
type CacheIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("缓存%s失败 (%s): %v", e.Op, e.Path, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }

// FetchError 下载流程失败，包装解析或下载阶段的底层错误
type FetchError struct {
	TrackID string
	Stage   string // resolve / download / commit
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("获取歌曲失败 (ID: %s, 阶段: %s): %v", e.TrackID, e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
