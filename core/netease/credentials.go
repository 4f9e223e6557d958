package netease

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ParseCredentials 解析凭证串为cookie列表
// 支持三种形式：
//  1. JSON数组: [{"name":"MUSIC_U","value":"..."}]
//  2. JSON对象: {"MUSIC_U":"..."}
//  3. cookie串: "MUSIC_U=...; __csrf=..."
//
// 解析失败只记录日志并返回空列表（降级模式），不阻断启动
func ParseCredentials(raw string) []*http.Cookie {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var pairs []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
			logDegraded(raw, "JSON数组格式错误")
			return nil
		}
		cookies := make([]*http.Cookie, 0, len(pairs))
		for _, p := range pairs {
			if p.Name == "" {
				continue
			}
			cookies = append(cookies, &http.Cookie{Name: p.Name, Value: p.Value})
		}
		return cookies
	}

	if strings.HasPrefix(raw, "{") {
		var m map[string]string
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			logDegraded(raw, "JSON对象格式错误")
			return nil
		}
		cookies := make([]*http.Cookie, 0, len(m))
		for name, value := range m {
			cookies = append(cookies, &http.Cookie{Name: name, Value: value})
		}
		return cookies
	}

	// k=v; k=v 形式
	var cookies []*http.Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.Index(part, "=")
		if eq <= 0 {
			logDegraded(raw, "cookie串格式错误")
			return nil
		}
		cookies = append(cookies, &http.Cookie{
			Name:  strings.TrimSpace(part[:eq]),
			Value: strings.TrimSpace(part[eq+1:]),
		})
	}
	return cookies
}
