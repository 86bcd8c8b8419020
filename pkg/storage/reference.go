package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ProxyEndpoint 存储代理端点
const ProxyEndpoint = "/api/storage/dropbox"

// ErrDecode 代理路径参数无法解码
var ErrDecode = errors.New("路径参数无效")

// EncodePath 将后端路径编码为 URL 安全的令牌（base64url，无填充）
func EncodePath(p string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(p))
}

// DecodePath 解码 EncodePath 生成的令牌
func DecodePath(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: 空令牌", ErrDecode)
	}
	// 补齐填充后按标准 URL 字母表解码，兼容带填充的令牌
	padded := strings.TrimRight(token, "=")
	if m := len(padded) % 4; m != 0 {
		padded += strings.Repeat("=", 4-m)
	}
	data, err := base64.URLEncoding.DecodeString(padded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return string(data), nil
}

// BuildProxyURL 构造代理地址，version 大于 0 时附加缓存版本参数
func BuildProxyURL(p string, version int64) string {
	q := url.Values{}
	q.Set("path", EncodePath(p))
	if version > 0 {
		q.Set("v", strconv.FormatInt(version, 10))
	}
	return ProxyEndpoint + "?" + q.Encode()
}

// NamespacePrefix 返回应用的远程存储命名空间前缀
func NamespacePrefix(appName string) string {
	return "/apps/" + appName + "/"
}
