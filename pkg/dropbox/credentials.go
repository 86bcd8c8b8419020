package dropbox

import "strings"

// AuthMode Dropbox 认证方式
type AuthMode string

const (
	// ModeAccessToken 长期访问令牌
	ModeAccessToken AuthMode = "access_token"
	// ModeRefreshToken 应用密钥 + 刷新令牌，按需换取短期访问令牌
	ModeRefreshToken AuthMode = "refresh_token"
)

// 凭证环境变量
const (
	EnvAccessToken  = "DROPBOX_ACCESS_TOKEN"
	EnvRefreshToken = "DROPBOX_REFRESH_TOKEN"
	EnvAppKey       = "DROPBOX_APP_KEY"
	EnvAppSecret    = "DROPBOX_APP_SECRET"
)

// Source 凭证来源，每次解析都会重新读取
type Source interface {
	Get(name string) string
}

// SourceFunc 函数形式的凭证来源
type SourceFunc func(name string) string

// Get 实现 Source
func (f SourceFunc) Get(name string) string {
	return f(name)
}

// MapSource 基于 map 的凭证来源
type MapSource map[string]string

// Get 实现 Source
func (m MapSource) Get(name string) string {
	return m[name]
}

// Credentials 已解析的凭证
type Credentials struct {
	Mode         AuthMode
	AccessToken  string
	RefreshToken string
	AppKey       string
	AppSecret    string
}

// Status 凭证状态，不做缓存
type Status struct {
	Configured  bool
	Mode        AuthMode
	Missing     []string
	Credentials Credentials
}

// Resolve 解析凭证。
// 只要出现任一刷新令牌相关变量就选择刷新令牌模式，即使不完整，也不会退回到残留的访问令牌。
func Resolve(src Source) Status {
	get := func(name string) string {
		return strings.TrimSpace(src.Get(name))
	}

	refreshToken := get(EnvRefreshToken)
	appKey := get(EnvAppKey)
	appSecret := get(EnvAppSecret)

	if refreshToken != "" || appKey != "" || appSecret != "" {
		var missing []string
		if refreshToken == "" {
			missing = append(missing, EnvRefreshToken)
		}
		if appKey == "" {
			missing = append(missing, EnvAppKey)
		}
		if appSecret == "" {
			missing = append(missing, EnvAppSecret)
		}
		if len(missing) > 0 {
			return Status{Mode: ModeRefreshToken, Missing: missing}
		}
		return Status{
			Configured: true,
			Mode:       ModeRefreshToken,
			Credentials: Credentials{
				Mode:         ModeRefreshToken,
				RefreshToken: refreshToken,
				AppKey:       appKey,
				AppSecret:    appSecret,
			},
		}
	}

	if token := get(EnvAccessToken); token != "" {
		return Status{
			Configured:  true,
			Mode:        ModeAccessToken,
			Credentials: Credentials{Mode: ModeAccessToken, AccessToken: token},
		}
	}

	return Status{Missing: []string{EnvAccessToken, EnvRefreshToken, EnvAppKey, EnvAppSecret}}
}
