package dropbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ErrMissingCode 缺少授权码
var ErrMissingCode = errors.New("缺少授权码")

// ExchangeCode 用授权码换取令牌，返回的刷新令牌需由运维保存到 DROPBOX_REFRESH_TOKEN
func ExchangeCode(ctx context.Context, appKey, appSecret, code, redirectURL string, timeout time.Duration) (*oauth2.Token, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	if appKey == "" || appSecret == "" {
		return nil, &ConfigError{Missing: missingAppCredentials(appKey, appSecret)}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	tok, err := OAuthConfig(appKey, appSecret, redirectURL).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("授权码换取令牌失败: %w", err)
	}
	return tok, nil
}

func missingAppCredentials(appKey, appSecret string) []string {
	var missing []string
	if appKey == "" {
		missing = append(missing, EnvAppKey)
	}
	if appSecret == "" {
		missing = append(missing, EnvAppSecret)
	}
	return missing
}
