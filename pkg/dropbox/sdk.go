package dropbox

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	dbx "github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/sharing"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Endpoint Dropbox OAuth2 端点
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://www.dropbox.com/oauth2/authorize",
	TokenURL:  "https://api.dropboxapi.com/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// OAuthConfig 返回应用的 oauth2 配置
func OAuthConfig(appKey, appSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     appKey,
		ClientSecret: appSecret,
		Endpoint:     Endpoint,
		RedirectURL:  redirectURL,
	}
}

// sdkClient 基于官方 SDK 的 API 实现
type sdkClient struct {
	files   files.Client
	sharing sharing.Client
}

// NewSDKFactory 返回使用 Dropbox SDK 构建客户端的 Factory，timeout 限制每个 HTTP 请求
func NewSDKFactory(timeout time.Duration) Factory {
	return func(ctx context.Context, creds Credentials) (API, error) {
		httpClient, token, err := authorizedClient(creds, timeout)
		if err != nil {
			return nil, err
		}

		cfg := dbx.Config{
			Token:    token,
			LogLevel: dbx.LogOff,
			Client:   httpClient,
		}
		logrus.Infof("已创建 Dropbox 客户端 (认证方式: %s)", creds.Mode)
		return &sdkClient{files: files.New(cfg), sharing: sharing.New(cfg)}, nil
	}
}

// authorizedClient 按认证方式构建带令牌的 HTTP 客户端。
// 刷新令牌模式会先换取一次访问令牌，令牌源的上下文与请求无关，后续刷新不会因请求结束而失败。
func authorizedClient(creds Credentials, timeout time.Duration) (*http.Client, string, error) {
	base := &http.Client{Timeout: timeout}
	bg := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	switch creds.Mode {
	case ModeAccessToken:
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"})
		client := oauth2.NewClient(bg, src)
		client.Timeout = timeout
		return client, creds.AccessToken, nil
	case ModeRefreshToken:
		src := OAuthConfig(creds.AppKey, creds.AppSecret, "").TokenSource(bg, &oauth2.Token{RefreshToken: creds.RefreshToken})
		tok, err := src.Token()
		if err != nil {
			return nil, "", toAPIError(fmt.Errorf("刷新访问令牌失败: %w", err))
		}
		client := oauth2.NewClient(bg, src)
		client.Timeout = timeout
		return client, tok.AccessToken, nil
	default:
		return nil, "", fmt.Errorf("未知的认证方式: %q", creds.Mode)
	}
}

func (c *sdkClient) Upload(ctx context.Context, path string, data []byte, mode WriteMode) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	arg := files.NewUploadArg(path)
	arg.Mode = &files.WriteMode{Tagged: dbx.Tagged{Tag: string(mode)}}
	arg.Autorename = mode == WriteAdd
	arg.Mute = true

	res, err := c.files.Upload(arg, bytes.NewReader(data))
	if err != nil {
		return nil, toAPIError(err)
	}
	return &FileInfo{Path: res.PathDisplay, Rev: res.Rev}, nil
}

func (c *sdkClient) ListSharedLinks(ctx context.Context, path string, directOnly bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	arg := sharing.NewListSharedLinksArg()
	arg.Path = path
	arg.DirectOnly = directOnly

	res, err := c.sharing.ListSharedLinks(arg)
	if err != nil {
		return nil, toAPIError(err)
	}

	var urls []string
	for _, link := range res.Links {
		if u := sharedLinkURL(link); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

func (c *sdkClient) CreateSharedLink(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := c.sharing.CreateSharedLinkWithSettings(sharing.NewCreateSharedLinkWithSettingsArg(path))
	if err != nil {
		return "", toAPIError(err)
	}
	u := sharedLinkURL(res)
	if u == "" {
		return "", &APIError{Summary: "共享链接响应中没有 URL"}
	}
	return u, nil
}

func (c *sdkClient) Download(ctx context.Context, path string) (*DownloadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, content, err := c.files.Download(files.NewDownloadArg(path))
	if err != nil {
		return nil, toAPIError(err)
	}
	return &DownloadResult{
		Info:    FileInfo{Path: res.PathDisplay, Rev: res.Rev},
		Payload: content,
	}, nil
}

func sharedLinkURL(link sharing.IsSharedLinkMetadata) string {
	switch m := link.(type) {
	case *sharing.FileLinkMetadata:
		return m.Url
	case *sharing.FolderLinkMetadata:
		return m.Url
	case *sharing.SharedLinkMetadata:
		return m.Url
	default:
		return ""
	}
}
