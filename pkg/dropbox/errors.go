package dropbox

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

var (
	// ErrNotConfigured 凭证未配置或不完整
	ErrNotConfigured = errors.New("Dropbox 未配置")
	// ErrAuth 访问令牌无效或已过期
	ErrAuth = errors.New("Dropbox 认证失败")
	// ErrMissingScope 应用缺少所需权限
	ErrMissingScope = errors.New("Dropbox 应用缺少所需权限")
)

// ConfigError 描述缺失的凭证变量
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v，缺少: %s", ErrNotConfigured, strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Unwrap() error {
	return ErrNotConfigured
}

// APIError Dropbox 接口返回的错误
type APIError struct {
	Status  int
	Summary string
	Err     error
	// Sentinel 已识别的错误类别：ErrAuth 或 ErrMissingScope
	Sentinel error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("Dropbox 接口错误 (HTTP %d): %s", e.Status, e.Summary)
	}
	return "Dropbox 接口错误: " + e.Summary
}

func (e *APIError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Sentinel != nil {
		errs = append(errs, e.Sentinel)
	}
	return errs
}

// ErrorKind 错误分类
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindMissingScope
	KindAuth
	KindNotFound
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMissingScope:
		return "missing_scope"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// Classify 对错误分类。缺少权限先于认证判断，因为 Dropbox 对两者都返回 401
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	summary := strings.ToLower(err.Error())
	var status int
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		status = apiErr.Status
		summary = strings.ToLower(apiErr.Summary)
	}
	var retrieveErr *oauth2.RetrieveError
	if status == 0 && errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}

	switch {
	case errors.Is(err, ErrMissingScope) || strings.Contains(summary, "missing_scope"):
		return KindMissingScope
	case errors.Is(err, ErrAuth) || status == http.StatusUnauthorized ||
		strings.Contains(summary, "expired_access_token") ||
		strings.Contains(summary, "invalid_access_token"):
		return KindAuth
	case status == http.StatusNotFound || status == http.StatusConflict || strings.Contains(summary, "not_found"):
		return KindNotFound
	default:
		return KindOther
	}
}

// IsAuthError 是否为认证类错误
func IsAuthError(err error) bool {
	return Classify(err) == KindAuth
}

// toAPIError 将 SDK 或 oauth2 返回的错误转换为 APIError
func toAPIError(err error) error {
	if err == nil {
		return nil
	}

	apiErr := &APIError{Summary: err.Error(), Err: err}
	summary := strings.ToLower(apiErr.Summary)

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		apiErr.Status = retrieveErr.Response.StatusCode
		if apiErr.Status == http.StatusUnauthorized {
			apiErr.Sentinel = ErrAuth
		}
		return apiErr
	}

	switch {
	case strings.Contains(summary, "missing_scope"):
		apiErr.Status = http.StatusUnauthorized
		apiErr.Sentinel = ErrMissingScope
	case strings.Contains(summary, "expired_access_token"),
		strings.Contains(summary, "invalid_access_token"):
		apiErr.Status = http.StatusUnauthorized
		apiErr.Sentinel = ErrAuth
	case strings.Contains(summary, "not_found"):
		apiErr.Status = http.StatusConflict
	}
	return apiErr
}
