package dropbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"status 401", &APIError{Status: http.StatusUnauthorized, Summary: "invalid"}, KindAuth},
		{"expired summary", errors.New("expired_access_token/.."), KindAuth},
		{"invalid summary", &APIError{Summary: "invalid_access_token/"}, KindAuth},
		{"sentinel auth", fmt.Errorf("wrap: %w", ErrAuth), KindAuth},
		{"missing scope beats 401", &APIError{Status: http.StatusUnauthorized, Summary: "missing_scope/sharing.write"}, KindMissingScope},
		{"sentinel scope", ErrMissingScope, KindMissingScope},
		{"path not found", errors.New("path/not_found/"), KindNotFound},
		{"conflict", &APIError{Status: http.StatusConflict, Summary: "path/conflict"}, KindNotFound},
		{"timeout", context.DeadlineExceeded, KindOther},
		{"server", &APIError{Status: http.StatusInternalServerError, Summary: "boom"}, KindOther},
		{"refresh rejected", &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusUnauthorized}}, KindAuth},
		{"refresh bad request", &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}, ErrorCode: "invalid_grant"}, KindOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), tc.name)
	}
}

func TestToAPIError(t *testing.T) {
	assert.NoError(t, toAPIError(nil))

	err := toAPIError(errors.New("expired_access_token/"))
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.ErrorIs(t, err, ErrAuth)
	assert.NotErrorIs(t, err, ErrMissingScope)

	err = toAPIError(errors.New("missing_scope/files.content.write"))
	assert.ErrorIs(t, err, ErrMissingScope)
	assert.Equal(t, KindMissingScope, Classify(err))

	err = toAPIError(errors.New("path/not_found/."))
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.NotErrorIs(t, err, ErrAuth)

	err = toAPIError(fmt.Errorf("refresh: %w", &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusUnauthorized}}))
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.True(t, IsAuthError(err))
	assert.ErrorIs(t, err, ErrAuth)

	// 原始错误仍可取出
	sdkErr := errors.New("expired_access_token/")
	assert.ErrorIs(t, toAPIError(sdkErr), sdkErr)
}

func TestConfigError(t *testing.T) {
	err := error(&ConfigError{Missing: []string{EnvAccessToken}})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), EnvAccessToken)
}
