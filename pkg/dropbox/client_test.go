package dropbox

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authErr() error {
	return &APIError{Status: http.StatusUnauthorized, Summary: "expired_access_token/"}
}

func TestWithClientBuildsLazilyAndCaches(t *testing.T) {
	factory := &countingFactory{api: &fakeAPI{}}
	remote := newTestRemote(accessTokenSource, factory)
	assert.Equal(t, 0, factory.builds)

	for i := 0; i < 3; i++ {
		_, err := WithClient(context.Background(), remote, func(ctx context.Context, api API) (*FileInfo, error) {
			return api.Upload(ctx, "/apps/a/x.jpg", []byte("x"), WriteOverwrite)
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, factory.builds)
}

func TestWithClientUnconfigured(t *testing.T) {
	factory := &countingFactory{api: &fakeAPI{}}
	remote := newTestRemote(MapSource{}, factory)

	_, err := WithClient(context.Background(), remote, func(ctx context.Context, api API) (string, error) {
		return "never", nil
	})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, 0, factory.builds)
}

func TestWithClientRetriesOnceAfterAuthError(t *testing.T) {
	factory := &countingFactory{api: &fakeAPI{}}
	retries := 0
	remote := NewRemote(RemoteOptions{
		Source:      accessTokenSource,
		Cache:       NewClientCache(factory.build),
		OnAuthRetry: func() { retries++ },
	})

	calls := 0
	got, err := WithClient(context.Background(), remote, func(ctx context.Context, api API) (string, error) {
		calls++
		if calls == 1 {
			return "", authErr()
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, retries)
	assert.Equal(t, 2, factory.builds)

	// 重建后的客户端继续复用
	_, err = WithClient(context.Background(), remote, func(ctx context.Context, api API) (string, error) {
		return "again", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, factory.builds)
}

func TestWithClientSecondAuthErrorPropagates(t *testing.T) {
	factory := &countingFactory{api: &fakeAPI{}}
	remote := newTestRemote(accessTokenSource, factory)

	calls := 0
	_, err := WithClient(context.Background(), remote, func(ctx context.Context, api API) (string, error) {
		calls++
		return "", authErr()
	})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, factory.builds)
}

func TestWithClientNonAuthErrorIsNotRetried(t *testing.T) {
	factory := &countingFactory{api: &fakeAPI{}}
	remote := newTestRemote(accessTokenSource, factory)
	boom := errors.New("boom")

	calls := 0
	_, err := WithClient(context.Background(), remote, func(ctx context.Context, api API) (string, error) {
		calls++
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, factory.builds)
}

func TestWithClientAppliesTimeout(t *testing.T) {
	factory := &countingFactory{api: &fakeAPI{}}
	remote := newTestRemote(accessTokenSource, factory)

	hasDeadline, err := WithClient(context.Background(), remote, func(ctx context.Context, api API) (bool, error) {
		_, ok := ctx.Deadline()
		return ok, nil
	})
	require.NoError(t, err)
	assert.True(t, hasDeadline)
}

func TestClientCacheRebuildsOnModeChange(t *testing.T) {
	factory := &countingFactory{api: &fakeAPI{}}
	cache := NewClientCache(factory.build)
	ctx := context.Background()

	_, err := cache.Get(ctx, Credentials{Mode: ModeAccessToken, AccessToken: "a"})
	require.NoError(t, err)
	_, err = cache.Get(ctx, Credentials{Mode: ModeAccessToken, AccessToken: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, factory.builds)

	_, err = cache.Get(ctx, Credentials{Mode: ModeRefreshToken})
	require.NoError(t, err)
	assert.Equal(t, 2, factory.builds)
	assert.Equal(t, []AuthMode{ModeAccessToken, ModeRefreshToken}, factory.modes)

	cache.Invalidate()
	_, err = cache.Get(ctx, Credentials{Mode: ModeRefreshToken})
	require.NoError(t, err)
	assert.Equal(t, 3, factory.builds)
}

func TestClientCacheBuildFailureIsNotCached(t *testing.T) {
	factory := &countingFactory{api: &fakeAPI{}, err: errors.New("refresh failed")}
	cache := NewClientCache(factory.build)

	_, err := cache.Get(context.Background(), Credentials{Mode: ModeAccessToken})
	require.Error(t, err)

	factory.err = nil
	_, err = cache.Get(context.Background(), Credentials{Mode: ModeAccessToken})
	require.NoError(t, err)
	assert.Equal(t, 2, factory.builds)
}

func TestStaleInvalidateKeepsNewerHandle(t *testing.T) {
	factory := &countingFactory{api: &fakeAPI{}}
	cache := NewClientCache(factory.build)
	ctx := context.Background()

	old, err := cache.acquire(ctx, Credentials{Mode: ModeAccessToken})
	require.NoError(t, err)
	cache.Invalidate()
	fresh, err := cache.acquire(ctx, Credentials{Mode: ModeAccessToken})
	require.NoError(t, err)

	cache.invalidate(old)
	current, err := cache.acquire(ctx, Credentials{Mode: ModeAccessToken})
	require.NoError(t, err)
	assert.Same(t, fresh, current)
	assert.Equal(t, 2, factory.builds)
}
