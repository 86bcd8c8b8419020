package dropbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysicing/ProfileBgAPI/pkg/storage"
)

func TestNormalizeSharedURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://www.dropbox.com/s/abc/photo.jpg?dl=0", "https://www.dropbox.com/s/abc/photo.jpg?raw=1"},
		{"https://www.dropbox.com/s/abc/photo.jpg", "https://www.dropbox.com/s/abc/photo.jpg?raw=1"},
		{"https://www.dropbox.com/scl/fi/x/p.png?rlkey=k&dl=1", "https://www.dropbox.com/scl/fi/x/p.png?raw=1&rlkey=k"},
		{"https://www.dropbox.com/scl/fi/x/p.png?raw=0&dl=0", "https://www.dropbox.com/scl/fi/x/p.png?raw=1"},
		{"not a url?dl=0", "not a url?raw=1"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeSharedURL(c.in), c.in)
	}
}

func TestUploadReusesExistingLink(t *testing.T) {
	api := &fakeAPI{links: []string{"https://www.dropbox.com/s/existing/p.jpg?dl=0"}}
	remote := newTestRemote(accessTokenSource, &countingFactory{api: api})

	out, err := remote.Upload(context.Background(), "/apps/a/profiles/1.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://www.dropbox.com/s/existing/p.jpg?raw=1", out.SharedURL)
	assert.Empty(t, out.Warning)
	assert.Equal(t, 0, api.created)
	assert.Equal(t, []WriteMode{WriteOverwrite}, api.modes)
}

func TestUploadCreatesLinkWhenNoneExists(t *testing.T) {
	api := &fakeAPI{}
	remote := newTestRemote(accessTokenSource, &countingFactory{api: api})

	out, err := remote.Upload(context.Background(), "/apps/a/backgrounds/current.png", []byte("x"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://www.dropbox.com/scl/fi/abc/file.jpg?raw=1", out.SharedURL)
	assert.Equal(t, 1, api.created)
}

func TestUploadMissingScopeIsPartialSuccess(t *testing.T) {
	api := &fakeAPI{listErrs: []error{&APIError{Status: http.StatusUnauthorized, Summary: "missing_scope/sharing.read"}}}
	remote := newTestRemote(accessTokenSource, &countingFactory{api: api})

	out, err := remote.Upload(context.Background(), "/apps/a/profiles/1.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/apps/a/profiles/1.jpg", out.Path)
	assert.Empty(t, out.SharedURL)
	assert.Equal(t, storage.WarningMissingScope, out.Warning)
}

func TestUploadLinkAuthFailureIsPartialSuccess(t *testing.T) {
	api := &fakeAPI{listErrs: []error{authErr(), authErr()}}
	factory := &countingFactory{api: api}
	remote := newTestRemote(accessTokenSource, factory)

	out, err := remote.Upload(context.Background(), "/apps/a/profiles/1.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, storage.WarningAuth, out.Warning)
	assert.Len(t, api.uploads, 1)
}

func TestUploadFailurePropagates(t *testing.T) {
	boom := errors.New("insufficient_space")
	api := &fakeAPI{uploadErrs: []error{boom}}
	remote := newTestRemote(accessTokenSource, &countingFactory{api: api})

	_, err := remote.Upload(context.Background(), "/apps/a/profiles/1.jpg", []byte("x"), "image/jpeg")
	assert.ErrorIs(t, err, boom)
}

func TestPutUsesAddMode(t *testing.T) {
	api := &fakeAPI{}
	remote := newTestRemote(accessTokenSource, &countingFactory{api: api})

	require.NoError(t, remote.Put(context.Background(), "/apps/a/connection-tests/t.txt", []byte("x"), "text/plain"))
	assert.Equal(t, []WriteMode{WriteAdd}, api.modes)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestDownloadPayloadShapes(t *testing.T) {
	reader := &closeTracker{Reader: strings.NewReader("stream")}
	payloads := map[string]any{
		"bytes":  []byte("bytes"),
		"buffer": bytes.NewBufferString("buffer"),
		"stream": reader,
	}
	for want, payload := range payloads {
		api := &fakeAPI{download: &DownloadResult{Info: FileInfo{Path: "/apps/a/p.png", Rev: "015f"}, Payload: payload}}
		remote := newTestRemote(accessTokenSource, &countingFactory{api: api})

		obj, err := remote.Download(context.Background(), "/apps/a/p.png")
		require.NoError(t, err, want)
		assert.Equal(t, want, string(obj.Data))
		assert.Equal(t, "015f", obj.Revision)
		assert.Equal(t, "/apps/a/p.png", obj.Path)
	}
	assert.True(t, reader.closed)
}

func TestDownloadWithoutPayload(t *testing.T) {
	for _, payload := range []any{nil, 42, []byte(nil)} {
		api := &fakeAPI{download: &DownloadResult{Payload: payload}}
		remote := newTestRemote(accessTokenSource, &countingFactory{api: api})

		_, err := remote.Download(context.Background(), "/apps/a/p.png")
		assert.ErrorIs(t, err, storage.ErrNoPayload)
	}
}

func TestDownloadNotFound(t *testing.T) {
	api := &fakeAPI{downloadErr: toAPIError(errors.New("path/not_found/"))}
	remote := newTestRemote(accessTokenSource, &countingFactory{api: api})

	_, err := remote.Download(context.Background(), "/apps/a/missing.png")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestRemoteStatus(t *testing.T) {
	remote := newTestRemote(MapSource{EnvRefreshToken: "r"}, &countingFactory{api: &fakeAPI{}})
	st := remote.Status()
	assert.False(t, st.Configured)
	assert.Equal(t, []string{EnvAppKey, EnvAppSecret}, st.Missing)
	assert.Error(t, remote.Prepare(context.Background()))

	remote = newTestRemote(accessTokenSource, &countingFactory{api: &fakeAPI{}})
	st = remote.Status()
	assert.True(t, st.Configured)
	assert.Equal(t, string(ModeAccessToken), st.Mode)
	assert.NoError(t, remote.Prepare(context.Background()))
	assert.Equal(t, "dropbox", remote.Name())
}
