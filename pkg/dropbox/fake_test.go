package dropbox

import (
	"context"
	"sync"
	"time"
)

// fakeAPI 记录调用并按预设返回结果
type fakeAPI struct {
	mu sync.Mutex

	uploadErrs  []error
	uploads     []string
	modes       []WriteMode
	links       []string
	listErrs    []error
	createErr   error
	created     int
	download    *DownloadResult
	downloadErr error
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeAPI) Upload(ctx context.Context, path string, data []byte, mode WriteMode) (*FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, path)
	f.modes = append(f.modes, mode)
	if err := popErr(&f.uploadErrs); err != nil {
		return nil, err
	}
	return &FileInfo{Path: path, Rev: "rev1"}, nil
}

func (f *fakeAPI) ListSharedLinks(ctx context.Context, path string, directOnly bool) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.listErrs); err != nil {
		return nil, err
	}
	return f.links, nil
}

func (f *fakeAPI) CreateSharedLink(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return "https://www.dropbox.com/scl/fi/abc/file.jpg?dl=0", nil
}

func (f *fakeAPI) Download(ctx context.Context, path string) (*DownloadResult, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.download, nil
}

// countingFactory 每次构建都返回同一个 fake，并记录构建次数与认证方式
type countingFactory struct {
	mu     sync.Mutex
	api    *fakeAPI
	builds int
	modes  []AuthMode
	err    error
}

func (c *countingFactory) build(ctx context.Context, creds Credentials) (API, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builds++
	c.modes = append(c.modes, creds.Mode)
	if c.err != nil {
		return nil, c.err
	}
	return c.api, nil
}

func newTestRemote(src Source, factory *countingFactory) *Remote {
	return NewRemote(RemoteOptions{
		Source:  src,
		Cache:   NewClientCache(factory.build),
		Timeout: time.Second,
	})
}

var accessTokenSource = MapSource{EnvAccessToken: "sl.token"}
