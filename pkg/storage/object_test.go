package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStorageStatus(t *testing.T) {
	s := NewObjectStorage(ObjectStorageConfig{Endpoint: "minio:9000"})
	st := s.Status()
	assert.False(t, st.Configured)
	assert.Equal(t, []string{"storage.object.accessKeyID", "storage.object.secretAccessKey", "storage.object.bucketName"}, st.Missing)

	err := s.Prepare(context.Background())
	assert.Error(t, err)

	s.Reconfigure(ObjectStorageConfig{
		Endpoint:        "minio:9000",
		AccessKeyID:     "ak",
		SecretAccessKey: "sk",
		BucketName:      "uploads",
	})
	st = s.Status()
	assert.True(t, st.Configured)
	assert.Equal(t, "static-keys", st.Mode)
	assert.Empty(t, st.Missing)
}

func TestObjectStorageGetURL(t *testing.T) {
	s := NewObjectStorage(ObjectStorageConfig{
		Endpoint:   "minio:9000",
		BucketName: "uploads",
		UseSSL:     true,
		BaseURL:    "cdn.example.com",
	})
	assert.Equal(t, "https://cdn.example.com/uploads/apps/app/profiles/1.jpg", s.GetURL("/apps/app/profiles/1.jpg"))

	plain := NewObjectStorage(ObjectStorageConfig{Endpoint: "minio:9000", BucketName: "b"})
	assert.Equal(t, "http://minio:9000/b/k.png", plain.GetURL("k.png"))
}

func TestObjectStorageStatusDuringBucketCheck(t *testing.T) {
	seen := make(chan struct{}, 1)
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case seen <- struct{}{}:
		default:
		}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer unblock()

	s := NewObjectStorage(ObjectStorageConfig{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		AccessKeyID:     "ak",
		SecretAccessKey: "sk",
		BucketName:      "uploads",
		Region:          "us-east-1",
		Timeout:         5 * time.Second,
	})

	prepared := make(chan error, 1)
	go func() { prepared <- s.Prepare(context.Background()) }()

	select {
	case <-seen:
	case <-time.After(5 * time.Second):
		t.Fatal("bucket check never reached the server")
	}

	// 存储桶检查进行中，状态查询不应等待
	status := make(chan RemoteStatus, 1)
	go func() { status <- s.Status() }()
	select {
	case st := <-status:
		assert.True(t, st.Configured)
	case <-time.After(time.Second):
		t.Fatal("Status waited for the bucket check")
	}

	unblock()
	require.NoError(t, <-prepared)
}
