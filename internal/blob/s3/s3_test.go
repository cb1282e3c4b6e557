package s3blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "a.jsonl", objectKey("", "a.jsonl"))
	assert.Equal(t, "recordings/a.jsonl", objectKey("recordings", "a.jsonl"))
	assert.Equal(t, "recordings/a.jsonl", objectKey("/recordings/", "a.jsonl"))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/x-ndjson", ContentType("x/2024_slug.jsonl"))
	assert.Equal(t, "application/octet-stream", ContentType("x.pb"))
}

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestUploadFile_PathStyle(t *testing.T) {
	var mu sync.Mutex
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		gotMethod, gotPath = r.Method, r.URL.Path
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "ticks",
		Prefix:         "recordings",
		AccessKey:      "AKIDEXAMPLE",
		SecretKey:      "secret",
		ForcePathStyle: true,
	})
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "2024-01-01T00-00-00_btc-updown-5m-1.jsonl")
	require.NoError(t, os.WriteFile(local, []byte(`{"ts":1}`+"\n"), 0o644))

	key, err := NewWriter(c).UploadFile(context.Background(), local)
	require.NoError(t, err)
	assert.Equal(t, "recordings/2024-01-01T00-00-00_btc-updown-5m-1.jsonl", key)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/ticks/"+key, gotPath)
}
