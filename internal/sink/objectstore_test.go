package sink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
)

type putRequest struct {
	path        string
	contentType string
}

// fakeS3 accepts bucket HEADs and object PUTs and records the PUTs.
type fakeS3 struct {
	mu       sync.Mutex
	puts     []putRequest
	failPuts bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		if f.failPuts {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		f.mu.Lock()
		f.puts = append(f.puts, putRequest{path: r.URL.Path, contentType: r.Header.Get("Content-Type")})
		f.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3(t *testing.T, fake *fakeS3) config.S3Config {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return config.S3Config{
		Endpoint:  u.Host,
		Bucket:    "artifacts",
		Region:    "us-east-1",
		Prefix:    "dbt-artifacts",
		AccessKey: config.Secret("minio"),
		SecretKey: config.Secret("minio123"),
	}
}

func TestObjectStoreSink_Store(t *testing.T) {
	fake := &fakeS3{}
	cfg := newFakeS3(t, fake)
	client, err := NewMinIOClient(cfg)
	require.NoError(t, err)

	s := NewObjectStoreSink(client, cfg.Bucket, cfg.Prefix, nil)
	ok := s.Store(context.Background(), "dev--run--test", map[string]dbt.Artifact{
		"run_results": {"elapsed_time": 1.0},
		"manifest":    {"nodes": map[string]any{}},
	})

	require.True(t, ok)
	require.Len(t, fake.puts, 2)
	assert.Equal(t, "/artifacts/dbt-artifacts/dev--run--test/manifest.json", fake.puts[0].path)
	assert.Equal(t, "/artifacts/dbt-artifacts/dev--run--test/run_results.json", fake.puts[1].path)
	assert.Equal(t, "application/json", fake.puts[0].contentType)
}

func TestObjectStoreSink_UploadFailure(t *testing.T) {
	fake := &fakeS3{failPuts: true}
	cfg := newFakeS3(t, fake)
	client, err := NewMinIOClient(cfg)
	require.NoError(t, err)

	s := NewObjectStoreSink(client, cfg.Bucket, cfg.Prefix, nil)
	assert.False(t, s.Store(context.Background(), "dev--run--test", map[string]dbt.Artifact{"manifest": {}}))
}

func TestObjectStoreSink_ObjectName(t *testing.T) {
	s := NewObjectStoreSink(nil, "b", "", nil)
	assert.Equal(t, "dev--docs-generate--jaffle/catalog.json", s.ObjectName("dev--docs-generate--jaffle", "catalog"))
}

func TestNew_ObjectStore(t *testing.T) {
	cfg := newFakeS3(t, &fakeS3{})
	s, closeFn, err := New(context.Background(), config.SinkConfig{Kind: config.SinkS3, S3: cfg}, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &ObjectStoreSink{}, s)
}
