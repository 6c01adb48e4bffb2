package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erp/ingest/internal/infrastructure/config"
)

// fakeS3 answers path-style object requests from memory
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(body)
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Archive(t *testing.T) (*S3Archive, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	archive, err := NewS3Archive(context.Background(), &config.StorageConfig{
		Enabled:         true,
		Endpoint:        srv.URL,
		Bucket:          "raw-uploads",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	}, WithLogger(zaptest.NewLogger(t)), WithS3Options(func(o *s3.Options) {
		o.RetryMaxAttempts = 1
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}))
	require.NoError(t, err)
	return archive, fake
}

func TestNewS3Archive_Validation(t *testing.T) {
	_, err := NewS3Archive(context.Background(), nil)
	assert.ErrorContains(t, err, "configuration is required")

	_, err = NewS3Archive(context.Background(), &config.StorageConfig{})
	assert.ErrorContains(t, err, "bucket is required")

	_, err = NewS3Archive(context.Background(), &config.StorageConfig{Bucket: "b", Endpoint: "::nope"})
	assert.ErrorContains(t, err, "invalid storage endpoint")
}

func TestS3Archive_PutAndGet(t *testing.T) {
	archive, fake := newTestS3Archive(t)
	ctx := context.Background()

	key, err := archive.Put(ctx, "imports/abc/catalog.csv", "text/csv", []byte("sku,name\nA,B\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3://raw-uploads/imports/abc/catalog.csv", key)
	assert.Equal(t, []byte("sku,name\nA,B\n"), fake.objects["/raw-uploads/imports/abc/catalog.csv"])
	assert.Equal(t, "text/csv", fake.types["/raw-uploads/imports/abc/catalog.csv"])

	data, err := archive.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "sku,name\nA,B\n", string(data))

	_, err = archive.Get(ctx, "imports/missing.csv")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, archive.EnsureBucket(ctx))

	u, _, err := archive.DownloadURL(ctx, key)
	require.NoError(t, err)
	assert.True(t, strings.Contains(u, "/raw-uploads/imports/abc/catalog.csv"))

	_, err = archive.Put(ctx, "", "", nil)
	assert.Error(t, err)
}

func TestLocalArchive(t *testing.T) {
	root := filepath.Join(t.TempDir(), "archive")
	archive, err := NewLocalArchive(root)
	require.NoError(t, err)
	ctx := context.Background()

	key, err := archive.Put(ctx, "imports/abc/catalog.csv", "text/csv", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(root, "imports", "abc", "catalog.csv"), key)

	data, err := archive.Get(ctx, "imports/abc/catalog.csv")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	_, err = archive.Get(ctx, "imports/none.csv")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = archive.Put(ctx, "../escape.csv", "", []byte("x"))
	assert.ErrorContains(t, err, "escapes")

	key, err = NopArchive{}.Put(ctx, "k", "", []byte("x"))
	require.NoError(t, err)
	assert.Empty(t, key)
}
