package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers just enough of the S3 API for bucket checks and PutObject.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Has("location"):
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
	case r.Method == http.MethodHead && key == "":
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && key == "":
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+key] = body
		f.types[bucket+"/"+key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestStorePut(t *testing.T) {
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	store, err := New(ctx, Options{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		Bucket:    "evidence",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)
	assert.True(t, fake.buckets["evidence"])

	u, err := store.Put(ctx, "/acme/h1/01.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/evidence/acme/h1/01.png", u)
	// insecure endpoints get aws-chunked bodies, the payload is inside the frame
	assert.Contains(t, string(fake.objects["evidence/acme/h1/01.png"]), "png-bytes")
	assert.Equal(t, "image/png", fake.types["evidence/acme/h1/01.png"])

	require.NoError(t, store.Check(ctx))
	fake.mu.Lock()
	delete(fake.buckets, "evidence")
	fake.mu.Unlock()
	assert.ErrorContains(t, store.Check(ctx), "missing")
}

func TestObjectURL(t *testing.T) {
	assert.Equal(t, "http://h:9000/b/k.png", ObjectURL("", "h:9000", "b", "/k.png"))
	assert.Equal(t, "https://s3/b/a/b", ObjectURL("https", "s3", "b", "a/b"))
}
