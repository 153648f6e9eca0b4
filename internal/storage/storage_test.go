package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) S3Config {
	return S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}
}

func TestNewS3Publisher(t *testing.T) {
	p, err := NewS3Publisher(context.Background(), testConfig("http://localhost:4566/"))
	require.NoError(t, err)
	assert.Equal(t, "test-bucket", p.bucket)
	assert.Equal(t, "http://localhost:4566/test-bucket/a/b.wav", p.URL("a/b.wav"))

	p, err = NewS3Publisher(context.Background(), testConfig(""))
	require.NoError(t, err)
	assert.Equal(t, "https://test-bucket.s3.us-east-1.amazonaws.com/x.json", p.URL("x.json"))

	_, err = NewS3Publisher(context.Background(), S3Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, ErrPublish)
}

func TestS3Publisher_PublishMockServer(t *testing.T) {
	var (
		mu   sync.Mutex
		got  = map[string]string{}
		kind string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got[r.URL.Path] = string(body)
		kind = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, err := NewS3Publisher(context.Background(), testConfig(server.URL))
	require.NoError(t, err)

	url, err := p.Publish(context.Background(), "exports/report.json", "application/json",
		bytes.NewReader([]byte(`{"ok":true}`)))
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/test-bucket/exports/report.json", url)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, `{"ok":true}`, got["/test-bucket/exports/report.json"])
	assert.Equal(t, "application/json", kind)
}

func TestS3Publisher_PublishError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p, err := NewS3Publisher(context.Background(), testConfig(server.URL))
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), "k", "text/plain", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrPublish)
}

type recorder struct {
	key, contentType, body string
}

func (r *recorder) Publish(_ context.Context, key, contentType string, data io.ReadSeeker) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	r.key, r.contentType, r.body = key, contentType, string(b)
	return "mem://" + key, nil
}

func TestPublishFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episode-mastered.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	rec := &recorder{}
	url, err := PublishFile(context.Background(), rec, "/jobs/42/", path)
	require.NoError(t, err)
	assert.Equal(t, "mem://jobs/42/episode-mastered.wav", url)
	assert.Equal(t, "audio/wav", rec.contentType)
	assert.Equal(t, "RIFF", rec.body)

	_, err = PublishFile(context.Background(), rec, "", filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, ErrPublish)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNoop(t *testing.T) {
	url, err := Noop{}.Publish(context.Background(), "k", "x", strings.NewReader("y"))
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestKeyAndContentType(t *testing.T) {
	assert.Equal(t, "a.wav", Key("", "a.wav"))
	assert.Equal(t, "p/q/a.wav", Key("/p/q/", "a.wav"))
	assert.Equal(t, "application/json", ContentType("timing.JSON"))
	assert.Equal(t, "text/plain; charset=utf-8", ContentType("take-analysis.log"))
	assert.Equal(t, "application/octet-stream", ContentType("blob"))
}
