package downloader_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passages.dev/gtfs/downloader"
)

type feedServer struct {
	body     []byte
	status   int
	requests []*http.Request
	mutex    sync.Mutex
	server   *httptest.Server
}

func newFeedServer(body string) *feedServer {
	f := &feedServer{body: []byte(body), status: http.StatusOK}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mutex.Lock()
		defer f.mutex.Unlock()
		f.requests = append(f.requests, r)
		w.WriteHeader(f.status)
		w.Write(f.body)
	}))
	return f
}

func (f *feedServer) setBody(body string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.body = []byte(body)
}

func (f *feedServer) count() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.requests)
}

func (f *feedServer) last() *http.Request {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestHTTPGet(t *testing.T) {
	f := newFeedServer("feed data")
	defer f.server.Close()

	body, err := downloader.HTTPGet(
		context.Background(),
		f.server.URL+"/gtfs.zip",
		map[string]string{"apikey": "secret"},
		downloader.GetOptions{Timeout: time.Second},
	)
	require.NoError(t, err)
	assert.Equal(t, "feed data", string(body))
	assert.Equal(t, "secret", f.last().Header.Get("apikey"))
	assert.Equal(t, "/gtfs.zip", f.last().URL.Path)
}

func TestHTTPGetMaxSize(t *testing.T) {
	f := newFeedServer("0123456789")
	defer f.server.Close()

	body, err := downloader.HTTPGet(context.Background(), f.server.URL, nil, downloader.GetOptions{MaxSize: 10})
	require.NoError(t, err)
	assert.Len(t, body, 10)

	_, err = downloader.HTTPGet(context.Background(), f.server.URL, nil, downloader.GetOptions{MaxSize: 9})
	assert.True(t, errors.Is(err, downloader.ErrTooLarge))
}

func TestHTTPGetStatus(t *testing.T) {
	f := newFeedServer("nope")
	f.status = http.StatusForbidden
	defer f.server.Close()

	_, err := downloader.HTTPGet(context.Background(), f.server.URL, nil, downloader.GetOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestHTTPGetCancelled(t *testing.T) {
	f := newFeedServer("feed data")
	defer f.server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := downloader.HTTPGet(ctx, f.server.URL, nil, downloader.GetOptions{})
	assert.Error(t, err)
}

func TestMemoryDownloaderCache(t *testing.T) {
	f := newFeedServer("v1")
	defer f.server.Close()

	now := time.Date(2025, 7, 8, 12, 0, 0, 0, time.UTC)
	d := downloader.NewMemoryDownloader()
	d.TimeNow = func() time.Time { return now }

	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Minute}

	body, err := d.Get(context.Background(), f.server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body))

	// Served from cache
	f.setBody("v2")
	body, err = d.Get(context.Background(), f.server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body))
	assert.Equal(t, 1, f.count())

	// Unless caching is off
	body, err = d.Get(context.Background(), f.server.URL, nil, downloader.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))
	assert.Equal(t, 2, f.count())

	// Or the entry has expired
	f.setBody("v3")
	now = now.Add(2 * time.Minute)
	body, err = d.Get(context.Background(), f.server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "v3", string(body))
	assert.Equal(t, 3, f.count())
}

func TestFilesystemCache(t *testing.T) {
	f := newFeedServer("v1")
	defer f.server.Close()

	path := filepath.Join(t.TempDir(), "cache.json")
	now := time.Date(2025, 7, 8, 12, 0, 0, 0, time.UTC)

	fs, err := downloader.NewFilesystem(path)
	require.NoError(t, err)
	fs.TimeNow = func() time.Time { return now }

	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Hour}
	body, err := fs.Get(context.Background(), f.server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body))

	// A fresh Filesystem on the same path reads the cache file.
	f.setBody("v2")
	fs, err = downloader.NewFilesystem(path)
	require.NoError(t, err)
	fs.TimeNow = func() time.Time { return now.Add(time.Minute) }

	body, err = fs.Get(context.Background(), f.server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body))
	assert.Equal(t, 1, f.count())

	// Expired
	fs.TimeNow = func() time.Time { return now.Add(2 * time.Hour) }
	body, err = fs.Get(context.Background(), f.server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))
	assert.Equal(t, 2, f.count())
}

func TestProxyURL(t *testing.T) {
	for _, tc := range []struct {
		worker   string
		target   string
		expected string
	}{
		{"", "https://example.com/gtfs.zip", "https://example.com/gtfs.zip"},
		{
			"https://proxy.workers.dev",
			"https://example.com/download/?format=zip&id=1",
			"https://proxy.workers.dev?url=https%3A%2F%2Fexample.com%2Fdownload%2F%3Fformat%3Dzip%26id%3D1",
		},
		{
			"https://proxy.workers.dev/?key=k",
			"https://example.com/gtfs.zip",
			"https://proxy.workers.dev/?key=k&url=https%3A%2F%2Fexample.com%2Fgtfs.zip",
		},
	} {
		assert.Equal(t, tc.expected, downloader.ProxyURL(tc.worker, tc.target))
	}
}

func TestProxy(t *testing.T) {
	f := newFeedServer("proxied")
	defer f.server.Close()

	p := downloader.NewProxy(f.server.URL+"/worker", downloader.NewMemoryDownloader())
	body, err := p.Get(
		context.Background(),
		"https://example.com/gtfs.zip",
		map[string]string{"apikey": "secret"},
		downloader.GetOptions{},
	)
	require.NoError(t, err)
	assert.Equal(t, "proxied", string(body))

	req := f.last()
	assert.Equal(t, "/worker", req.URL.Path)
	assert.Equal(t, "https://example.com/gtfs.zip", req.URL.Query().Get("url"))
	assert.Equal(t, "secret", req.Header.Get("apikey"))
}
