package client

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingTransport returns a transport that stores GET responses and
// revalidates them with If-None-Match, so unchanged documents come back as
// 304 and are served from the cache. An empty cacheDir keeps the cache in
// memory.
func NewCachingTransport(cacheDir string) http.RoundTripper {
	if cacheDir == "" {
		return httpcache.NewTransport(httpcache.NewMemoryCache())
	}

	// Use disk-based cache for persistence across invocations
	return httpcache.NewTransport(diskcache.New(cacheDir))
}

// NewInMemoryCachingHTTPClient creates an HTTP client with in-memory caching only.
func NewInMemoryCachingHTTPClient() *http.Client {
	return &http.Client{Transport: NewCachingTransport("")}
}
