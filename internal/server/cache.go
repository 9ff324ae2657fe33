package server

import (
	"bytes"
	"net/http"
	"sync"
	"time"
)

// pageCache holds whole rendered pages for a fixed TTL. It only serves
// anonymous GETs, so a stale page never leaks another viewer's session
// state; staleness within the TTL is accepted by design.
type pageCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	body    []byte
	expires time.Time
}

func newPageCache(ttl time.Duration) *pageCache {
	return &pageCache{ttl: ttl, entries: map[string]cacheEntry{}}
}

func (c *pageCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.body, true
}

func (c *pageCache) put(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{body: body, expires: time.Now().Add(c.ttl)}
}

// cached wraps a page handler with the TTL cache.
func (s *Server) cached(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cache.ttl <= 0 || r.Method != http.MethodGet || s.currentUser(r) != nil {
			next(w, r)
			return
		}
		key := r.URL.RequestURI()
		if body, ok := s.cache.get(key); ok {
			w.Write(body)
			return
		}
		rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if rec.status == http.StatusOK {
			s.cache.put(key, rec.buf.Bytes())
		}
	}
}

type captureWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.buf.Write(p)
	return c.ResponseWriter.Write(p)
}
