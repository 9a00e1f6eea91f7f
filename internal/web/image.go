package web

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"gnotion/internal/cache"
)

// 10 MB is far above any page asset the upstream serves.
const maxImageBytes = 10 << 20

// handleImage proxies upstream-hosted images through the local cache.
// Upstream file URLs expire after roughly an hour; the cached copy
// outlives them.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		http.Error(w, "Invalid URL", http.StatusBadRequest)
		return
	}
	if !s.imageHostAllowed(parsed.Hostname()) {
		http.Error(w, "Domain not allowed", http.StatusForbidden)
		return
	}

	if data, ok := s.cache.Get(cache.NSImages, raw); ok {
		writeImage(w, data, imageContentType(data, ""), "HIT")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, raw, nil)
	if err != nil {
		http.Error(w, "Invalid URL", http.StatusBadRequest)
		return
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; gnotion/1.0)")
	resp, err := s.imageClient.Do(req)
	if err != nil {
		slog.Warn("image fetch failed", "url", raw, "error", err)
		s.serveImageFallback(w, raw)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.serveImageFallback(w, raw)
		return
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil || len(data) == 0 {
		s.serveImageFallback(w, raw)
		return
	}
	if len(data) > maxImageBytes {
		http.Error(w, "Image too large", http.StatusBadGateway)
		return
	}
	contentType := imageContentType(data, resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		http.Error(w, "Not an image", http.StatusBadRequest)
		return
	}

	if err := s.cache.Put(cache.NSImages, raw, data); err != nil {
		slog.Warn("image cache write failed", "url", raw, "error", err)
	}
	writeImage(w, data, contentType, "MISS")
}

// serveImageFallback answers an upstream failure with the expired cache
// entry when one still exists, a 502 otherwise.
func (s *Server) serveImageFallback(w http.ResponseWriter, key string) {
	if data, ok := s.cache.GetStale(cache.NSImages, key); ok {
		slog.Info("serving stale cached image after upstream failure", "url", key)
		writeImage(w, data, imageContentType(data, ""), "STALE")
		return
	}
	http.Error(w, "Failed to fetch image", http.StatusBadGateway)
}

func (s *Server) imageHostAllowed(host string) bool {
	for _, allowed := range s.cfg.ImageAllowHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

func imageContentType(data []byte, declared string) string {
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	return http.DetectContentType(data)
}

// writeImage serves image bytes with the given content type. On a miss
// the upstream-declared type passes through so formats the sniffer
// cannot name (svg) keep their type; on a hit only the bytes survive,
// so the type is re-sniffed.
func writeImage(w http.ResponseWriter, data []byte, contentType, cacheStatus string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Cache", cacheStatus)
	w.Write(data)
}
