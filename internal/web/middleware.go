package web

import "net/http"

// contentSecurityPolicy mirrors the resources the templates actually
// load: self-hosted assets plus the jsdelivr CDN for KaTeX and Prism,
// inline styles/scripts for KaTeX auto-render, and https images for
// upstream-hosted media.
const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' https://cdn.jsdelivr.net 'unsafe-inline'; " +
	"style-src 'self' https://cdn.jsdelivr.net 'unsafe-inline'; " +
	"img-src 'self' data: https:; " +
	"font-src 'self' https://cdn.jsdelivr.net; " +
	"connect-src 'self'; " +
	"frame-src https://www.youtube.com https://player.vimeo.com; " +
	"object-src 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'; " +
	"upgrade-insecure-requests"

// SecurityHeaders wraps a handler with the response headers every page
// carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
