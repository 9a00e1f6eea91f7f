package web

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gnotion/internal/auth"
	"gnotion/internal/gate"
	"gnotion/internal/notion"
	"gnotion/internal/resolve"
	"gnotion/internal/session"
)

const sessionCookie = "gnotion_session"

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := strings.Trim(r.URL.Path, "/")
	if strings.Contains(path, "..") {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	if deleted := s.sweeper.Maybe(); deleted > 0 {
		slog.Debug("request-triggered cache sweep", "deleted", deleted)
	}

	ctx := r.Context()
	sess := s.loadSession(w, r)
	st := gate.State{
		Unlocked:  sess.Unlocked,
		CSRFToken: sess.CSRFToken,
		LockedOut: sess.LockedOut(time.Now()),
	}

	if r.Method == http.MethodPost && r.FormValue("content_password") != "" {
		if s.handleUnlock(w, r, sess, &st) {
			return
		}
	}

	pageID, err := s.resolver.Resolve(ctx, path)
	if err != nil {
		if errors.Is(err, resolve.ErrNotFound) {
			s.renderNotFound(w, path)
			return
		}
		slog.Error("path resolution failed", "path", path, "error", err)
		s.renderError(w, http.StatusBadGateway, "Failed to fetch data from Notion: "+err.Error())
		return
	}

	meta := s.client.GetPageMetadata(ctx, pageID)
	mainTitle := meta.Title
	if path != "" {
		mainTitle = s.client.GetPageMetadata(ctx, s.cfg.RootPageID).Title
	}

	content, err := s.renderer.Render(ctx, pageID, path)
	if err != nil {
		var ue *notion.UpstreamError
		switch {
		case errors.As(err, &ue) && ue.NotFound() && pageID == s.cfg.RootPageID:
			// The root page id comes from configuration; a 404 there
			// means a stale or mistyped identifier, not a missing page.
			slog.Error("configured root page not found upstream", "page", pageID)
			s.renderError(w, http.StatusInternalServerError,
				"Configuration error: the configured Notion page id was not found. Check the page id or whether the page was deleted.")
		case errors.As(err, &ue) && ue.NotFound():
			s.renderNotFound(w, path)
		default:
			slog.Error("page render failed", "page", pageID, "error", err)
			s.renderError(w, http.StatusBadGateway, "Failed to fetch data from Notion: "+err.Error())
		}
		return
	}

	html := gate.Gate(gate.StripHidden(content), st)

	data := s.baseViewData(r, path)
	data.ContentTemplate = "page"
	data.Title = meta.Title
	data.MainTitle = mainTitle
	data.OGTitle = ogTitle(path, mainTitle, meta.Title)
	data.Description = truncate("View page: "+meta.Title+". Served from Notion.", 160)
	data.Breadcrumb = path != "" && pageID != s.cfg.RootPageID
	data.Content = template.HTML(html)
	if meta.CoverURL != "" {
		data.CoverURL = "/img?url=" + url.QueryEscape(meta.CoverURL)
	}
	s.views.RenderPage(w, http.StatusOK, data)
}

// loadSession resolves the visitor's session from the cookie, creating
// one as needed. Store failures degrade to an ephemeral locked session
// so pages still render.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) *session.Session {
	cookieID := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		cookieID = c.Value
	}
	sess, err := s.sessions.GetOrCreate(r.Context(), cookieID)
	if err != nil {
		slog.Error("session load failed", "error", err)
		return &session.Session{}
	}
	if sess.ID != cookieID {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// handleUnlock processes a password submission. On success the session
// is unlocked and the request redirected back to itself so a refresh
// does not resubmit the form. On failure the attempt is counted before
// the CSRF outcome is considered, so forged posts cannot dodge lockout
// accounting; the page then re-renders with an inline error. Returns
// whether a redirect was written.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request, sess *session.Session, st *gate.State) bool {
	if st.LockedOut {
		st.HadError = true
		return false
	}
	ctx := r.Context()
	csrfOK := sess.CSRFToken != "" && r.FormValue("csrf_token") == sess.CSRFToken
	passOK := auth.VerifyPassword(s.cfg.ContentPasswordHash, r.FormValue("content_password"))
	if csrfOK && passOK {
		if err := s.sessions.Unlock(ctx, sess.ID); err != nil {
			slog.Error("session unlock failed", "error", err)
			st.HadError = true
			return false
		}
		target := r.URL.Path
		if target == "" {
			target = "/"
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return true
	}

	locked, err := s.sessions.RecordFailure(ctx, sess.ID)
	if err != nil {
		slog.Error("recording failed attempt", "error", err)
	}
	st.HadError = true
	st.LockedOut = locked
	if token, err := s.sessions.RotateCSRF(ctx, sess.ID); err == nil {
		st.CSRFToken = token
	}
	return false
}

func (s *Server) renderNotFound(w http.ResponseWriter, path string) {
	data := ViewData{
		ContentTemplate: "error",
		Title:           "Page not found",
		OGTitle:         "Page not found",
		Description:     "The requested page was not found.",
		RequestPath:     path,
		NotFound:        true,
		Error:           fmt.Sprintf("No page found for path: /%s", path),
		Notice:          template.HTML(s.noticeHTML),
		Year:            time.Now().Year(),
	}
	s.views.RenderPage(w, http.StatusNotFound, data)
}

func (s *Server) renderError(w http.ResponseWriter, status int, message string) {
	data := ViewData{
		ContentTemplate: "error",
		Title:           "Error",
		OGTitle:         "Error",
		Description:     "An error occurred while loading the page.",
		Error:           message,
		Notice:          template.HTML(s.noticeHTML),
		Year:            time.Now().Year(),
	}
	s.views.RenderPage(w, status, data)
}

func (s *Server) baseViewData(r *http.Request, path string) ViewData {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	current := "/"
	if path != "" {
		current = "/" + path
	}
	return ViewData{
		RequestPath: path,
		CurrentURL:  scheme + "://" + r.Host + current,
		Notice:      template.HTML(s.noticeHTML),
		Year:        time.Now().Year(),
	}
}

func ogTitle(path, mainTitle, pageTitle string) string {
	if path == "" || mainTitle == pageTitle {
		return pageTitle
	}
	return mainTitle + " - " + pageTitle
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
