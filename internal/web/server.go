// Package web is the HTTP surface: one catch-all page handler, the
// image proxy, and the password-gate POST flow.
package web

import (
	"net/http"

	"gnotion/internal/cache"
	"gnotion/internal/config"
	"gnotion/internal/notion"
	"gnotion/internal/render"
	"gnotion/internal/resolve"
	"gnotion/internal/session"
)

type Server struct {
	cfg      config.Config
	client   *notion.Client
	resolver *resolve.Resolver
	renderer *render.Renderer
	sessions *session.Store
	cache    *cache.FileCache
	sweeper  *cache.Sweeper
	mux      *http.ServeMux
	views    *Templates

	imageClient *http.Client
	noticeHTML  string
}

func NewServer(cfg config.Config, client *notion.Client, sessions *session.Store, fc *cache.FileCache) (*Server, error) {
	notice, err := LoadNotice(cfg.NoticePath)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:         cfg,
		client:      client,
		resolver:    resolve.NewResolver(cfg.RootPageID, client, fc),
		renderer:    render.NewRenderer(client),
		sessions:    sessions,
		cache:       fc,
		sweeper:     cache.NewSweeper(fc, cfg.SweepMaxAge, cfg.SweepProbability),
		mux:         http.NewServeMux(),
		views:       MustParseTemplates(),
		imageClient: &http.Client{Timeout: cfg.UpstreamTimeout},
		noticeHTML:  string(notice),
	}
	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return SecurityHeaders(s.mux)
}

func (s *Server) routes() {
	static := http.FileServer(http.Dir(StaticDir()))
	s.mux.Handle("/css/", static)
	s.mux.Handle("/js/", static)
	s.mux.HandleFunc("/img", s.handleImage)
	s.mux.HandleFunc("/", s.handlePage)
}
