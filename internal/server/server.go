package server

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamnote/streamnote/internal/metrics"
	"github.com/streamnote/streamnote/internal/session"
)

// SessionManager is the registry surface the server depends on.
type SessionManager interface {
	Create(id string, cfg session.Config, dispatcher session.Dispatcher) (*session.Session, error)
	Ingest(sessionID, source string, payload []byte) error
	Destroy(id string)
	Get(id string) (*session.Session, bool)
	List() []*session.Session
	Len() int
}

type Server struct {
	sessions SessionManager
	dispatch *Dispatcher
	store    SessionStore
	metrics  *metrics.Metrics
	defaults session.Config
}

// New wires the HTTP surface. defaults fills session settings a setup
// message omits. store and m may be nil; the archive routes then serve
// only live sessions.
func New(sessions SessionManager, dispatch *Dispatcher, store SessionStore, m *metrics.Metrics, defaults session.Config) *Server {
	return &Server{sessions: sessions, dispatch: dispatch, store: store, metrics: m, defaults: defaults}
}

// sessionConfig resolves a setup message against the server's
// configured defaults. Explicit setup values always win.
func (s *Server) sessionConfig(setup setupMessage) session.Config {
	cfg := setup.sessionConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = s.defaults.SampleRate
	}
	if cfg.Language == "" {
		cfg.Language = s.defaults.Language
	}
	if cfg.SummaryInterval <= 0 {
		cfg.SummaryInterval = s.defaults.SummaryInterval
	}
	if cfg.DefaultSpeaker == "" {
		cfg.DefaultSpeaker = s.defaults.DefaultSpeaker
	}
	return cfg
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/{session}", s.handleWS)
	s.registerAPIRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (s *Server) Serve(addr string) error {
	log.Printf("listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}
