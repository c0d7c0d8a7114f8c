// Package transport exposes the dataflow engine over HTTP: load_config,
// publish, topic_snapshot, and graph_snapshot (spec.md §6), plus a
// WebSocket push feed of graph_snapshot changes. Routing follows the
// teacher's hand-rolled ServeMux idiom (no router library).
package transport

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/zazi341/dataflow-graph-server/internal/engine"
	"github.com/zazi341/dataflow-graph-server/internal/metrics"
	"github.com/zazi341/dataflow-graph-server/internal/platform"
)

// Server wires the engine facade to the HTTP route table.
type Server struct {
	eng       *engine.Engine
	metrics   *metrics.Metrics
	monitor   *platform.Monitor
	logger    zerolog.Logger
	configDir string

	publishLimiter *rate.Limiter

	mu        chan struct{} // 1-slot mutex-by-channel guarding stream subscriber list
	streamers map[*streamConn]struct{}
}

// Config carries the settings transport.Server needs, kept separate from
// settings.Settings so this package does not import it directly.
type Config struct {
	ConfigDir      string
	MaxPublishRate int
}

// New constructs a Server.
func New(eng *engine.Engine, m *metrics.Metrics, mon *platform.Monitor, logger zerolog.Logger, cfg Config) *Server {
	maxRate := cfg.MaxPublishRate
	if maxRate <= 0 {
		maxRate = 200
	}
	return &Server{
		eng:            eng,
		metrics:        m,
		monitor:        mon,
		logger:         logger,
		configDir:      cfg.ConfigDir,
		publishLimiter: rate.NewLimiter(rate.Limit(maxRate), maxRate),
		mu:             make(chan struct{}, 1),
		streamers:      make(map[*streamConn]struct{}),
	}
}

// Handler builds the net/http handler for the main listen address. The
// Prometheus exposition route is served on a separate listener (per
// Settings.MetricsAddr), not here.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /config", s.handleLoadConfig)
	mux.HandleFunc("POST /topics/{name}", s.handlePublish)
	mux.HandleFunc("GET /topics", s.handleTopicSnapshot)
	mux.HandleFunc("GET /graph", s.handleGraphSnapshot)
	mux.HandleFunc("GET /graph/stream", s.handleGraphStream)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// HTTPServer returns a configured *http.Server the way the teacher's
// Start() builds one, for cmd/graphserver to Serve.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        s.Handler(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
