package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/zazi341/dataflow-graph-server/internal/engine"
	"github.com/zazi341/dataflow-graph-server/internal/graphconfig"
	"github.com/zazi341/dataflow-graph-server/internal/platform"
)

// handleLoadConfig implements load_config: it accepts a multipart upload
// (field "file"), persists the raw bytes under
// <ConfigDir>/config_files/<name>, then hands the same bytes to the
// engine's LoadConfig.
func (s *Server) handleLoadConfig(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing multipart field \"file\": "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.persistConfigFile(header.Filename, body); err != nil {
		s.logger.Error().Err(err).Str("filename", header.Filename).Msg("failed to persist uploaded config")
	}

	err = s.eng.LoadConfig(bytes.NewReader(body))
	if err != nil {
		s.metrics.ConfigLoadsTotal.WithLabelValues("failure").Inc()
		switch err.(type) {
		case *graphconfig.ParseError, *graphconfig.IoError:
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	s.metrics.ConfigLoadsTotal.WithLabelValues("success").Inc()
	s.notifyStreamers()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) persistConfigFile(name string, body []byte) error {
	if name == "" {
		name = "config.txt"
	}
	dir := filepath.Join(s.configDir, "config_files")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filepath.Base(name)), body, 0o644)
}

type publishRequest struct {
	Value string `json:"value"`
}

// handlePublish implements publish: 404 on NotFoundError, 409 on
// ProtectedTopicError, guarded by a token-bucket limiter the way the
// teacher's ResourceGuard/ConnectionRateLimiter guards connection rates.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if !s.publishLimiter.Allow() {
		http.Error(w, "publish rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	name := r.PathValue("name")

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := s.eng.Publish(name, req.Value)
	switch e := err.(type) {
	case nil:
		s.metrics.MessagesPublished.WithLabelValues("input-only").Inc()
		s.notifyStreamers()
		w.WriteHeader(http.StatusNoContent)
	case *engine.NotFoundError:
		http.Error(w, e.Error(), http.StatusNotFound)
	case *engine.ProtectedTopicError:
		http.Error(w, e.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleTopicSnapshot implements topic_snapshot.
func (s *Server) handleTopicSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.eng.TopicSnapshot())
}

// handleGraphSnapshot implements graph_snapshot.
func (s *Server) handleGraphSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.eng.GraphSnapshot()
	result := "no_cycle"
	if snap.HasCycles {
		result = "cycle"
	}
	s.metrics.CycleDetectionsTotal.WithLabelValues(result).Inc()
	writeJSON(w, snap)
}

// handleHealthz reports process and container resource usage from the
// platform monitor, alongside a basic up/down status.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status   string            `json:"status"`
		Resource platform.Snapshot `json:"resources"`
	}{
		Status:   "ok",
		Resource: s.monitor.Snapshot(),
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
