package transport

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zazi341/dataflow-graph-server/internal/engine"
	"github.com/zazi341/dataflow-graph-server/internal/metrics"
	"github.com/zazi341/dataflow-graph-server/internal/platform"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := topic.NewRegistry()
	m := metrics.New()
	eng := engine.New(reg, discardLogger(), m)
	mon := platform.NewMonitor(discardLogger())
	return New(eng, m, mon, discardLogger(), Config{ConfigDir: t.TempDir(), MaxPublishRate: 1000})
}

func multipartBody(t *testing.T, fieldName, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	fw, err := w.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()
	return buf, w.FormDataContentType()
}

func TestLoadConfigThenPublishAndSnapshot(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body, contentType := multipartBody(t, "file", "graph.txt", "add\nA,B\nS\ninc\nS\nR\n")
	req := httptest.NewRequest("POST", "/config", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from /config, got %d: %s", rec.Code, rec.Body.String())
	}

	publish := func(name, value string) {
		payload, _ := json.Marshal(publishRequest{Value: value})
		req := httptest.NewRequest("POST", "/topics/"+name, bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204 publishing to %s, got %d: %s", name, rec.Code, rec.Body.String())
		}
	}
	publish("A", "2.0")
	publish("B", "3.0")

	deadline := time.Now().Add(time.Second)
	for {
		req := httptest.NewRequest("GET", "/topics", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		var topics []engine.TopicInfo
		if err := json.Unmarshal(rec.Body.Bytes(), &topics); err != nil {
			t.Fatalf("decode /topics response: %v", err)
		}
		found := false
		for _, ti := range topics {
			if ti.Name == "R" && ti.LastValue == "6" {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("topic R never reached value 6: %v", topics)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPublishToUnknownTopicReturns404(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	payload, _ := json.Marshal(publishRequest{Value: "1"})
	req := httptest.NewRequest("POST", "/topics/ghost", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPublishToProtectedTopicReturns409(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body, contentType := multipartBody(t, "file", "graph.txt", "add\nA,B\nS\n")
	req := httptest.NewRequest("POST", "/config", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from /config, got %d", rec.Code)
	}

	payload, _ := json.Marshal(publishRequest{Value: "1"})
	req = httptest.NewRequest("POST", "/topics/S", bytes.NewReader(payload))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHealthzReportsStatus(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode /healthz: %v", err)
	}
	if decoded["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", decoded["status"])
	}
}

func TestGraphSnapshotReportsCycles(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body, contentType := multipartBody(t, "file", "graph.txt", "inc\nA\nA\n")
	req := httptest.NewRequest("POST", "/config", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from /config, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/graph", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var snap engine.GraphSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode /graph: %v", err)
	}
	if !snap.HasCycles {
		t.Fatalf("expected self-loop config to report a cycle")
	}
}
