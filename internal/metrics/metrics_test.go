package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesRegisteredCollectors(t *testing.T) {
	m := New()
	m.TopicsCreated.Inc()
	m.MessagesPublished.WithLabelValues("input-only").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "graphserver_topics_created_total 1") {
		t.Fatalf("expected topics_created counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, `graphserver_messages_published_total{role="input-only"} 1`) {
		t.Fatalf("expected labeled messages_published counter in output, got:\n%s", body)
	}
}

func TestNewInstancesAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.TopicsCreated.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), "graphserver_topics_created_total 1") {
		t.Fatalf("expected independent registries, but b observed a's increment")
	}
}
