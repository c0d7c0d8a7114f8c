package nats

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/zazi341/dataflow-graph-server/internal/metrics"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	return &Bridge{
		reg:     topic.NewRegistry(),
		metrics: metrics.New(),
		logger:  discardLogger(),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func TestLastTokenExtractsFinalSegment(t *testing.T) {
	cases := map[string]string{
		"graph.input.A": "A",
		"A":              "A",
		"graph.input.":  "",
	}
	for subject, want := range cases {
		if got := lastToken(subject); got != want {
			t.Errorf("lastToken(%q) = %q, want %q", subject, got, want)
		}
	}
}

func TestHandleMessageRepublishesByLastToken(t *testing.T) {
	b := newTestBridge(t)

	b.handleMessage(&nats.Msg{Subject: "graph.input.A", Data: []byte("2.0")})

	got := b.reg.Get("A").LastValueText()
	if got != "2.0" {
		t.Fatalf("expected topic A to receive %q, got %q", "2.0", got)
	}
}

func TestNewRejectsEmptySubject(t *testing.T) {
	_, err := New(Config{URL: "nats://localhost:4222"}, topic.NewRegistry(), metrics.New(), discardLogger())
	if err == nil {
		t.Fatalf("expected error for empty subject")
	}
}
