package kafka

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/time/rate"

	"github.com/zazi341/dataflow-graph-server/internal/metrics"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	reg := topic.NewRegistry()
	return &Bridge{
		reg:     reg,
		metrics: metrics.New(),
		logger:  discardLogger(),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func TestProcessRecordRepublishesByKey(t *testing.T) {
	b := newTestBridge(t)

	b.processRecord(&kgo.Record{Key: []byte("A"), Value: []byte("3.0"), Topic: "external.input"})

	got := b.reg.Get("A").LastValueText()
	if got != "3.0" {
		t.Fatalf("expected topic A to receive %q, got %q", "3.0", got)
	}
}

func TestProcessRecordSkipsMissingKey(t *testing.T) {
	b := newTestBridge(t)

	b.processRecord(&kgo.Record{Key: nil, Value: []byte("3.0"), Topic: "external.input"})

	if len(b.reg.Topics()) != 0 {
		t.Fatalf("expected no topic created for a keyless record, got %v", b.reg.Topics())
	}
}

func TestNewRejectsEmptyBrokers(t *testing.T) {
	_, err := New(Config{ConsumerGroup: "g", Topics: []string{"t"}}, topic.NewRegistry(), metrics.New(), discardLogger())
	if err == nil {
		t.Fatalf("expected error for empty brokers list")
	}
}

func TestNewRejectsNoTopics(t *testing.T) {
	_, err := New(Config{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"}, topic.NewRegistry(), metrics.New(), discardLogger())
	if err == nil {
		t.Fatalf("expected error for empty topics list")
	}
}
