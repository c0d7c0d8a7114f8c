package graphconfig

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zazi341/dataflow-graph-server/internal/message"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestSumChainEndToEnd(t *testing.T) {
	reg := topic.NewRegistry()
	l := New(reg, discardLogger(), nil)
	cfg := "add\nA,B\nS\ninc\nS\nR\n"
	if err := l.Create(strings.NewReader(cfg)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	reg.Get("A").Publish(message.FromText("2.0"))
	reg.Get("B").Publish(message.FromText("3.0"))

	waitForValue(t, reg.Get("R"), "6")
}

func TestLineCountNotMultipleOf3(t *testing.T) {
	reg := topic.NewRegistry()
	l := New(reg, discardLogger(), nil)
	err := l.Create(strings.NewReader("add\nA,B\n"))
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestUnknownAgentTypeSkippedNotFatal(t *testing.T) {
	reg := topic.NewRegistry()
	l := New(reg, discardLogger(), nil)
	cfg := "bogus\nA\nB\nadd\nX,Y\nZ\n"
	if err := l.Create(strings.NewReader(cfg)); err != nil {
		t.Fatalf("expected per-block skip, not overall failure: %v", err)
	}
	if len(l.Agents()) != 1 {
		t.Fatalf("expected 1 agent created (the valid block), got %d", len(l.Agents()))
	}
}

func TestCapacityPolicy(t *testing.T) {
	cases := map[int]int{0: 10, 1: 10, 2: 10, 3: 15, 10: 50}
	for inputs, want := range cases {
		if got := capacityFor(inputs); got != want {
			t.Errorf("capacityFor(%d) = %d, want %d", inputs, got, want)
		}
	}
}

func TestCloseClosesAllWrappedAgents(t *testing.T) {
	reg := topic.NewRegistry()
	l := New(reg, discardLogger(), nil)
	cfg := "add\nA,B\nS\ninc\nS\nR\n"
	if err := l.Create(strings.NewReader(cfg)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(l.Agents()) != 0 {
		t.Fatalf("expected loader to drop its agent list after Close")
	}
}

func waitForValue(t *testing.T, tp *topic.Topic, want string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if tp.LastValueText() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("topic %s never reached value %q (last: %q)", tp.Name(), want, tp.LastValueText())
}
