package topic

import (
	"sync"
	"testing"

	"github.com/zazi341/dataflow-graph-server/internal/message"
)

type recordingAgent struct {
	name string
	mu   sync.Mutex
	got  []message.Message
}

func (a *recordingAgent) Name() string { return a.name }

func (a *recordingAgent) OnMessage(topicName string, msg message.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, msg)
}

func (a *recordingAgent) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.got)
}

func TestGetOrCreateSameInstance(t *testing.T) {
	r := NewRegistry()
	a := r.Get("x")
	b := r.Get("x")
	if a != b {
		t.Fatalf("expected same topic instance for repeated Get")
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	tp := newTopic("t")
	a := &recordingAgent{name: "a"}
	tp.Subscribe(a)
	tp.Subscribe(a)
	if len(tp.Subscribers()) != 1 {
		t.Fatalf("expected 1 subscriber after duplicate subscribe, got %d", len(tp.Subscribers()))
	}
}

func TestPublishInvokesSubscribers(t *testing.T) {
	tp := newTopic("t")
	a := &recordingAgent{name: "a"}
	tp.Subscribe(a)
	tp.Publish(message.FromText("1"))
	if a.count() != 1 {
		t.Fatalf("expected subscriber invoked once, got %d", a.count())
	}
	if tp.LastValueText() != "1" {
		t.Fatalf("LastValueText() = %q, want %q", tp.LastValueText(), "1")
	}
}

func TestLastValueTextWhenEmpty(t *testing.T) {
	tp := newTopic("t")
	if tp.LastValueText() != "N/A" {
		t.Fatalf("LastValueText() = %q, want N/A", tp.LastValueText())
	}
}

func TestRoleClassification(t *testing.T) {
	tp := newTopic("t")
	if tp.Role() != RoleInactive {
		t.Fatalf("expected inactive, got %s", tp.Role())
	}
	sub := &recordingAgent{name: "sub"}
	tp.Subscribe(sub)
	if tp.Role() != RoleInputOnly {
		t.Fatalf("expected input-only, got %s", tp.Role())
	}
	pub := &recordingAgent{name: "pub"}
	tp.AddPublisher(pub)
	if tp.Role() != RoleIntermediate {
		t.Fatalf("expected intermediate, got %s", tp.Role())
	}
	tp.Unsubscribe(sub)
	if tp.Role() != RoleOutputOnly {
		t.Fatalf("expected output-only, got %s", tp.Role())
	}
}

func TestClearResetsRegistry(t *testing.T) {
	r := NewRegistry()
	r.Get("a")
	r.Get("b")
	r.Clear()
	if len(r.Topics()) != 0 {
		t.Fatalf("expected empty registry after Clear, got %d topics", len(r.Topics()))
	}
}

func TestClearDropsTopicState(t *testing.T) {
	tp := newTopic("t")
	a := &recordingAgent{name: "a"}
	tp.Subscribe(a)
	tp.AddPublisher(a)
	tp.Publish(message.FromText("x"))
	tp.ClearAll()
	if len(tp.Subscribers()) != 0 || len(tp.Publishers()) != 0 {
		t.Fatalf("expected empty subscriber/publisher sets after ClearAll")
	}
	if tp.LastMessage() != nil {
		t.Fatalf("expected nil last message after ClearAll")
	}
}
