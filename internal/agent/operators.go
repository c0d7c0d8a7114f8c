package agent

import (
	"math"
	"sync"

	"github.com/zazi341/dataflow-graph-server/internal/message"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

// int32 truncation-with-saturation used by the bitwise family: values at
// or above the maximum 32-bit signed integer (including +Inf) saturate to
// it, values at or below the minimum (including -Inf) saturate to it, and
// NaN maps to 0.
func toInt32Saturating(n float64) int32 {
	if math.IsNaN(n) {
		return 0
	}
	if n >= math.MaxInt32 {
		return math.MaxInt32
	}
	if n <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(n)
}

// binaryOp is a two-slot operator agent (add, and, or, xor, compare). The
// slot contract is uniform; only what happens on a NaN arrival and
// whether slots clear after a successful publish differ between the
// summing agent and the persistent logical/comparator agents.
type binaryOp struct {
	name string
	in1  string
	in2  string
	out  *topic.Topic

	clearAfterPublish bool // true for the summing agent
	nanClearsSlot     bool // true for persistent logical/comparator agents
	combine           func(v1, v2 float64) float64

	mu           sync.Mutex
	v1, v2       float64
	v1Set, v2Set bool
}

func newBinaryOp(name string, inputs, outputs []string, reg *topic.Registry, clearAfterPublish, nanClearsSlot bool, combine func(v1, v2 float64) float64) *binaryOp {
	b := &binaryOp{
		name:              name,
		in1:               nthOrEmpty(inputs, 0),
		in2:               nthOrEmpty(inputs, 1),
		clearAfterPublish: clearAfterPublish,
		nanClearsSlot:     nanClearsSlot,
		combine:           combine,
	}
	b.out = reg.Get(nthOrEmpty(outputs, 0))
	return b
}

func nthOrEmpty(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

func (b *binaryOp) Name() string { return b.name }

func (b *binaryOp) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.v1, b.v2 = 0, 0
	b.v1Set, b.v2Set = false, false
}

func (b *binaryOp) Close() error { return nil }

func (b *binaryOp) OnMessage(topicName string, msg message.Message) {
	b.mu.Lock()

	matched := false
	switch topicName {
	case b.in1:
		matched = true
		if math.IsNaN(msg.Num()) {
			if b.nanClearsSlot {
				b.v1Set = false
			}
		} else {
			b.v1, b.v1Set = msg.Num(), true
		}
	case b.in2:
		matched = true
		if math.IsNaN(msg.Num()) {
			if b.nanClearsSlot {
				b.v2Set = false
			}
		} else {
			b.v2, b.v2Set = msg.Num(), true
		}
	}
	if !matched {
		b.mu.Unlock()
		return
	}

	ready := b.v1Set && b.v2Set
	var result float64
	if ready {
		result = b.combine(b.v1, b.v2)
		if b.clearAfterPublish {
			b.v1Set, b.v2Set = false, false
		}
	}
	b.mu.Unlock()

	if ready {
		b.out.Publish(message.FromNum(result))
	}
}

// unaryOp is a stateless single-input, single-output operator (inc, not).
type unaryOp struct {
	name      string
	in        string
	out       *topic.Topic
	transform func(float64) float64
}

func newUnaryOp(name string, inputs, outputs []string, reg *topic.Registry, transform func(float64) float64) *unaryOp {
	return &unaryOp{
		name:      name,
		in:        nthOrEmpty(inputs, 0),
		out:       reg.Get(nthOrEmpty(outputs, 0)),
		transform: transform,
	}
}

func (u *unaryOp) Name() string { return u.name }
func (u *unaryOp) Reset()       {}
func (u *unaryOp) Close() error { return nil }

func (u *unaryOp) OnMessage(topicName string, msg message.Message) {
	if topicName != u.in {
		return
	}
	if math.IsNaN(msg.Num()) {
		return
	}
	u.out.Publish(message.FromNum(u.transform(msg.Num())))
}

// NewAdd builds the accumulating binary summation agent (§4.2.A).
func NewAdd(inputs, outputs []string, reg *topic.Registry) Agent {
	return newBinaryOp("add", inputs, outputs, reg, true, false, func(v1, v2 float64) float64 {
		return v1 + v2
	})
}

// NewInc builds the immediate unary successor agent (§4.2.B).
func NewInc(inputs, outputs []string, reg *topic.Registry) Agent {
	return newUnaryOp("inc", inputs, outputs, reg, func(v float64) float64 { return v + 1 })
}

// NewAnd builds the persistent binary bitwise AND agent (§4.2.C).
func NewAnd(inputs, outputs []string, reg *topic.Registry) Agent {
	return newBinaryOp("and", inputs, outputs, reg, false, true, func(v1, v2 float64) float64 {
		return float64(toInt32Saturating(v1) & toInt32Saturating(v2))
	})
}

// NewOr builds the persistent binary bitwise OR agent (§4.2.C).
func NewOr(inputs, outputs []string, reg *topic.Registry) Agent {
	return newBinaryOp("or", inputs, outputs, reg, false, true, func(v1, v2 float64) float64 {
		return float64(toInt32Saturating(v1) | toInt32Saturating(v2))
	})
}

// NewXor builds the persistent binary bitwise XOR agent (§4.2.C).
func NewXor(inputs, outputs []string, reg *topic.Registry) Agent {
	return newBinaryOp("xor", inputs, outputs, reg, false, true, func(v1, v2 float64) float64 {
		return float64(toInt32Saturating(v1) ^ toInt32Saturating(v2))
	})
}

// NewNot builds the immediate unary bitwise complement agent (§4.2.D).
func NewNot(inputs, outputs []string, reg *topic.Registry) Agent {
	return newUnaryOp("not", inputs, outputs, reg, func(v float64) float64 {
		return float64(^toInt32Saturating(v))
	})
}

// NewCompare builds the persistent three-way compare agent (§4.2.E).
func NewCompare(inputs, outputs []string, reg *topic.Registry) Agent {
	return newBinaryOp("compare", inputs, outputs, reg, false, true, func(v1, v2 float64) float64 {
		switch {
		case v1 > v2:
			return 1
		case v1 < v2:
			return -1
		default:
			return 0
		}
	})
}
